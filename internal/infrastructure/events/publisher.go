package events

import (
	"context"

	log "github.com/sirupsen/logrus"

	"studio-checkout/internal/domain"
)

type Publisher interface {
	PublishPaid(ctx context.Context, event domain.PaidEvent) error
	Close() error
}

// LogPublisher is used when no brokers are configured.
type LogPublisher struct{}

func (LogPublisher) PublishPaid(_ context.Context, event domain.PaidEvent) error {
	log.WithFields(log.Fields{
		"kind":     event.Kind,
		"local_id": event.LocalID,
		"amount":   event.Amount,
	}).Info("paid event (no broker configured)")
	return nil
}

func (LogPublisher) Close() error { return nil }
