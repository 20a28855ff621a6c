package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"studio-checkout/internal/domain"
)

var (
	// ErrRetryable means nothing was charged and the customer may try again.
	ErrRetryable = errors.New("payment could not start, please try again")
	// ErrContactSupport is terminal. Money may have moved, so the flow
	// never retries on its own.
	ErrContactSupport = errors.New("payment could not be confirmed, please contact support")
	ErrDismissed      = errors.New("payment dismissed")
	ErrInProgress     = errors.New("payment already in progress")
	ErrClosed         = errors.New("payment session is closed")
)

type State int32

const (
	StateIdle State = iota
	StateProcessing
	StatePaid
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StatePaid:
		return "paid"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is what the payment surface reports once the customer is done.
// Exactly one of Completion or Dismissed is set.
type Outcome struct {
	Completion *domain.PaymentCompletion
	Dismissed  bool
}

// Surface presents the hosted gateway checkout to the customer.
type Surface interface {
	Collect(ctx context.Context, session domain.Session) (Outcome, error)
}

type SurfaceFunc func(ctx context.Context, session domain.Session) (Outcome, error)

func (f SurfaceFunc) Collect(ctx context.Context, session domain.Session) (Outcome, error) {
	return f(ctx, session)
}

// Session is one customer's attempt to pay for one order or booking.
type Session struct {
	client  *Client
	kind    domain.PayableKind
	localID uuid.UUID
	state   atomic.Int32
}

func NewSession(client *Client, kind domain.PayableKind, localID uuid.UUID) *Session {
	return &Session{client: client, kind: kind, localID: localID}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Run takes the session from idle to processing, at most one attempt at a
// time. Begin and surface failures return to idle wrapped in ErrRetryable.
// Once a completion exists it is verified exactly once, and anything short
// of a positive verdict ends the session with ErrContactSupport.
func (s *Session) Run(ctx context.Context, surface Surface) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateProcessing)) {
		if s.State() == StateProcessing {
			return ErrInProgress
		}
		return ErrClosed
	}
	logger := log.WithFields(log.Fields{"kind": s.kind, "local_id": s.localID})

	session, err := s.client.BeginPayment(ctx, s.kind, s.localID)
	if err != nil {
		s.state.Store(int32(StateIdle))
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return err
		}
		logger.WithError(err).Warn("begin payment failed")
		return fmt.Errorf("%w: %v", ErrRetryable, err)
	}

	outcome, err := surface.Collect(ctx, *session)
	if err != nil {
		s.state.Store(int32(StateIdle))
		logger.WithError(err).Warn("payment surface failed")
		return fmt.Errorf("%w: %v", ErrRetryable, err)
	}
	if outcome.Dismissed || outcome.Completion == nil {
		s.state.Store(int32(StateIdle))
		logger.Info("payment dismissed, order left pending")
		return ErrDismissed
	}

	verified, err := s.client.VerifyPayment(ctx, s.kind, s.localID, *outcome.Completion)
	if err != nil || !verified {
		s.state.Store(int32(StateFailed))
		logger.WithError(err).WithField("gateway_payment_id", outcome.Completion.GatewayPaymentID).
			Error("payment completion was not verified")
		if err != nil {
			return fmt.Errorf("%w: %v", ErrContactSupport, err)
		}
		return ErrContactSupport
	}

	s.state.Store(int32(StatePaid))
	logger.Info("payment verified")
	return nil
}

// Cancel abandons an idle session and marks the payable failed server side.
func (s *Session) Cancel(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateProcessing)) {
		if s.State() == StateProcessing {
			return ErrInProgress
		}
		return ErrClosed
	}
	if err := s.client.CancelPayment(ctx, s.kind, s.localID); err != nil {
		s.state.Store(int32(StateIdle))
		return err
	}
	s.state.Store(int32(StateCancelled))
	return nil
}
