package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"studio-checkout/internal/apperr"
	"studio-checkout/internal/domain"
	"studio-checkout/internal/infrastructure/events"
	"studio-checkout/internal/infrastructure/payment"
	"studio-checkout/internal/repo"
)

type VerifyRequest struct {
	Kind             domain.PayableKind
	LocalID          uuid.UUID
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

type PaymentService interface {
	BeginPayment(ctx context.Context, caller domain.Identity, kind domain.PayableKind, id uuid.UUID) (*domain.Session, error)
	Verify(ctx context.Context, req VerifyRequest) (domain.VerifyResult, error)
	Cancel(ctx context.Context, caller domain.Identity, kind domain.PayableKind, id uuid.UUID) error
}

type PaymentConfig struct {
	Currency string
	// Secret is the gateway key secret. It never leaves this service.
	Secret string
}

type paymentService struct {
	tx        repo.Transactor
	payments  repo.PaymentRepo
	gateway   payment.PaymentGateway
	notifier  NotificationService
	publisher events.Publisher
	cfg       PaymentConfig
}

func NewPaymentService(
	tx repo.Transactor,
	payments repo.PaymentRepo,
	gateway payment.PaymentGateway,
	notifier NotificationService,
	publisher events.Publisher,
	cfg PaymentConfig,
) PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &paymentService{
		tx:        tx,
		payments:  payments,
		gateway:   gateway,
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
	}
}

// BeginPayment returns the session the client needs to collect payment for
// an existing pending order or booking. The gateway order is created at most
// once per local record and persisted before the session is returned.
func (s *paymentService) BeginPayment(ctx context.Context, caller domain.Identity, kind domain.PayableKind, id uuid.UUID) (*domain.Session, error) {
	if !kind.Valid() {
		return nil, apperr.Validation("unknown payable kind")
	}
	p, err := s.payments.FindPayable(ctx, kind, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperr.NotFound(string(kind) + " not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !p.OwnedBy(caller) {
		return nil, apperr.Forbidden("not allowed to pay for this " + string(kind))
	}
	if p.PaymentStatus != domain.PaymentPending {
		return nil, apperr.Conflict(string(kind) + " is already " + string(p.PaymentStatus))
	}
	if !p.Amount.IsPositive() {
		return nil, apperr.Conflict("nothing to pay")
	}
	if p.Expired(time.Now()) {
		return nil, apperr.Conflict(string(kind) + " has expired, please place it again")
	}

	if p.GatewayOrderID != "" {
		return s.session(p, p.GatewayOrderID), nil
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, payment.CreateOrderRequest{
		Amount:   domain.MinorUnits(p.Amount),
		Currency: s.cfg.Currency,
		Receipt:  p.Reference,
		Notes: map[string]string{
			"local_id": p.ID.String(),
			"kind":     string(kind),
		},
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"kind": kind, "local_id": id}).Error("gateway order creation failed")
		return nil, apperr.Upstream("payment gateway unavailable, please try again", err)
	}

	var attached bool
	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		attached, err = s.payments.AttachGatewayOrder(ctx, tx, kind, id, gwOrder.ID)
		return err
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !attached {
		// A concurrent attempt attached first or the record left pending.
		// Use whatever the store now holds; the orphan gateway order is never paid.
		current, err := s.payments.FindPayable(ctx, kind, id)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		log.WithFields(log.Fields{"kind": kind, "local_id": id, "orphan_gateway_order_id": gwOrder.ID}).Warn("gateway order not attached")
		if current.PaymentStatus != domain.PaymentPending || current.GatewayOrderID == "" {
			return nil, apperr.Conflict(string(kind) + " is no longer payable")
		}
		return s.session(current, current.GatewayOrderID), nil
	}

	log.WithFields(log.Fields{"kind": kind, "local_id": id, "gateway_order_id": gwOrder.ID}).Info("gateway order attached")
	return s.session(p, gwOrder.ID), nil
}

func (s *paymentService) session(p *domain.Payable, gatewayOrderID string) *domain.Session {
	return &domain.Session{
		Kind:           p.Kind,
		LocalID:        p.ID,
		GatewayOrderID: gatewayOrderID,
		KeyID:          s.gateway.KeyID(),
		Amount:         domain.MinorUnits(p.Amount),
		DisplayAmount:  p.Amount,
		Currency:       s.cfg.Currency,
		Receipt:        p.Reference,
		Prefill: domain.SessionPrefill{
			Name:    p.Customer.Name,
			Email:   p.Customer.Email,
			Contact: p.Customer.Phone,
		},
	}
}

// Verify decides whether a completion is genuine. Only a matching signature
// plus a successful conditional pending->paid write runs side effects.
func (s *paymentService) Verify(ctx context.Context, req VerifyRequest) (domain.VerifyResult, error) {
	if !req.Kind.Valid() || req.LocalID == uuid.Nil || req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" {
		return domain.VerifyResult{}, apperr.Validation("incomplete payment completion")
	}
	logger := log.WithFields(log.Fields{
		"kind":               req.Kind,
		"local_id":           req.LocalID,
		"gateway_order_id":   req.GatewayOrderID,
		"gateway_payment_id": req.GatewayPaymentID,
	})

	if !payment.VerifySignature(s.cfg.Secret, req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		logger.WithField("outcome", domain.OutcomeSignatureMismatch).Warn("payment signature mismatch, flagged for fraud review")
		return domain.VerifyResult{Verified: false, Outcome: domain.OutcomeSignatureMismatch}, nil
	}

	var transitioned bool
	err := s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		var err error
		transitioned, err = s.payments.MarkPaid(ctx, tx, req.Kind, req.LocalID, req.GatewayOrderID, req.GatewayPaymentID)
		return err
	})
	if err != nil {
		return domain.VerifyResult{}, apperr.Internal(err)
	}

	current, err := s.payments.FindPayable(ctx, req.Kind, req.LocalID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.VerifyResult{}, apperr.NotFound(string(req.Kind) + " not found")
	}
	if err != nil {
		if transitioned {
			// The payment is committed; side effects need the record.
			logger.WithError(err).Error("paid record unreadable after transition, side effects skipped")
			return domain.VerifyResult{Verified: true, Outcome: domain.OutcomeVerified}, nil
		}
		return domain.VerifyResult{}, apperr.Internal(err)
	}

	if transitioned {
		logger.WithField("outcome", domain.OutcomeVerified).Info("payment verified")
		s.afterPaid(ctx, *current)
		return domain.VerifyResult{Verified: true, Outcome: domain.OutcomeVerified}, nil
	}

	switch {
	case current.GatewayOrderID != req.GatewayOrderID:
		logger.WithFields(log.Fields{
			"outcome":                 domain.OutcomeOrderMismatch,
			"stored_gateway_order_id": current.GatewayOrderID,
		}).Warn("verified signature for a gateway order not attached to this record, manual review")
		return domain.VerifyResult{Verified: false, Outcome: domain.OutcomeOrderMismatch}, nil
	case current.PaymentStatus == domain.PaymentPaid:
		if current.GatewayPaymentID != req.GatewayPaymentID {
			logger.WithField("stored_gateway_payment_id", current.GatewayPaymentID).Warn("second payment on an already paid record, manual review")
		}
		return domain.VerifyResult{Verified: true, Outcome: domain.OutcomeAlreadyPaid}, nil
	default:
		logger.WithFields(log.Fields{
			"outcome":        domain.OutcomeNotPayable,
			"payment_status": current.PaymentStatus,
		}).Warn("genuine payment for a record that is not pending, manual review")
		s.notifier.NotifyAdmin(ctx, domain.NewAdminNotification("needs_manual_review",
			"Payment on "+string(current.PaymentStatus)+" "+string(req.Kind),
			"Gateway payment "+req.GatewayPaymentID+" captured for "+current.Reference+" which is "+string(current.PaymentStatus),
			entityFor(req.Kind), req.LocalID))
		return domain.VerifyResult{Verified: false, Outcome: domain.OutcomeNotPayable}, nil
	}
}

// afterPaid runs once per pending->paid transition. Nothing here can undo
// the payment; failures are logged.
func (s *paymentService) afterPaid(ctx context.Context, p domain.Payable) {
	if _, err := s.notifier.ConfirmPaid(ctx, p); err != nil {
		log.WithError(err).WithFields(log.Fields{"kind": p.Kind, "local_id": p.ID}).Warn("confirmation email not sent")
	}

	event := domain.PaidEvent{
		Kind:             p.Kind,
		LocalID:          p.ID,
		Reference:        p.Reference,
		Amount:           p.Amount.StringFixed(2),
		GatewayOrderID:   p.GatewayOrderID,
		GatewayPaymentID: p.GatewayPaymentID,
		PaidAt:           time.Now().UTC(),
	}
	if err := s.publisher.PublishPaid(ctx, event); err != nil {
		log.WithError(err).WithFields(log.Fields{"kind": p.Kind, "local_id": p.ID}).Error("paid event not published")
	}
}

// Cancel is the explicit user cancellation: pending -> failed.
func (s *paymentService) Cancel(ctx context.Context, caller domain.Identity, kind domain.PayableKind, id uuid.UUID) error {
	if !kind.Valid() {
		return apperr.Validation("unknown payable kind")
	}
	p, err := s.payments.FindPayable(ctx, kind, id)
	if err != nil {
		return notFoundOr(err, string(kind)+" not found")
	}
	if !p.OwnedBy(caller) {
		return apperr.Forbidden("not allowed to cancel this " + string(kind))
	}

	var cancelled bool
	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		cancelled, err = s.payments.MarkFailed(ctx, tx, kind, id)
		return err
	})
	if err != nil {
		return apperr.Internal(err)
	}
	if !cancelled {
		return apperr.Conflict(string(kind) + " is no longer pending")
	}
	log.WithFields(log.Fields{"kind": kind, "local_id": id}).Info("payment cancelled by customer")
	return nil
}

func entityFor(kind domain.PayableKind) domain.EntityType {
	if kind == domain.PayableBooking {
		return domain.EntityBooking
	}
	return domain.EntityOrder
}
