package service

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"studio-checkout/internal/apperr"
	"studio-checkout/internal/domain"
	"studio-checkout/internal/repo"
)

const maxReferenceImages = 5

type CreateCustomOrderInput struct {
	Caller          domain.Identity
	RequesterName   string
	Size            string
	Usage           string
	Notes           string
	ReferenceImages []string
}

type QuoteInput struct {
	From       domain.CustomOrderStatus
	Price      decimal.Decimal
	Delivery   *time.Time
	AdminNotes string
}

type CustomOrderService interface {
	Create(ctx context.Context, in CreateCustomOrderInput) (*domain.CustomOrderRequest, error)
	Get(ctx context.Context, caller domain.Identity, id uuid.UUID) (*domain.CustomOrderRequest, error)
	List(ctx context.Context, caller domain.Identity, status domain.CustomOrderStatus) ([]domain.CustomOrderRequest, error)
	Transition(ctx context.Context, caller domain.Identity, id uuid.UUID, from, to domain.CustomOrderStatus, adminNotes string) error
	Quote(ctx context.Context, caller domain.Identity, id uuid.UUID, in QuoteInput) error
}

type customOrderService struct {
	tx       repo.Transactor
	custom   repo.CustomOrderRepo
	notifier NotificationService
	now      func() time.Time
}

func NewCustomOrderService(tx repo.Transactor, custom repo.CustomOrderRepo, notifier NotificationService) CustomOrderService {
	return &customOrderService{tx: tx, custom: custom, notifier: notifier, now: time.Now}
}

func (s *customOrderService) Create(ctx context.Context, in CreateCustomOrderInput) (*domain.CustomOrderRequest, error) {
	if !in.Caller.Authenticated() {
		return nil, apperr.Unauthorized("sign in to request a custom order")
	}
	if len(in.ReferenceImages) > maxReferenceImages {
		return nil, apperr.Validation("at most 5 reference images")
	}
	for _, raw := range in.ReferenceImages {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return nil, apperr.Validation("reference images must be http(s) urls")
		}
	}

	now := s.now().UTC()
	req := &domain.CustomOrderRequest{
		ID:              uuid.New(),
		UserID:          in.Caller.UserID,
		RequesterName:   in.RequesterName,
		RequesterEmail:  in.Caller.Email,
		Size:            in.Size,
		Usage:           in.Usage,
		Notes:           in.Notes,
		ReferenceImages: in.ReferenceImages,
		Status:          domain.CustomPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		return s.custom.Create(ctx, tx, req)
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	s.notifier.NotifyAdmin(ctx, domain.NewAdminNotification("custom_order_request",
		"New custom order request",
		req.RequesterName+" asked for a "+req.Size+" piece for "+req.Usage,
		domain.EntityCustomOrder, req.ID))
	s.announce(ctx, req.ID, domain.EmailCustomReceived)
	return req, nil
}

func (s *customOrderService) Get(ctx context.Context, caller domain.Identity, id uuid.UUID) (*domain.CustomOrderRequest, error) {
	req, err := s.custom.FindById(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "custom order not found")
	}
	if !caller.IsAdmin() && req.UserID != caller.UserID {
		return nil, apperr.NotFound("custom order not found")
	}
	return req, nil
}

func (s *customOrderService) List(ctx context.Context, caller domain.Identity, status domain.CustomOrderStatus) ([]domain.CustomOrderRequest, error) {
	var (
		out []domain.CustomOrderRequest
		err error
	)
	switch {
	case caller.IsAdmin():
		out, err = s.custom.ListAll(ctx, status, 0)
	case caller.Authenticated():
		out, err = s.custom.ListByUser(ctx, caller.UserID)
	default:
		return nil, apperr.Unauthorized("sign in to list custom orders")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}

func (s *customOrderService) Transition(ctx context.Context, caller domain.Identity, id uuid.UUID, from, to domain.CustomOrderStatus, adminNotes string) error {
	if !caller.IsAdmin() {
		return apperr.Forbidden("admin only")
	}
	if !from.CanTransitionTo(to) {
		return apperr.Validation("cannot move custom order from " + string(from) + " to " + string(to))
	}
	if to == domain.CustomPaymentPending {
		return apperr.Validation("use the quote endpoint to request payment")
	}

	var updated bool
	err := s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		var err error
		updated, err = s.custom.UpdateStatus(ctx, tx, id, from, to, adminNotes)
		return err
	})
	if err != nil {
		return apperr.Internal(err)
	}
	if !updated {
		return s.staleOrMissing(ctx, id)
	}

	if email, ok := to.StatusEmail(); ok {
		s.announce(ctx, id, email)
	}
	return nil
}

func (s *customOrderService) Quote(ctx context.Context, caller domain.Identity, id uuid.UUID, in QuoteInput) error {
	if !caller.IsAdmin() {
		return apperr.Forbidden("admin only")
	}
	if !in.Price.IsPositive() {
		return apperr.Validation("quote must be positive")
	}
	if !in.From.CanTransitionTo(domain.CustomPaymentPending) {
		return apperr.Validation("custom order in " + string(in.From) + " cannot be quoted")
	}

	var updated bool
	err := s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		var err error
		updated, err = s.custom.SetQuote(ctx, tx, id, in.From, in.Price, in.Delivery, in.AdminNotes)
		return err
	})
	if err != nil {
		return apperr.Internal(err)
	}
	if !updated {
		return s.staleOrMissing(ctx, id)
	}
	s.announce(ctx, id, domain.EmailCustomQuote)
	return nil
}

func (s *customOrderService) staleOrMissing(ctx context.Context, id uuid.UUID) error {
	if _, err := s.custom.FindById(ctx, id); errors.Is(err, repo.ErrNotFound) {
		return apperr.NotFound("custom order not found")
	}
	return apperr.Conflict("custom order status changed, reload and retry")
}

// announce sends a pipeline email. The status change already committed, so
// a failed send is only logged; admins can resend with override.
func (s *customOrderService) announce(ctx context.Context, id uuid.UUID, email domain.EmailType) {
	_, err := s.notifier.Announce(ctx, EmailRequest{
		EntityType: domain.EntityCustomOrder,
		EntityID:   id,
		EmailType:  email,
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"custom_order_id": id, "email_type": email}).Warn("custom order email not sent")
	}
}
