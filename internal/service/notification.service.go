package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"studio-checkout/internal/apperr"
	"studio-checkout/internal/domain"
	"studio-checkout/internal/infrastructure/mail"
	"studio-checkout/internal/infrastructure/ratelimit"
	"studio-checkout/internal/repo"
)

var ErrEmailFailed = apperr.New(apperr.KindUpstream, "email_failed")

type DispatchResult struct {
	Sent bool `json:"sent"`
	// Suppressed is set when a duplicate trigger landed inside the cooldown.
	Suppressed bool `json:"suppressed"`
	// AlreadySent is set when the ledger already holds this email.
	AlreadySent bool `json:"alreadySent"`
}

type EmailRequest struct {
	EntityType domain.EntityType
	EntityID   uuid.UUID
	EmailType  domain.EmailType
	Override   bool
}

type NotificationService interface {
	RequestOrderConfirmation(ctx context.Context, caller domain.Identity, orderID uuid.UUID) (DispatchResult, error)
	ConfirmPaid(ctx context.Context, payable domain.Payable) (DispatchResult, error)
	SendEmail(ctx context.Context, caller domain.Identity, req EmailRequest) (DispatchResult, error)
	// Announce sends a server-originated email through the same ledger.
	Announce(ctx context.Context, req EmailRequest) (DispatchResult, error)
	NotifyAdmin(ctx context.Context, n *domain.AdminNotification)
	ListAdminNotifications(ctx context.Context, caller domain.Identity, unreadOnly bool, limit int) ([]domain.AdminNotification, error)
	MarkAdminNotificationRead(ctx context.Context, caller domain.Identity, id uuid.UUID) error
}

type NotificationConfig struct {
	RateLimit  int
	RateWindow time.Duration
	Cooldown   time.Duration
	// AdminEmail receives a copy of every admin notification when set.
	AdminEmail string
}

type notificationService struct {
	orders   repo.OrderRepo
	bookings repo.BookingRepo
	custom   repo.CustomOrderRepo
	notes    repo.NotificationRepo
	limiter  ratelimit.Limiter
	mailer   mail.Mailer
	cfg      NotificationConfig
}

func NewNotificationService(
	orders repo.OrderRepo,
	bookings repo.BookingRepo,
	custom repo.CustomOrderRepo,
	notes repo.NotificationRepo,
	limiter ratelimit.Limiter,
	mailer mail.Mailer,
	cfg NotificationConfig,
) NotificationService {
	return &notificationService{
		orders:   orders,
		bookings: bookings,
		custom:   custom,
		notes:    notes,
		limiter:  limiter,
		mailer:   mailer,
		cfg:      cfg,
	}
}

// RequestOrderConfirmation is the caller-triggered path. Guards run in
// order: identity rate limit, authoritative fetch, ownership, paid check,
// per-order cooldown, then the durable ledger claim.
func (s *notificationService) RequestOrderConfirmation(ctx context.Context, caller domain.Identity, orderID uuid.UUID) (DispatchResult, error) {
	if caller.Anonymous() {
		return DispatchResult{}, apperr.Unauthorized("sign in or provide a checkout session")
	}

	decision, err := s.limiter.Allow(ctx, "notify:"+caller.Key(), s.cfg.RateLimit, s.cfg.RateWindow)
	if err != nil {
		return DispatchResult{}, apperr.Internal(err)
	}
	if !decision.Allowed {
		log.WithField("caller", caller.Key()).Warn("notification rate limit exceeded")
		return DispatchResult{}, apperr.RateLimited(int(math.Ceil(decision.RetryAfter.Seconds())))
	}

	order, err := s.orders.FindById(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return DispatchResult{}, apperr.NotFound("order not found")
	}
	if err != nil {
		return DispatchResult{}, apperr.Internal(err)
	}
	if !order.OwnedBy(caller) {
		return DispatchResult{}, apperr.Forbidden("not allowed to notify for this order")
	}
	if order.PaymentStatus != domain.PaymentPaid {
		return DispatchResult{}, apperr.Conflict("order is not paid")
	}

	fresh, err := s.limiter.Claim(ctx, "order:"+order.ID.String(), s.cfg.Cooldown)
	if err != nil {
		return DispatchResult{}, apperr.Internal(err)
	}
	if !fresh {
		return DispatchResult{Suppressed: true}, nil
	}

	return s.dispatchOrder(ctx, order, false)
}

// ConfirmPaid sends the confirmation after a verified payment. The ledger
// alone makes it exactly-once; it is not subject to the caller guards.
func (s *notificationService) ConfirmPaid(ctx context.Context, payable domain.Payable) (DispatchResult, error) {
	switch payable.Kind {
	case domain.PayableOrder:
		order, err := s.orders.FindById(ctx, payable.ID)
		if err != nil {
			return DispatchResult{}, apperr.Internal(err)
		}
		return s.dispatchOrder(ctx, order, false)
	case domain.PayableBooking:
		booking, err := s.bookings.FindById(ctx, payable.ID)
		if err != nil {
			return DispatchResult{}, apperr.Internal(err)
		}
		return s.dispatchBooking(ctx, booking, false)
	}
	return DispatchResult{}, apperr.Validation("unknown payable kind")
}

// SendEmail is the admin path. Override appends a ledger row that bypasses
// the once-only index, for deliberate resends.
func (s *notificationService) SendEmail(ctx context.Context, caller domain.Identity, req EmailRequest) (DispatchResult, error) {
	if !caller.IsAdmin() {
		return DispatchResult{}, apperr.Forbidden("admin only")
	}
	return s.Announce(ctx, req)
}

func (s *notificationService) Announce(ctx context.Context, req EmailRequest) (DispatchResult, error) {
	if !req.EmailType.Valid() {
		return DispatchResult{}, apperr.Validation("unknown email type")
	}

	switch req.EntityType {
	case domain.EntityOrder:
		if req.EmailType != domain.EmailOrderConfirmation {
			return DispatchResult{}, apperr.Validation("orders only have confirmation emails")
		}
		order, err := s.orders.FindById(ctx, req.EntityID)
		if err != nil {
			return DispatchResult{}, notFoundOr(err, "order not found")
		}
		if order.PaymentStatus != domain.PaymentPaid {
			return DispatchResult{}, apperr.Conflict("order is not paid")
		}
		return s.dispatchOrder(ctx, order, req.Override)
	case domain.EntityBooking:
		if req.EmailType != domain.EmailBookingConfirmation {
			return DispatchResult{}, apperr.Validation("bookings only have confirmation emails")
		}
		booking, err := s.bookings.FindById(ctx, req.EntityID)
		if err != nil {
			return DispatchResult{}, notFoundOr(err, "booking not found")
		}
		if booking.PaymentStatus != domain.PaymentPaid {
			return DispatchResult{}, apperr.Conflict("booking is not paid")
		}
		return s.dispatchBooking(ctx, booking, req.Override)
	case domain.EntityCustomOrder:
		c, err := s.custom.FindById(ctx, req.EntityID)
		if err != nil {
			return DispatchResult{}, notFoundOr(err, "custom order not found")
		}
		return s.dispatchCustom(ctx, c, req.EmailType, req.Override)
	}
	return DispatchResult{}, apperr.Validation("unknown entity type")
}

func (s *notificationService) dispatchOrder(ctx context.Context, order *domain.Order, override bool) (DispatchResult, error) {
	payload := mail.Payload{
		Type:      domain.EmailOrderConfirmation,
		Name:      order.Customer.Name,
		Reference: order.OrderNumber,
		Subtotal:  order.Subtotal.StringFixed(2),
		Shipping:  order.ShippingCost.StringFixed(2),
		Total:     order.TotalAmount.StringFixed(2),
		Address:   order.ShippingAddress,
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, mail.LineItem{Name: item.ItemName, Quantity: item.Quantity, Total: item.TotalPrice.StringFixed(2)})
	}
	admin := domain.NewAdminNotification("order_confirmation",
		"Order confirmed: "+order.OrderNumber,
		fmt.Sprintf("%s paid Rs. %s for order %s", order.Customer.Name, order.TotalAmount.StringFixed(2), order.OrderNumber),
		domain.EntityOrder, order.ID)
	return s.dispatch(ctx, domain.EntityOrder, order.ID, override, order.Customer.Email, payload, admin)
}

func (s *notificationService) dispatchBooking(ctx context.Context, b *domain.ExperienceBooking, override bool) (DispatchResult, error) {
	ref := b.Payable().Reference
	payload := mail.Payload{
		Type:       domain.EmailBookingConfirmation,
		Name:       b.CustomerName,
		Reference:  ref,
		Total:      b.TotalAmount.StringFixed(2),
		Experience: string(b.ExperienceType),
		Date:       b.BookingDate.Format("2 Jan 2006"),
		TimeSlot:   b.TimeSlot,
		Guests:     b.Guests,
	}
	admin := domain.NewAdminNotification("booking_confirmation",
		"Booking confirmed: "+ref,
		fmt.Sprintf("%s experience on %s for %d guest(s), Rs. %s", b.ExperienceType, payload.Date, b.Guests, payload.Total),
		domain.EntityBooking, b.ID)
	return s.dispatch(ctx, domain.EntityBooking, b.ID, override, b.CustomerEmail, payload, admin)
}

func (s *notificationService) dispatchCustom(ctx context.Context, c *domain.CustomOrderRequest, typ domain.EmailType, override bool) (DispatchResult, error) {
	payload := mail.Payload{
		Type:      typ,
		Name:      c.RequesterName,
		Reference: "CUS-" + c.ID.String()[:8],
		Note:      c.AdminNotes,
	}
	if c.EstimatedPrice.Valid {
		payload.EstimatedCost = c.EstimatedPrice.Decimal.StringFixed(2)
	}
	if c.EstimatedDelivery != nil {
		payload.EstimatedDate = c.EstimatedDelivery.Format("2 Jan 2006")
	}
	if typ == domain.EmailCustomQuote && payload.EstimatedCost == "" {
		return DispatchResult{}, apperr.Conflict("custom order has no quote yet")
	}
	admin := domain.NewAdminNotification(string(typ),
		"Custom order email: "+payload.Reference,
		fmt.Sprintf("%s sent to %s", typ, c.RequesterEmail),
		domain.EntityCustomOrder, c.ID)
	return s.dispatch(ctx, domain.EntityCustomOrder, c.ID, override, c.RequesterEmail, payload, admin)
}

func (s *notificationService) dispatch(
	ctx context.Context,
	entity domain.EntityType,
	entityID uuid.UUID,
	override bool,
	to string,
	payload mail.Payload,
	admin *domain.AdminNotification,
) (DispatchResult, error) {
	logger := log.WithFields(log.Fields{
		"entity":     entity,
		"entity_id":  entityID,
		"email_type": payload.Type,
		"override":   override,
	})
	if to == "" {
		logger.Warn("no recipient address, email skipped")
		s.NotifyAdmin(ctx, admin)
		return DispatchResult{}, nil
	}

	msg, err := mail.Render(to, payload)
	if err != nil {
		return DispatchResult{}, apperr.Internal(err)
	}

	event := &domain.EmailEvent{
		ID:         uuid.New(),
		EntityType: entity,
		EntityID:   entityID,
		EmailType:  payload.Type,
		Override:   override,
		Status:     domain.EmailClaimed,
		CreatedAt:  time.Now().UTC(),
	}
	claimed, err := s.notes.ClaimEmail(ctx, event)
	if err != nil {
		return DispatchResult{}, apperr.Internal(err)
	}
	if !claimed {
		logger.Info("email already in ledger, not resending")
		return DispatchResult{AlreadySent: true}, nil
	}

	s.NotifyAdmin(ctx, admin)

	if err := s.mailer.Send(ctx, msg); err != nil {
		logger.WithError(err).Error("email send failed")
		s.setStatus(ctx, event.ID, domain.EmailFailed)
		return DispatchResult{}, apperr.Wrap(apperr.KindUpstream, ErrEmailFailed.Message, err)
	}
	s.setStatus(ctx, event.ID, domain.EmailSent)
	logger.Info("email sent")
	return DispatchResult{Sent: true}, nil
}

func (s *notificationService) setStatus(ctx context.Context, id uuid.UUID, status domain.EmailStatus) {
	if err := s.notes.SetEmailStatus(ctx, id, status); err != nil {
		log.WithError(err).WithField("email_event_id", id).Error("update email ledger status")
	}
}

// NotifyAdmin records the notification and mails the admin copy. Failures
// are logged; they never fail the caller's operation.
func (s *notificationService) NotifyAdmin(ctx context.Context, n *domain.AdminNotification) {
	if n == nil {
		return
	}
	if err := s.notes.CreateAdminNotification(ctx, n); err != nil {
		log.WithError(err).WithField("kind", n.Kind).Error("write admin notification")
	}
	if s.cfg.AdminEmail == "" {
		return
	}
	if err := s.mailer.Send(ctx, mail.Message{To: s.cfg.AdminEmail, Subject: "[studio] " + n.Title, Body: n.Message + "\n"}); err != nil {
		log.WithError(err).WithField("kind", n.Kind).Warn("admin copy not sent")
	}
}

func (s *notificationService) ListAdminNotifications(ctx context.Context, caller domain.Identity, unreadOnly bool, limit int) ([]domain.AdminNotification, error) {
	if !caller.IsAdmin() {
		return nil, apperr.Forbidden("admin only")
	}
	out, err := s.notes.ListAdminNotifications(ctx, unreadOnly, limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}

func (s *notificationService) MarkAdminNotificationRead(ctx context.Context, caller domain.Identity, id uuid.UUID) error {
	if !caller.IsAdmin() {
		return apperr.Forbidden("admin only")
	}
	if err := s.notes.MarkAdminNotificationRead(ctx, id); err != nil {
		return notFoundOr(err, "notification not found")
	}
	return nil
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.NotFound(message)
	}
	return apperr.Internal(err)
}
