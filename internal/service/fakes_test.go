package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"studio-checkout/internal/domain"
	"studio-checkout/internal/infrastructure/mail"
	"studio-checkout/internal/repo"
)

// store backs every fake repo with one mutex so conditional updates behave
// like the row-level compare-and-set the Postgres repos perform.
type store struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]*domain.Order
	bookings map[uuid.UUID]*domain.ExperienceBooking
	custom   map[uuid.UUID]*domain.CustomOrderRequest
	catalog  map[uuid.UUID]repo.CatalogItem
	emails   []domain.EmailEvent
	admin    []domain.AdminNotification

	// createErrs is consumed by CreateOrder, one error per call.
	createErrs []error
}

func newStore() *store {
	return &store{
		orders:   map[uuid.UUID]*domain.Order{},
		bookings: map[uuid.UUID]*domain.ExperienceBooking{},
		custom:   map[uuid.UUID]*domain.CustomOrderRequest{},
		catalog:  map[uuid.UUID]repo.CatalogItem{},
	}
}

type fakeTx struct{}

func (fakeTx) WithinTx(_ context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

// orders

type fakeOrders struct{ s *store }

func (f fakeOrders) FindById(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	o, ok := f.s.orders[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f fakeOrders) List(_ context.Context, filter repo.OrderFilter) ([]domain.Order, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []domain.Order
	for _, o := range f.s.orders {
		if filter.UserID != nil && (o.UserID == nil || *o.UserID != *filter.UserID) {
			continue
		}
		if filter.PaymentStatus != "" && o.PaymentStatus != filter.PaymentStatus {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f fakeOrders) CreateOrder(_ context.Context, _ *sql.Tx, order *domain.Order) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if len(f.s.createErrs) > 0 {
		err := f.s.createErrs[0]
		f.s.createErrs = f.s.createErrs[1:]
		if err != nil {
			return err
		}
	}
	cp := *order
	f.s.orders[order.ID] = &cp
	return nil
}

func (f fakeOrders) UpdateFulfillmentStatus(_ context.Context, _ *sql.Tx, id uuid.UUID, from, to domain.FulfillmentStatus) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	o, ok := f.s.orders[id]
	if !ok || o.FulfillmentStatus != from {
		return false, nil
	}
	o.FulfillmentStatus = to
	return true, nil
}

func (f fakeOrders) FindExpiredPending(_ context.Context, before time.Time, after *repo.ExpiryCursor, limit int) ([]domain.Order, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []domain.Order
	for _, o := range f.s.orders {
		if o.PaymentStatus == domain.PaymentPending && !o.NeedsReview && o.ExpiresAt.Before(before) {
			if after == nil || o.ExpiresAt.After(after.ExpiresAt) {
				out = append(out, *o)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f fakeOrders) MarkNeedsReview(_ context.Context, _ *sql.Tx, id uuid.UUID) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	o, ok := f.s.orders[id]
	if !ok || o.PaymentStatus != domain.PaymentPending || o.NeedsReview {
		return false, nil
	}
	o.NeedsReview = true
	return true, nil
}

func (f fakeOrders) ExpireOrder(_ context.Context, _ *sql.Tx, id uuid.UUID) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	o, ok := f.s.orders[id]
	if !ok || o.PaymentStatus != domain.PaymentPending {
		return false, nil
	}
	o.PaymentStatus = domain.PaymentFailed
	o.FulfillmentStatus = domain.FulfillmentCancelled
	return true, nil
}

// bookings

type fakeBookings struct{ s *store }

func (f fakeBookings) FindById(_ context.Context, id uuid.UUID) (*domain.ExperienceBooking, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	b, ok := f.s.bookings[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f fakeBookings) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.ExperienceBooking, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []domain.ExperienceBooking
	for _, b := range f.s.bookings {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f fakeBookings) CreateBooking(_ context.Context, _ *sql.Tx, booking *domain.ExperienceBooking) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	cp := *booking
	f.s.bookings[booking.ID] = &cp
	return nil
}

func (f fakeBookings) UpdateBookingStatus(_ context.Context, _ *sql.Tx, id uuid.UUID, from, to domain.BookingStatus) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	b, ok := f.s.bookings[id]
	if !ok || b.BookingStatus != from {
		return false, nil
	}
	b.BookingStatus = to
	return true, nil
}

func (f fakeBookings) FindUnpaidBefore(_ context.Context, day time.Time, limit int) ([]domain.ExperienceBooking, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []domain.ExperienceBooking
	for _, b := range f.s.bookings {
		if b.PaymentStatus == domain.PaymentPending && b.BookingDate.Before(day) {
			out = append(out, *b)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f fakeBookings) ExpireBooking(_ context.Context, _ *sql.Tx, id uuid.UUID) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	b, ok := f.s.bookings[id]
	if !ok || b.PaymentStatus != domain.PaymentPending {
		return false, nil
	}
	b.PaymentStatus = domain.PaymentFailed
	b.BookingStatus = domain.BookingCancelled
	return true, nil
}

// custom orders

type fakeCustom struct{ s *store }

func (f fakeCustom) FindById(_ context.Context, id uuid.UUID) (*domain.CustomOrderRequest, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.custom[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f fakeCustom) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.CustomOrderRequest, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []domain.CustomOrderRequest
	for _, c := range f.s.custom {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f fakeCustom) ListAll(_ context.Context, status domain.CustomOrderStatus, _ int) ([]domain.CustomOrderRequest, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []domain.CustomOrderRequest
	for _, c := range f.s.custom {
		if status == "" || c.Status == status {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f fakeCustom) Create(_ context.Context, _ *sql.Tx, req *domain.CustomOrderRequest) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	cp := *req
	f.s.custom[req.ID] = &cp
	return nil
}

func (f fakeCustom) UpdateStatus(_ context.Context, _ *sql.Tx, id uuid.UUID, from, to domain.CustomOrderStatus, adminNotes string) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.custom[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	if adminNotes != "" {
		c.AdminNotes = adminNotes
	}
	return true, nil
}

func (f fakeCustom) SetQuote(_ context.Context, _ *sql.Tx, id uuid.UUID, from domain.CustomOrderStatus, price decimal.Decimal, delivery *time.Time, adminNotes string) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.custom[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = domain.CustomPaymentPending
	c.EstimatedPrice = decimal.NewNullDecimal(price)
	c.EstimatedDelivery = delivery
	if adminNotes != "" {
		c.AdminNotes = adminNotes
	}
	return true, nil
}

// payments

type fakePayments struct{ s *store }

func (f fakePayments) FindPayable(_ context.Context, kind domain.PayableKind, id uuid.UUID) (*domain.Payable, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	p, ok := f.payableLocked(kind, id)
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &p, nil
}

func (f fakePayments) payableLocked(kind domain.PayableKind, id uuid.UUID) (domain.Payable, bool) {
	switch kind {
	case domain.PayableOrder:
		if o, ok := f.s.orders[id]; ok {
			return o.Payable(), true
		}
	case domain.PayableBooking:
		if b, ok := f.s.bookings[id]; ok {
			return b.Payable(), true
		}
	}
	return domain.Payable{}, false
}

// fields returns pointers to the payment columns of the record.
func (f fakePayments) fields(kind domain.PayableKind, id uuid.UUID) (status *domain.PaymentStatus, gwOrder, gwPayment *string) {
	switch kind {
	case domain.PayableOrder:
		if o, ok := f.s.orders[id]; ok {
			return &o.PaymentStatus, &o.GatewayOrderID, &o.GatewayPaymentID
		}
	case domain.PayableBooking:
		if b, ok := f.s.bookings[id]; ok {
			return &b.PaymentStatus, &b.GatewayOrderID, &b.GatewayPaymentID
		}
	}
	return nil, nil, nil
}

func (f fakePayments) AttachGatewayOrder(_ context.Context, _ *sql.Tx, kind domain.PayableKind, id uuid.UUID, gatewayOrderID string) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	status, gwOrder, _ := f.fields(kind, id)
	if status == nil || *status != domain.PaymentPending || *gwOrder != "" {
		return false, nil
	}
	*gwOrder = gatewayOrderID
	return true, nil
}

func (f fakePayments) MarkPaid(_ context.Context, _ *sql.Tx, kind domain.PayableKind, id uuid.UUID, gatewayOrderID, gatewayPaymentID string) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	status, gwOrder, gwPayment := f.fields(kind, id)
	if status == nil || *status != domain.PaymentPending || *gwOrder != gatewayOrderID {
		return false, nil
	}
	*status = domain.PaymentPaid
	*gwPayment = gatewayPaymentID
	return true, nil
}

func (f fakePayments) MarkFailed(_ context.Context, _ *sql.Tx, kind domain.PayableKind, id uuid.UUID) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	status, _, _ := f.fields(kind, id)
	if status == nil || *status != domain.PaymentPending {
		return false, nil
	}
	*status = domain.PaymentFailed
	return true, nil
}

// notifications

type fakeNotes struct{ s *store }

func (f fakeNotes) ClaimEmail(_ context.Context, event *domain.EmailEvent) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if !event.Override {
		for _, e := range f.s.emails {
			if !e.Override && e.EntityType == event.EntityType && e.EntityID == event.EntityID && e.EmailType == event.EmailType {
				return false, nil
			}
		}
	}
	f.s.emails = append(f.s.emails, *event)
	return true, nil
}

func (f fakeNotes) SetEmailStatus(_ context.Context, id uuid.UUID, status domain.EmailStatus) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i := range f.s.emails {
		if f.s.emails[i].ID == id {
			f.s.emails[i].Status = status
			return nil
		}
	}
	return repo.ErrNotFound
}

func (f fakeNotes) ListEmailEvents(_ context.Context, entity domain.EntityType, entityID uuid.UUID) ([]domain.EmailEvent, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []domain.EmailEvent
	for _, e := range f.s.emails {
		if e.EntityType == entity && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f fakeNotes) CreateAdminNotification(_ context.Context, n *domain.AdminNotification) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.admin = append(f.s.admin, *n)
	return nil
}

func (f fakeNotes) ListAdminNotifications(_ context.Context, unreadOnly bool, _ int) ([]domain.AdminNotification, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []domain.AdminNotification
	for _, n := range f.s.admin {
		if !unreadOnly || !n.Read {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f fakeNotes) MarkAdminNotificationRead(_ context.Context, id uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i := range f.s.admin {
		if f.s.admin[i].ID == id {
			f.s.admin[i].Read = true
			return nil
		}
	}
	return repo.ErrNotFound
}

func (s *store) adminKinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kinds []string
	for _, n := range s.admin {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

func (s *store) emailLedger() []domain.EmailEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.EmailEvent(nil), s.emails...)
}

// catalog

type fakeCatalog struct{ s *store }

func (f fakeCatalog) FindItems(_ context.Context, itemType domain.ItemType, ids []uuid.UUID) (map[uuid.UUID]repo.CatalogItem, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := map[uuid.UUID]repo.CatalogItem{}
	for _, id := range ids {
		if item, ok := f.s.catalog[id]; ok && item.Type == itemType {
			out[id] = item
		}
	}
	return out, nil
}

func (f fakeCatalog) UpsertItem(_ context.Context, item repo.CatalogItem) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.catalog[item.ID] = item
	return nil
}

// mailer

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// publisher

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.PaidEvent
	err    error
}

func (p *recordingPublisher) PublishPaid(_ context.Context, event domain.PaidEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
