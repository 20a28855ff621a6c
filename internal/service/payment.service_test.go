package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-checkout/internal/apperr"
	"studio-checkout/internal/domain"
	"studio-checkout/internal/infrastructure/payment"
	"studio-checkout/internal/infrastructure/ratelimit"
)

const testSecret = "rzp_test_secret"

type harness struct {
	store    *store
	gateway  *payment.MockGateway
	mailer   *recordingMailer
	events   *recordingPublisher
	limiter  *ratelimit.MemoryLimiter
	notifier NotificationService
	payments PaymentService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   newStore(),
		gateway: payment.NewMockGateway("rzp_test_key", testSecret),
		mailer:  &recordingMailer{},
		events:  &recordingPublisher{},
		limiter: ratelimit.NewMemoryLimiter(),
	}
	h.notifier = NewNotificationService(
		fakeOrders{h.store}, fakeBookings{h.store}, fakeCustom{h.store}, fakeNotes{h.store},
		h.limiter, h.mailer,
		NotificationConfig{RateLimit: 5, RateWindow: time.Hour, Cooldown: 5 * time.Minute},
	)
	h.payments = NewPaymentService(fakeTx{}, fakePayments{h.store}, h.gateway, h.notifier, h.events,
		PaymentConfig{Currency: "INR", Secret: testSecret})
	return h
}

func (h *harness) seedOrder(owner domain.Identity, total string) *domain.Order {
	amount := decimal.RequireFromString(total)
	now := time.Now().UTC()
	o := &domain.Order{
		ID:                uuid.New(),
		OrderNumber:       "ORD-" + uuid.NewString()[:8],
		UserID:            owner.UserRef(),
		Customer:          domain.Customer{Name: "Asha Rao", Email: "asha@example.com", Phone: "9800000000"},
		ShippingAddress:   "12 Kiln Lane, Pune",
		Subtotal:          amount,
		ShippingCost:      decimal.Zero,
		TotalAmount:       amount,
		PaymentStatus:     domain.PaymentPending,
		FulfillmentStatus: domain.FulfillmentPending,
		ExpiresAt:         now.Add(30 * time.Minute),
		CreatedAt:         now,
		UpdatedAt:         now,
		Items: []domain.OrderItem{{
			ID: uuid.New(), ItemType: domain.ItemProduct, ItemName: "Speckled mug",
			Quantity: 1, UnitPrice: amount, TotalPrice: amount,
		}},
	}
	if o.UserID == nil {
		o.SessionID = owner.SessionID
	}
	h.store.mu.Lock()
	h.store.orders[o.ID] = o
	h.store.mu.Unlock()
	return o
}

func (h *harness) order(id uuid.UUID) domain.Order {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return *h.store.orders[id]
}

func customer() domain.Identity {
	return domain.Identity{UserID: uuid.New(), Email: "asha@example.com"}
}

func TestBeginPayment_CreatesGatewayOrderOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caller := customer()
	order := h.seedOrder(caller, "2500.00")

	first, err := h.payments.BeginPayment(ctx, caller, domain.PayableOrder, order.ID)
	require.NoError(t, err)
	second, err := h.payments.BeginPayment(ctx, caller, domain.PayableOrder, order.ID)
	require.NoError(t, err)

	assert.Equal(t, first.GatewayOrderID, second.GatewayOrderID)
	assert.Equal(t, 1, h.gateway.CreateCalls())
	assert.Equal(t, int64(250000), first.Amount)
	assert.Equal(t, "INR", first.Currency)
	assert.Equal(t, "rzp_test_key", first.KeyID)
	assert.Equal(t, order.OrderNumber, first.Receipt)
	assert.Equal(t, first.GatewayOrderID, h.order(order.ID).GatewayOrderID)
}

func TestBeginPayment_MissingOrderNeverReachesGateway(t *testing.T) {
	h := newHarness(t)

	_, err := h.payments.BeginPayment(context.Background(), customer(), domain.PayableOrder, uuid.New())

	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Zero(t, h.gateway.CreateCalls())
}

func TestBeginPayment_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := customer()

	t.Run("other user", func(t *testing.T) {
		order := h.seedOrder(owner, "100.00")
		_, err := h.payments.BeginPayment(ctx, customer(), domain.PayableOrder, order.ID)
		assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	})

	t.Run("already paid", func(t *testing.T) {
		order := h.seedOrder(owner, "100.00")
		h.store.orders[order.ID].PaymentStatus = domain.PaymentPaid
		_, err := h.payments.BeginPayment(ctx, owner, domain.PayableOrder, order.ID)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := h.payments.BeginPayment(ctx, owner, domain.PayableKind("gift"), uuid.New())
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	assert.Zero(t, h.gateway.CreateCalls())
}

func TestBeginPayment_GuestSession(t *testing.T) {
	h := newHarness(t)
	guest := domain.Identity{SessionID: "sess-42"}
	order := h.seedOrder(guest, "640.00")

	session, err := h.payments.BeginPayment(context.Background(), guest, domain.PayableOrder, order.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, session.GatewayOrderID)

	_, err = h.payments.BeginPayment(context.Background(), domain.Identity{SessionID: "sess-43"}, domain.PayableOrder, order.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestBeginPayment_GatewayFailureLeavesOrderUntouched(t *testing.T) {
	h := newHarness(t)
	caller := customer()
	order := h.seedOrder(caller, "999.00")
	h.gateway.FailCreates(errors.New("502 bad gateway"))

	_, err := h.payments.BeginPayment(context.Background(), caller, domain.PayableOrder, order.ID)

	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	stored := h.order(order.ID)
	assert.Equal(t, domain.PaymentPending, stored.PaymentStatus)
	assert.Empty(t, stored.GatewayOrderID)
}

func TestBeginPayment_ExpiredOrderNeverReachesGateway(t *testing.T) {
	h := newHarness(t)
	caller := customer()
	order := h.seedOrder(caller, "500.00")
	h.store.mu.Lock()
	h.store.orders[order.ID].ExpiresAt = time.Now().Add(-2 * time.Hour)
	h.store.mu.Unlock()

	session, err := h.payments.BeginPayment(context.Background(), caller, domain.PayableOrder, order.ID)

	assert.Nil(t, session)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Zero(t, h.gateway.CreateCalls())
	stored := h.order(order.ID)
	assert.Equal(t, domain.PaymentPending, stored.PaymentStatus)
	assert.Empty(t, stored.GatewayOrderID)
}

func TestBeginPayment_ExpiredOrderWithAttachedGatewayOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caller := customer()
	order := h.seedOrder(caller, "500.00")
	_, err := h.payments.BeginPayment(ctx, caller, domain.PayableOrder, order.ID)
	require.NoError(t, err)

	h.store.mu.Lock()
	h.store.orders[order.ID].ExpiresAt = time.Now().Add(-time.Minute)
	h.store.mu.Unlock()

	_, err = h.payments.BeginPayment(ctx, caller, domain.PayableOrder, order.ID)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

// stalledPayments hangs on MarkPaid until its deadline passes, like a bounded
// repo in front of a database that stopped answering.
type stalledPayments struct {
	fakePayments
	timeout time.Duration
}

func (f stalledPayments) MarkPaid(ctx context.Context, _ *sql.Tx, kind domain.PayableKind, id uuid.UUID, _, _ string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	<-ctx.Done()
	return false, fmt.Errorf("mark %s %s paid: %w", kind, id, ctx.Err())
}

func TestVerify_StalledStoreFailsClosed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caller := customer()
	order := h.seedOrder(caller, "800.00")
	session, err := h.payments.BeginPayment(ctx, caller, domain.PayableOrder, order.ID)
	require.NoError(t, err)
	completion, err := h.gateway.Pay(ctx, session.GatewayOrderID, payment.PaySuccess)
	require.NoError(t, err)

	stalled := NewPaymentService(fakeTx{}, stalledPayments{fakePayments{h.store}, 20 * time.Millisecond},
		h.gateway, h.notifier, h.events, PaymentConfig{Currency: "INR", Secret: testSecret})

	start := time.Now()
	result, err := stalled.Verify(ctx, verifyRequest(domain.PayableOrder, order.ID, completion))

	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, result.Verified)
	assert.Equal(t, domain.PaymentPending, h.order(order.ID).PaymentStatus)
	assert.Zero(t, h.mailer.count())
	assert.Zero(t, h.events.count())
}

func TestVerify_SuccessfulPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caller := customer()
	order := h.seedOrder(caller, "2500.00")

	session, err := h.payments.BeginPayment(ctx, caller, domain.PayableOrder, order.ID)
	require.NoError(t, err)
	completion, err := h.gateway.Pay(ctx, session.GatewayOrderID, payment.PaySuccess)
	require.NoError(t, err)

	result, err := h.payments.Verify(ctx, verifyRequest(domain.PayableOrder, order.ID, completion))
	require.NoError(t, err)

	assert.True(t, result.Verified)
	assert.Equal(t, domain.OutcomeVerified, result.Outcome)
	stored := h.order(order.ID)
	assert.Equal(t, domain.PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, completion.GatewayPaymentID, stored.GatewayPaymentID)
	assert.Equal(t, 1, h.mailer.count())
	assert.Equal(t, "asha@example.com", h.mailer.sent[0].To)
	require.Equal(t, 1, h.events.count())
	assert.Equal(t, order.ID, h.events.events[0].LocalID)
	assert.Equal(t, "2500.00", h.events.events[0].Amount)

	ledger := h.store.emailLedger()
	require.Len(t, ledger, 1)
	assert.Equal(t, domain.EmailSent, ledger[0].Status)
	assert.Contains(t, h.store.adminKinds(), "order_confirmation")
}

func TestVerify_ConcurrentCompletionsApplyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caller := customer()
	order := h.seedOrder(caller, "1200.00")

	session, err := h.payments.BeginPayment(ctx, caller, domain.PayableOrder, order.ID)
	require.NoError(t, err)
	completion, err := h.gateway.Pay(ctx, session.GatewayOrderID, payment.PaySuccess)
	require.NoError(t, err)

	const workers = 10
	results := make([]domain.VerifyResult, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.payments.Verify(ctx, verifyRequest(domain.PayableOrder, order.ID, completion))
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	outcomes := map[domain.VerifyOutcome]int{}
	for _, res := range results {
		assert.True(t, res.Verified)
		outcomes[res.Outcome]++
	}
	assert.Equal(t, 1, outcomes[domain.OutcomeVerified])
	assert.Equal(t, workers-1, outcomes[domain.OutcomeAlreadyPaid])
	assert.Equal(t, 1, h.mailer.count())
	assert.Equal(t, 1, h.events.count())
}

func TestVerify_SignatureMismatchChangesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caller := customer()
	order := h.seedOrder(caller, "450.00")

	session, err := h.payments.BeginPayment(ctx, caller, domain.PayableOrder, order.ID)
	require.NoError(t, err)
	completion, err := h.gateway.Pay(ctx, session.GatewayOrderID, payment.PaySuccess)
	require.NoError(t, err)
	completion.Signature = payment.Sign("some-other-secret", completion.GatewayOrderID, completion.GatewayPaymentID)

	result, err := h.payments.Verify(ctx, verifyRequest(domain.PayableOrder, order.ID, completion))
	require.NoError(t, err)

	assert.False(t, result.Verified)
	assert.Equal(t, domain.OutcomeSignatureMismatch, result.Outcome)
	assert.Equal(t, domain.PaymentPending, h.order(order.ID).PaymentStatus)
	assert.Zero(t, h.mailer.count())
	assert.Zero(t, h.events.count())
}

func TestVerify_CompletionForAnotherGatewayOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caller := customer()
	cheap := h.seedOrder(caller, "10.00")
	dear := h.seedOrder(caller, "9000.00")

	cheapSession, err := h.payments.BeginPayment(ctx, caller, domain.PayableOrder, cheap.ID)
	require.NoError(t, err)
	_, err = h.payments.BeginPayment(ctx, caller, domain.PayableOrder, dear.ID)
	require.NoError(t, err)
	completion, err := h.gateway.Pay(ctx, cheapSession.GatewayOrderID, payment.PaySuccess)
	require.NoError(t, err)

	// A genuine signature for the cheap order replayed against the dear one.
	result, err := h.payments.Verify(ctx, verifyRequest(domain.PayableOrder, dear.ID, completion))
	require.NoError(t, err)

	assert.False(t, result.Verified)
	assert.Equal(t, domain.OutcomeOrderMismatch, result.Outcome)
	assert.Equal(t, domain.PaymentPending, h.order(dear.ID).PaymentStatus)
	assert.Zero(t, h.events.count())
}

func TestVerify_PaymentAfterCancelNeedsReview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caller := customer()
	order := h.seedOrder(caller, "780.00")

	session, err := h.payments.BeginPayment(ctx, caller, domain.PayableOrder, order.ID)
	require.NoError(t, err)
	require.NoError(t, h.payments.Cancel(ctx, caller, domain.PayableOrder, order.ID))
	completion, err := h.gateway.Pay(ctx, session.GatewayOrderID, payment.PaySuccess)
	require.NoError(t, err)

	result, err := h.payments.Verify(ctx, verifyRequest(domain.PayableOrder, order.ID, completion))
	require.NoError(t, err)

	assert.False(t, result.Verified)
	assert.Equal(t, domain.OutcomeNotPayable, result.Outcome)
	assert.Equal(t, domain.PaymentFailed, h.order(order.ID).PaymentStatus)
	assert.Contains(t, h.store.adminKinds(), "needs_manual_review")
	assert.Zero(t, h.events.count())
}

func TestVerify_EmailFailureKeepsPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caller := customer()
	order := h.seedOrder(caller, "300.00")
	h.mailer.err = errors.New("smtp: 421 service not available")

	session, err := h.payments.BeginPayment(ctx, caller, domain.PayableOrder, order.ID)
	require.NoError(t, err)
	completion, err := h.gateway.Pay(ctx, session.GatewayOrderID, payment.PaySuccess)
	require.NoError(t, err)

	result, err := h.payments.Verify(ctx, verifyRequest(domain.PayableOrder, order.ID, completion))
	require.NoError(t, err)

	assert.True(t, result.Verified)
	assert.Equal(t, domain.PaymentPaid, h.order(order.ID).PaymentStatus)
	ledger := h.store.emailLedger()
	require.Len(t, ledger, 1)
	assert.Equal(t, domain.EmailFailed, ledger[0].Status)
	assert.Equal(t, 1, h.events.count())
}

func TestVerify_IncompleteCompletion(t *testing.T) {
	h := newHarness(t)

	_, err := h.payments.Verify(context.Background(), VerifyRequest{Kind: domain.PayableOrder, LocalID: uuid.New()})

	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestVerify_Booking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caller := customer()
	booking, err := domain.NewExperienceBooking(domain.BookingRequest{
		UserID:         caller.UserID,
		CustomerName:   "Asha Rao",
		CustomerEmail:  caller.Email,
		ExperienceType: domain.ExperienceStudio,
		BookingDate:    time.Now().Add(72 * time.Hour),
		TimeSlot:       "10:00-12:00",
		Guests:         3,
	}, domain.ExperiencePricing{domain.ExperienceStudio: decimal.NewFromInt(1500)}, 10, time.Now())
	require.NoError(t, err)
	h.store.bookings[booking.ID] = booking

	session, err := h.payments.BeginPayment(ctx, caller, domain.PayableBooking, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(450000), session.Amount)
	completion, err := h.gateway.Pay(ctx, session.GatewayOrderID, payment.PaySuccess)
	require.NoError(t, err)

	result, err := h.payments.Verify(ctx, verifyRequest(domain.PayableBooking, booking.ID, completion))
	require.NoError(t, err)

	assert.True(t, result.Verified)
	assert.Equal(t, domain.PaymentPaid, h.store.bookings[booking.ID].PaymentStatus)
	assert.Equal(t, 1, h.mailer.count())
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caller := customer()
	order := h.seedOrder(caller, "150.00")

	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(h.payments.Cancel(ctx, customer(), domain.PayableOrder, order.ID)))
	require.NoError(t, h.payments.Cancel(ctx, caller, domain.PayableOrder, order.ID))
	assert.Equal(t, domain.PaymentFailed, h.order(order.ID).PaymentStatus)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(h.payments.Cancel(ctx, caller, domain.PayableOrder, order.ID)))
}

func verifyRequest(kind domain.PayableKind, id uuid.UUID, c domain.PaymentCompletion) VerifyRequest {
	return VerifyRequest{
		Kind:             kind,
		LocalID:          id,
		GatewayOrderID:   c.GatewayOrderID,
		GatewayPaymentID: c.GatewayPaymentID,
		Signature:        c.Signature,
	}
}
