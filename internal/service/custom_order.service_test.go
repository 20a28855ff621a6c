package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-checkout/internal/apperr"
	"studio-checkout/internal/domain"
)

func newCustomFixture(t *testing.T) (*harness, CustomOrderService) {
	h := newHarness(t)
	return h, NewCustomOrderService(fakeTx{}, fakeCustom{h.store}, h.notifier)
}

func createCustom(t *testing.T, svc CustomOrderService, caller domain.Identity) *domain.CustomOrderRequest {
	t.Helper()
	req, err := svc.Create(context.Background(), CreateCustomOrderInput{
		Caller:          caller,
		RequesterName:   "Asha Rao",
		Size:            "30cm planter",
		Usage:           "balcony herbs",
		ReferenceImages: []string{"https://cdn.example.com/ref/planter.jpg"},
	})
	require.NoError(t, err)
	return req
}

func TestCustomOrder_CreateSendsReceipt(t *testing.T) {
	h, svc := newCustomFixture(t)
	caller := customer()

	req := createCustom(t, svc, caller)

	assert.Equal(t, domain.CustomPending, req.Status)
	assert.Equal(t, caller.Email, req.RequesterEmail)
	require.Equal(t, 1, h.mailer.count())
	assert.Equal(t, "We received your custom order request", h.mailer.sent[0].Subject)
	assert.Contains(t, h.store.adminKinds(), "custom_order_request")
}

func TestCustomOrder_CreateValidation(t *testing.T) {
	_, svc := newCustomFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateCustomOrderInput{Caller: domain.Identity{SessionID: "guest"}})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = svc.Create(ctx, CreateCustomOrderInput{Caller: customer(), ReferenceImages: []string{"file:///etc/passwd"}})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	many := strings.Split(strings.Repeat("https://cdn.example.com/a.jpg,", 6), ",")[:6]
	_, err = svc.Create(ctx, CreateCustomOrderInput{Caller: customer(), ReferenceImages: many})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCustomOrder_Pipeline(t *testing.T) {
	h, svc := newCustomFixture(t)
	ctx := context.Background()
	admin := domain.Identity{UserID: uuid.New(), Role: domain.RoleAdmin}
	req := createCustom(t, svc, customer())

	require.NoError(t, svc.Transition(ctx, admin, req.ID, domain.CustomPending, domain.CustomUnderReview, ""))
	assert.Equal(t, 1, h.mailer.count(), "under review has no email")

	delivery := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.Quote(ctx, admin, req.ID, QuoteInput{
		From:     domain.CustomUnderReview,
		Price:    decimal.RequireFromString("4200.00"),
		Delivery: &delivery,
	}))
	require.Equal(t, 2, h.mailer.count())
	assert.Contains(t, h.mailer.sent[1].Body, "4200.00")

	steps := []domain.CustomOrderStatus{domain.CustomPaymentPending, domain.CustomPaymentDone, domain.CustomInProgress, domain.CustomInDelivery, domain.CustomDelivered}
	for i := 0; i+1 < len(steps); i++ {
		require.NoError(t, svc.Transition(ctx, admin, req.ID, steps[i], steps[i+1], ""))
	}
	assert.Equal(t, 6, h.mailer.count())

	stored, err := svc.Get(ctx, admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CustomDelivered, stored.Status)
}

func TestCustomOrder_TransitionGuards(t *testing.T) {
	h, svc := newCustomFixture(t)
	ctx := context.Background()
	admin := domain.Identity{UserID: uuid.New(), Role: domain.RoleAdmin}
	owner := customer()
	req := createCustom(t, svc, owner)

	err := svc.Transition(ctx, owner, req.ID, domain.CustomPending, domain.CustomUnderReview, "")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	err = svc.Transition(ctx, admin, req.ID, domain.CustomPending, domain.CustomDelivered, "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	err = svc.Transition(ctx, admin, req.ID, domain.CustomUnderReview, domain.CustomPaymentPending, "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "quotes go through Quote")

	// Stale from status.
	err = svc.Transition(ctx, admin, req.ID, domain.CustomUnderReview, domain.CustomRejected, "")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	err = svc.Quote(ctx, admin, req.ID, QuoteInput{From: domain.CustomUnderReview, Price: decimal.Zero})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	require.NoError(t, svc.Transition(ctx, admin, req.ID, domain.CustomPending, domain.CustomRejected, "out of scope"))
	stored, err := svc.Get(ctx, owner, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CustomRejected, stored.Status)
	assert.Equal(t, "out of scope", stored.AdminNotes)
	assert.Equal(t, 2, h.mailer.count())
}

func TestCustomOrder_Visibility(t *testing.T) {
	_, svc := newCustomFixture(t)
	ctx := context.Background()
	alice, bob := customer(), customer()
	mine := createCustom(t, svc, alice)
	createCustom(t, svc, bob)

	_, err := svc.Get(ctx, bob, mine.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	list, err := svc.List(ctx, alice, "")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = svc.List(ctx, domain.Identity{UserID: uuid.New(), Role: domain.RoleAdmin}, domain.CustomPending)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
