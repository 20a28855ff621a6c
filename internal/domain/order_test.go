package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testShipping = ShippingPolicy{
	FlatFee:               decimal.NewFromInt(150),
	FreeShippingThreshold: decimal.NewFromInt(1000),
}

func mustItem(t *testing.T, itemType ItemType, name string, qty int, price int64) OrderItem {
	t.Helper()
	item, err := NewOrderItem(uuid.Nil, itemType, nil, name, qty, decimal.NewFromInt(price))
	require.NoError(t, err)
	return item
}

func TestNewOrderItemLineTotal(t *testing.T) {
	cases := []struct {
		qty   int
		price string
		want  string
	}{
		{1, "450", "450"},
		{3, "199.50", "598.5"},
		{12, "0", "0"},
	}
	for _, tc := range cases {
		item, err := NewOrderItem(uuid.New(), ItemProduct, nil, "Mug", tc.qty, decimal.RequireFromString(tc.price))
		require.NoError(t, err)
		assert.True(t, item.TotalPrice.Equal(decimal.RequireFromString(tc.want)), "got %s", item.TotalPrice)
		assert.NoError(t, item.Validate())
	}
}

func TestNewOrderItemRejectsBadInput(t *testing.T) {
	_, err := NewOrderItem(uuid.New(), ItemProduct, nil, "Bowl", 0, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = NewOrderItem(uuid.New(), ItemProduct, nil, "Bowl", 1, decimal.NewFromInt(-10))
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestOrderItemValidateDetectsTamperedTotal(t *testing.T) {
	item := mustItem(t, ItemProduct, "Vase", 2, 300)
	item.TotalPrice = decimal.NewFromInt(500)
	assert.ErrorIs(t, item.Validate(), ErrLineTotalMismatch)
}

func TestNewOrderFreeShippingAtThreshold(t *testing.T) {
	order, err := NewOrder("ORD-1", Customer{Name: "Asha"}, "12 Kiln Road", []OrderItem{
		mustItem(t, ItemProduct, "Planter", 2, 500),
	}, testShipping, time.Hour)
	require.NoError(t, err)

	assert.True(t, order.Subtotal.Equal(decimal.NewFromInt(1000)))
	assert.True(t, order.ShippingCost.IsZero())
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, PaymentPending, order.PaymentStatus)
	assert.Equal(t, FulfillmentPending, order.FulfillmentStatus)
	for _, item := range order.Items {
		assert.Equal(t, order.ID, item.OrderID)
	}
	assert.NoError(t, order.Validate())
}

func TestNewOrderChargesShippingBelowThreshold(t *testing.T) {
	order, err := NewOrder("ORD-2", Customer{}, "addr", []OrderItem{
		mustItem(t, ItemProduct, "Cup", 1, 400),
		mustItem(t, ItemProduct, "Saucer", 1, 250),
	}, testShipping, time.Hour)
	require.NoError(t, err)

	assert.True(t, order.Subtotal.Equal(decimal.NewFromInt(650)))
	assert.True(t, order.ShippingCost.Equal(decimal.NewFromInt(150)))
	assert.True(t, order.TotalAmount.Equal(order.Subtotal.Add(order.ShippingCost)))
}

func TestNewOrderWorkshopOnlyShipsFree(t *testing.T) {
	order, err := NewOrder("ORD-3", Customer{}, "", []OrderItem{
		mustItem(t, ItemWorkshop, "Wheel throwing basics", 1, 800),
	}, testShipping, time.Hour)
	require.NoError(t, err)
	assert.True(t, order.ShippingCost.IsZero())
}

func TestNewOrderRequiresItems(t *testing.T) {
	_, err := NewOrder("ORD-4", Customer{}, "", nil, testShipping, time.Hour)
	assert.ErrorIs(t, err, ErrNoItems)
}

func TestOrderValidateTotalInvariant(t *testing.T) {
	order, err := NewOrder("ORD-5", Customer{}, "", []OrderItem{mustItem(t, ItemProduct, "Jar", 1, 100)}, testShipping, time.Hour)
	require.NoError(t, err)

	order.TotalAmount = order.TotalAmount.Add(decimal.NewFromInt(1))
	assert.ErrorIs(t, order.Validate(), ErrTotalMismatch)
}

func TestOrderOwnership(t *testing.T) {
	owner := uuid.New()
	order := &Order{UserID: &owner}

	assert.True(t, order.OwnedBy(Identity{UserID: owner}))
	assert.False(t, order.OwnedBy(Identity{UserID: uuid.New()}))
	assert.False(t, order.OwnedBy(Identity{SessionID: "s-1"}))
	assert.True(t, order.OwnedBy(Identity{UserID: uuid.New(), Role: RoleAdmin}))

	guest := &Order{SessionID: "s-1"}
	assert.True(t, guest.OwnedBy(Identity{SessionID: "s-1"}))
	assert.False(t, guest.OwnedBy(Identity{SessionID: "s-2"}))
	assert.False(t, guest.OwnedBy(Identity{}))
}

func TestPayableExpiry(t *testing.T) {
	order, err := NewOrder("ORD-2", Customer{Name: "Asha"}, "12 Kiln Road", []OrderItem{
		mustItem(t, ItemProduct, "Planter", 1, 500),
	}, testShipping, time.Hour)
	require.NoError(t, err)

	p := order.Payable()
	assert.Equal(t, order.ExpiresAt, p.ExpiresAt)
	assert.False(t, p.Expired(p.ExpiresAt.Add(-time.Second)))
	assert.True(t, p.Expired(p.ExpiresAt))
	assert.False(t, Payable{}.Expired(time.Now()), "no window set")
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(100000), MinorUnits(decimal.NewFromInt(1000)))
	assert.Equal(t, int64(19950), MinorUnits(decimal.RequireFromString("199.50")))
	assert.Equal(t, int64(1), MinorUnits(decimal.RequireFromString("0.005")))
}

func TestNewOrderNumber(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		n, err := NewOrderNumber(now)
		require.NoError(t, err)
		assert.Regexp(t, `^ORD-20260314-092653-[0-9A-HJKMNP-TV-Z]{6}$`, n)
		assert.False(t, seen[n], "duplicate order number %s", n)
		seen[n] = true
	}
}
