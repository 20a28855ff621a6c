package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type FulfillmentStatus string

const (
	FulfillmentPending   FulfillmentStatus = "pending"
	FulfillmentConfirmed FulfillmentStatus = "confirmed"
	FulfillmentShipped   FulfillmentStatus = "shipped"
	FulfillmentDelivered FulfillmentStatus = "delivered"
	FulfillmentCancelled FulfillmentStatus = "cancelled"
)

func (s FulfillmentStatus) Valid() bool {
	switch s {
	case FulfillmentPending, FulfillmentConfirmed, FulfillmentShipped, FulfillmentDelivered, FulfillmentCancelled:
		return true
	}
	return false
}

type ItemType string

const (
	ItemProduct  ItemType = "product"
	ItemWorkshop ItemType = "workshop"
)

func (t ItemType) Valid() bool {
	return t == ItemProduct || t == ItemWorkshop
}

var (
	ErrNoItems           = errors.New("order has no items")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrNegativeAmount    = errors.New("amount must not be negative")
	ErrTotalMismatch     = errors.New("total does not equal subtotal plus shipping")
	ErrLineTotalMismatch = errors.New("line total does not equal unit price times quantity")
)

type Customer struct {
	Name  string
	Email string
	Phone string
}

type Order struct {
	ID                uuid.UUID
	OrderNumber       string
	UserID            *uuid.UUID
	SessionID         string
	Customer          Customer
	ShippingAddress   string
	TaxID             string
	Subtotal          decimal.Decimal
	ShippingCost      decimal.Decimal
	TotalAmount       decimal.Decimal
	PaymentStatus     PaymentStatus
	FulfillmentStatus FulfillmentStatus
	GatewayOrderID    string
	GatewayPaymentID  string
	ExpiresAt         time.Time
	// NeedsReview is set when the gateway reports a payment that was never
	// verified here. The sweep leaves such orders pending.
	NeedsReview bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Items       []OrderItem
}

// OrderItem snapshots the catalog name and price at order time.
type OrderItem struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	ItemType   ItemType
	ItemRef    *uuid.UUID
	ItemName   string
	Quantity   int
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
}

func NewOrderItem(orderID uuid.UUID, itemType ItemType, ref *uuid.UUID, name string, quantity int, unitPrice decimal.Decimal) (OrderItem, error) {
	if quantity <= 0 {
		return OrderItem{}, ErrInvalidQuantity
	}
	if unitPrice.IsNegative() {
		return OrderItem{}, ErrNegativeAmount
	}
	return OrderItem{
		ID:         uuid.New(),
		OrderID:    orderID,
		ItemType:   itemType,
		ItemRef:    ref,
		ItemName:   name,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
		TotalPrice: unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}, nil
}

func (i OrderItem) Validate() error {
	if i.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if !i.TotalPrice.Equal(i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))) {
		return ErrLineTotalMismatch
	}
	return nil
}

// ShippingPolicy decides the shipping charge for a subtotal.
type ShippingPolicy struct {
	FlatFee               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

func (p ShippingPolicy) CostFor(subtotal decimal.Decimal, hasPhysicalItems bool) decimal.Decimal {
	if !hasPhysicalItems {
		return decimal.Zero
	}
	if !p.FreeShippingThreshold.IsZero() && subtotal.GreaterThanOrEqual(p.FreeShippingThreshold) {
		return decimal.Zero
	}
	return p.FlatFee
}

// NewOrder builds a pending order from already-priced line items. The
// order id on each item is rewritten to the new order's id.
func NewOrder(number string, customer Customer, address string, items []OrderItem, shipping ShippingPolicy, ttl time.Duration) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	now := time.Now().UTC()
	order := &Order{
		ID:                uuid.New(),
		OrderNumber:       number,
		Customer:          customer,
		ShippingAddress:   address,
		PaymentStatus:     PaymentPending,
		FulfillmentStatus: FulfillmentPending,
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpiresAt:         now.Add(ttl),
	}

	subtotal := decimal.Zero
	physical := false
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return nil, err
		}
		item.OrderID = order.ID
		subtotal = subtotal.Add(item.TotalPrice)
		if item.ItemType == ItemProduct {
			physical = true
		}
		order.Items = append(order.Items, item)
	}

	order.Subtotal = subtotal
	order.ShippingCost = shipping.CostFor(subtotal, physical)
	order.TotalAmount = subtotal.Add(order.ShippingCost)
	return order, nil
}

func (o *Order) Validate() error {
	if len(o.Items) == 0 {
		return ErrNoItems
	}
	if o.Subtotal.IsNegative() || o.ShippingCost.IsNegative() {
		return ErrNegativeAmount
	}
	if !o.TotalAmount.Equal(o.Subtotal.Add(o.ShippingCost)) {
		return ErrTotalMismatch
	}
	for _, item := range o.Items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// OwnedBy reports whether the identity may act on the order. Guest orders
// are matched on the checkout session id.
func (o *Order) OwnedBy(id Identity) bool {
	return o.Payable().OwnedBy(id)
}

func (o *Order) Payable() Payable {
	return Payable{
		Kind:             PayableOrder,
		ID:               o.ID,
		Reference:        o.OrderNumber,
		Amount:           o.TotalAmount,
		PaymentStatus:    o.PaymentStatus,
		GatewayOrderID:   o.GatewayOrderID,
		GatewayPaymentID: o.GatewayPaymentID,
		UserID:           o.UserID,
		SessionID:        o.SessionID,
		Customer:         o.Customer,
		ExpiresAt:        o.ExpiresAt,
	}
}
