package payment

import (
	"context"
	"errors"
)

// Gateway order states as reported by the provider.
const (
	OrderCreated   = "created"
	OrderAttempted = "attempted"
	OrderPaid      = "paid"
)

var ErrGatewayOrderNotFound = errors.New("gateway order not found")

type CreateOrderRequest struct {
	// Amount is in minor units (paise).
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// PaymentGateway is the hosted payment provider. CreateOrder is never
// retried by callers; FetchOrderStatus is read-only.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*GatewayOrder, error)
	FetchOrderStatus(ctx context.Context, gatewayOrderID string) (string, error)
	// KeyID is the publishable key the client surface needs.
	KeyID() string
}
