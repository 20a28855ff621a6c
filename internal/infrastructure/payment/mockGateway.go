package payment

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"studio-checkout/internal/domain"
)

var (
	ErrCardDeclined      = errors.New("card declined")
	ErrConnectionTimeout = errors.New("connection timeout")
)

// PayOutcome drives what the simulated customer experiences at checkout.
type PayOutcome int

const (
	PayRandom PayOutcome = iota
	PaySuccess
	PayDeclined
	// PayPhantom captures the money but the completion never reaches the
	// client, leaving the local order pending while the gateway says paid.
	PayPhantom
)

// MockGateway is an in-process gateway for local runs and tests. It signs
// completions with the same secret the verifier uses.
type MockGateway struct {
	mu        sync.RWMutex
	keyID     string
	secret    string
	orders    map[string]*GatewayOrder
	seq       int
	creates   int
	createErr error
	latency   time.Duration
}

func NewMockGateway(keyID, secret string) *MockGateway {
	return &MockGateway{
		keyID:  keyID,
		secret: secret,
		orders: make(map[string]*GatewayOrder),
	}
}

// WithLatency delays every Pay call, like a slow hosted checkout.
func (g *MockGateway) WithLatency(d time.Duration) *MockGateway {
	g.latency = d
	return g
}

// FailCreates makes CreateOrder return err until called again with nil.
func (g *MockGateway) FailCreates(err error) {
	g.mu.Lock()
	g.createErr = err
	g.mu.Unlock()
}

// CreateCalls reports how many times CreateOrder was invoked.
func (g *MockGateway) CreateCalls() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.creates
}

func (g *MockGateway) KeyID() string {
	return g.keyID
}

func (g *MockGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (*GatewayOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.creates++
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.seq++
	order := &GatewayOrder{
		ID:       fmt.Sprintf("order_mock%06d", g.seq),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   OrderCreated,
	}
	g.orders[order.ID] = order
	copied := *order
	return &copied, nil
}

func (g *MockGateway) FetchOrderStatus(ctx context.Context, gatewayOrderID string) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	order, ok := g.orders[gatewayOrderID]
	if !ok {
		return "", ErrGatewayOrderNotFound
	}
	return order.Status, nil
}

// Pay plays the customer side of the hosted checkout for gatewayOrderID and
// returns the signed completion the client would receive.
func (g *MockGateway) Pay(ctx context.Context, gatewayOrderID string, outcome PayOutcome) (domain.PaymentCompletion, error) {
	g.mu.RLock()
	_, ok := g.orders[gatewayOrderID]
	g.mu.RUnlock()
	if !ok {
		return domain.PaymentCompletion{}, ErrGatewayOrderNotFound
	}

	if outcome == PayRandom {
		chance := rand.IntN(100)
		switch {
		case chance < 70:
			outcome = PaySuccess
		case chance < 90:
			outcome = PayDeclined
		default:
			outcome = PayPhantom
		}
	}

	if g.latency > 0 {
		select {
		case <-ctx.Done():
			return domain.PaymentCompletion{}, ctx.Err()
		case <-time.After(g.latency):
		}
	}

	switch outcome {
	case PayDeclined:
		g.setStatus(gatewayOrderID, OrderAttempted)
		return domain.PaymentCompletion{}, ErrCardDeclined
	case PayPhantom:
		g.setStatus(gatewayOrderID, OrderPaid)
		log.WithField("gateway_order_id", gatewayOrderID).Warn("mock gateway captured payment but dropped the completion")
		return domain.PaymentCompletion{}, ErrConnectionTimeout
	default:
		g.setStatus(gatewayOrderID, OrderPaid)
		paymentID := fmt.Sprintf("pay_mock%08d", rand.IntN(100_000_000))
		return domain.PaymentCompletion{
			GatewayOrderID:   gatewayOrderID,
			GatewayPaymentID: paymentID,
			Signature:        Sign(g.secret, gatewayOrderID, paymentID),
		}, nil
	}
}

func (g *MockGateway) setStatus(gatewayOrderID, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if order, ok := g.orders[gatewayOrderID]; ok {
		order.Status = status
	}
}
