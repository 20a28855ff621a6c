// Package checkout drives a payment from the customer's side: it begins a
// gateway session through the API, hands it to a payment surface and
// reports the completion back for server-side verification.
package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"studio-checkout/internal/domain"
)

// APIError is a non-2xx answer from the studio API.
type APIError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
}

// Temporary reports whether the same request may succeed later.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

type Client struct {
	baseURL   string
	http      *http.Client
	token     string
	sessionID string
}

type Option func(*Client)

// WithBearer authenticates every request as a signed-in user.
func WithBearer(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithGuestSession identifies a guest checkout.
func WithGuestSession(id string) Option {
	return func(c *Client) { c.sessionID = id }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Item struct {
	Type     string    `json:"type"`
	RefID    uuid.UUID `json:"refId"`
	Quantity int       `json:"quantity"`
}

type OrderRequest struct {
	Customer        Customer `json:"customer"`
	ShippingAddress string   `json:"shippingAddress"`
	TaxID           string   `json:"taxId,omitempty"`
	Items           []Item   `json:"items"`
}

// Order is the subset of the order resource the checkout flow reads.
type Order struct {
	ID            uuid.UUID `json:"id"`
	OrderNumber   string    `json:"orderNumber"`
	TotalAmount   string    `json:"totalAmount"`
	PaymentStatus string    `json:"paymentStatus"`
}

type ConfirmationResult struct {
	Success     bool `json:"success"`
	Suppressed  bool `json:"suppressed"`
	AlreadySent bool `json:"alreadySent"`
}

func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodPost, "/api/orders", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/"+id.String(), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) BeginPayment(ctx context.Context, kind domain.PayableKind, id uuid.UUID) (*domain.Session, error) {
	var session domain.Session
	body := map[string]string{"kind": string(kind), "localId": id.String()}
	if err := c.do(ctx, http.MethodPost, "/api/payments/begin", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// VerifyPayment forwards the gateway completion untouched. Only the server
// holds the secret needed to judge it.
func (c *Client) VerifyPayment(ctx context.Context, kind domain.PayableKind, id uuid.UUID, completion domain.PaymentCompletion) (bool, error) {
	body := map[string]string{
		"kind":             string(kind),
		"localOrderId":     id.String(),
		"gatewayOrderId":   completion.GatewayOrderID,
		"gatewayPaymentId": completion.GatewayPaymentID,
		"signature":        completion.Signature,
	}
	var out struct {
		Verified bool `json:"verified"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/payments/verify", body, &out); err != nil {
		return false, err
	}
	return out.Verified, nil
}

func (c *Client) CancelPayment(ctx context.Context, kind domain.PayableKind, id uuid.UUID) error {
	body := map[string]string{"kind": string(kind), "localId": id.String()}
	return c.do(ctx, http.MethodPost, "/api/payments/cancel", body, nil)
}

func (c *Client) RequestOrderConfirmation(ctx context.Context, orderID uuid.UUID) (ConfirmationResult, error) {
	var out ConfirmationResult
	err := c.do(ctx, http.MethodPost, "/api/notifications/order-confirmation", map[string]string{"orderId": orderID.String()}, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.sessionID != "" {
		req.Header.Set("X-Session-ID", c.sessionID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(payload, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
		return apiErr
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, out)
}
