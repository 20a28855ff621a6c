package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type razorpayGateway struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
}

func NewRazorpayGateway(baseURL, keyID, keySecret string, timeout time.Duration) PaymentGateway {
	return &razorpayGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		client:    &http.Client{Timeout: timeout},
	}
}

func (g *razorpayGateway) KeyID() string {
	return g.keyID
}

func (g *razorpayGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (*GatewayOrder, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var order GatewayOrder
	if err := g.do(ctx, http.MethodPost, "/v1/orders", bytes.NewReader(body), &order); err != nil {
		return nil, fmt.Errorf("create gateway order: %w", err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("create gateway order: empty order id in response")
	}
	return &order, nil
}

func (g *razorpayGateway) FetchOrderStatus(ctx context.Context, gatewayOrderID string) (string, error) {
	var order GatewayOrder
	err := g.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(gatewayOrderID), nil, &order)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest && apiErr.Code == "BAD_REQUEST_ERROR" {
		// Razorpay answers an unknown order id with a 400, not a 404.
		err = ErrGatewayOrderNotFound
	}
	if err != nil {
		return "", fmt.Errorf("fetch gateway order %s: %w", gatewayOrderID, err)
	}
	return order.Status, nil
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	Status      int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s %s", e.Status, e.Code, e.Description)
}

func (g *razorpayGateway) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.keyID, g.keySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrGatewayOrderNotFound
	}
	if resp.StatusCode >= 300 {
		var body struct {
			Error struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		}
		_ = json.Unmarshal(payload, &body)
		return &APIError{Status: resp.StatusCode, Code: body.Error.Code, Description: body.Error.Description}
	}
	return json.Unmarshal(payload, out)
}
