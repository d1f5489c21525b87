package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/purchasekit/internal/core/domain"
	"github.com/vietddude/purchasekit/internal/order"
)

// Client implements the order-service boundary over JSON/HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// Config holds order-service connection configuration.
type Config struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// NewClient creates an order-service client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: cfg.URL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (c *Client) CreateOrder(ctx context.Context, productID string, params order.CreateParams) (*domain.Order, error) {
	if params.IdempotencyKey == "" {
		params.IdempotencyKey = uuid.New().String()
	}
	body := map[string]any{
		"product_id":     productID,
		"transaction_id": params.TransactionID,
		"quantity":       params.Quantity,
	}

	var ord domain.Order
	err := c.do(ctx, http.MethodPost, "/v1/orders", params.IdempotencyKey, body, &ord)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return &ord, nil
}

func (c *Client) QueryOrderStatus(ctx context.Context, orderID string) (*domain.Order, error) {
	var ord domain.Order
	err := c.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(orderID), "", nil, &ord)
	if err != nil {
		return nil, fmt.Errorf("query order %s: %w", orderID, err)
	}
	return &ord, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	body := map[string]any{"status": string(status)}
	err := c.do(ctx, http.MethodPut, "/v1/orders/"+url.PathEscape(orderID)+"/status", "", body, nil)
	if err != nil {
		return fmt.Errorf("update order %s: %w", orderID, err)
	}
	return nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	err := c.do(ctx, http.MethodPost, "/v1/orders/"+url.PathEscape(orderID)+"/cancel", "", nil, nil)
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}

func (c *Client) CleanupExpiredOrders(ctx context.Context) (int, error) {
	var resp struct {
		Expired int `json:"expired"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/orders/cleanup", "", nil, &resp)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired orders: %w", err)
	}
	return resp.Expired, nil
}

func (c *Client) RecoverPendingOrders(ctx context.Context) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := c.do(ctx, http.MethodGet, "/v1/orders/pending", "", nil, &orders)
	if err != nil {
		return nil, fmt.Errorf("recover pending orders: %w", err)
	}
	return orders, nil
}

// do issues one request and maps the response status onto the domain error
// taxonomy so callers and the retry manager can branch on kind.
func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(err)
	}

	if err := statusError(resp.StatusCode, data); err != nil {
		return err
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

func transportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrRequestTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrRequestTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
}

func statusError(code int, body []byte) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return domain.ErrOrderNotFound
	case code == http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrOrderMismatch, body)
	case code == http.StatusGone:
		return domain.ErrOrderExpired
	case code == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrOrderValidation, body)
	case code >= 500:
		return fmt.Errorf("%w: http %d: %s", domain.ErrServerValidation, code, body)
	default:
		return fmt.Errorf("http %d: %s", code, body)
	}
}
