package order

import (
	"context"

	"github.com/vietddude/purchasekit/internal/core/domain"
)

// CreateParams carries the optional attributes of a server order.
type CreateParams struct {
	TransactionID string `json:"transaction_id,omitempty"`
	Quantity      int    `json:"quantity,omitempty"`
	// IdempotencyKey dedupes creates on the server; the HTTP client fills
	// it when empty.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Client is the order-service boundary. Each call maps to one server
// action; the wire mapping is an implementation concern.
type Client interface {
	CreateOrder(ctx context.Context, productID string, params CreateParams) (*domain.Order, error)
	QueryOrderStatus(ctx context.Context, orderID string) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error
	CancelOrder(ctx context.Context, orderID string) error
	CleanupExpiredOrders(ctx context.Context) (int, error)
	RecoverPendingOrders(ctx context.Context) ([]*domain.Order, error)
}
