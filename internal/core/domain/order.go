package domain

import "time"

// Order is the server-tracked record correlating a transaction to
// fulfillment. Status is server-driven; local code only validates that a
// reported transition is legal.
type Order struct {
	ID        string      `json:"id"`
	ProductID string      `json:"product_id"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
	OrderStatusFailed    OrderStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusExpired, OrderStatusFailed:
		return true
	}
	return false
}

// orderRank orders the forward progression created -> pending -> terminal.
func orderRank(s OrderStatus) int {
	switch s {
	case OrderStatusCreated:
		return 0
	case OrderStatusPending:
		return 1
	default:
		return 2
	}
}

// CanTransition reports whether moving from -> to is a legal order
// transition: monotonic forward, with cancel/expire allowed as explicit
// exits from any non-terminal state.
func CanTransition(from, to OrderStatus) bool {
	if from == to {
		return false
	}
	if from.Terminal() {
		return false
	}
	if to == OrderStatusCancelled || to == OrderStatusExpired {
		return true
	}
	return orderRank(to) > orderRank(from)
}
