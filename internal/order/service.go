package order

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/purchasekit/internal/core/domain"
	"github.com/vietddude/purchasekit/internal/infra/storage"
	"github.com/vietddude/purchasekit/internal/metrics"
	"github.com/vietddude/purchasekit/internal/retry"
)

// Service drives the server-order lifecycle on top of the Client boundary.
// It enforces the monotonic state machine locally, retries transient call
// failures through the shared retry ledger, and archives outcomes.
type Service struct {
	client  Client
	retries *retry.Manager
	archive storage.OrderRepository // nil when persistence is disabled
	log     *slog.Logger
}

// NewService wires the order boundary. archive may be nil.
func NewService(client Client, retries *retry.Manager, archive storage.OrderRepository) *Service {
	return &Service{
		client:  client,
		retries: retries,
		archive: archive,
		log:     slog.Default(),
	}
}

// Reconcile resolves the server order for a successful transaction. known is
// the order reported by receipt validation, if any; a purchase with no prior
// local order creates one. A product mismatch between transaction and order
// is terminal and never retried.
func (s *Service) Reconcile(ctx context.Context, tx domain.Transaction, known *domain.Order) (*domain.Order, error) {
	if known != nil {
		if known.ProductID != "" && known.ProductID != tx.ProductID {
			return nil, fmt.Errorf("order %s is for product %s, transaction %s is for %s: %w",
				known.ID, known.ProductID, tx.ID, tx.ProductID, domain.ErrOrderMismatch)
		}
		if known.Status == "" {
			// State unknown: query before finalizing disposition.
			return s.Query(ctx, known.ID)
		}
		return known, nil
	}

	ord, err := retry.Execute(ctx, s.retries, "order:create:"+tx.ID,
		func(ctx context.Context) (*domain.Order, error) {
			return s.client.CreateOrder(ctx, tx.ProductID, CreateParams{
				TransactionID: tx.ID,
				Quantity:      tx.Quantity,
			})
		})
	if err != nil {
		return nil, err
	}
	s.archiveOrder(ctx, ord)
	return ord, nil
}

// Query fetches the server-reported order state.
func (s *Service) Query(ctx context.Context, orderID string) (*domain.Order, error) {
	return retry.Execute(ctx, s.retries, "order:query:"+orderID,
		func(ctx context.Context) (*domain.Order, error) {
			return s.client.QueryOrderStatus(ctx, orderID)
		})
}

// Transition moves the order forward to the given status. Backward or
// out-of-machine moves are rejected locally with ErrOrderValidation before
// any server call. Reaching the target status is idempotent.
func (s *Service) Transition(ctx context.Context, ord *domain.Order, to domain.OrderStatus) error {
	if ord.Status == to {
		return nil
	}
	if !domain.CanTransition(ord.Status, to) {
		return fmt.Errorf("order %s: %s -> %s: %w", ord.ID, ord.Status, to, domain.ErrOrderValidation)
	}

	err := s.retries.Do(ctx, "order:update:"+ord.ID, func(ctx context.Context) error {
		return s.client.UpdateOrderStatus(ctx, ord.ID, to)
	})
	if err != nil {
		return err
	}

	ord.Status = to
	metrics.OrderTransitions.WithLabelValues(string(to)).Inc()
	s.archiveOrder(ctx, ord)
	return nil
}

// Cancel explicitly cancels a non-terminal order.
func (s *Service) Cancel(ctx context.Context, ord *domain.Order) error {
	if ord.Status.Terminal() {
		return fmt.Errorf("order %s already %s: %w", ord.ID, ord.Status, domain.ErrOrderValidation)
	}
	err := s.retries.Do(ctx, "order:cancel:"+ord.ID, func(ctx context.Context) error {
		return s.client.CancelOrder(ctx, ord.ID)
	})
	if err != nil {
		return err
	}
	ord.Status = domain.OrderStatusCancelled
	metrics.OrderTransitions.WithLabelValues(string(domain.OrderStatusCancelled)).Inc()
	s.archiveOrder(ctx, ord)
	return nil
}

// CleanupExpired asks the server to expire stale orders and reports how many
// it settled.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	return s.client.CleanupExpiredOrders(ctx)
}

// RecoverPending returns the orders the server still reports unsettled,
// refreshing any with unknown state.
func (s *Service) RecoverPending(ctx context.Context) ([]*domain.Order, error) {
	orders, err := s.client.RecoverPendingOrders(ctx)
	if err != nil {
		return nil, err
	}
	for i, ord := range orders {
		if ord.Status != "" {
			continue
		}
		refreshed, err := s.Query(ctx, ord.ID)
		if err != nil {
			s.log.Warn("Failed to refresh pending order", "order", ord.ID, "error", err)
			continue
		}
		orders[i] = refreshed
	}
	return orders, nil
}

func (s *Service) archiveOrder(ctx context.Context, ord *domain.Order) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Save(ctx, ord); err != nil {
		s.log.Warn("Failed to archive order", "order", ord.ID, "error", err)
	}
}
