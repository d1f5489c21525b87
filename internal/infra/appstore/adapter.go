package appstore

import (
	"context"

	"github.com/vietddude/purchasekit/internal/core/domain"
)

// Adapter abstracts the platform store (one implementation per store API
// version). Production adapters live in the embedding app; this package
// ships a simulated one for development and tests.
type Adapter interface {
	// LoadProducts resolves catalog entries for the given product ids.
	LoadProducts(ctx context.Context, ids []string) ([]domain.Product, error)

	// Purchase initiates a purchase and reports one of the outcome arms.
	Purchase(ctx context.Context, product domain.Product) (domain.PurchaseOutcome, error)

	// RestorePurchases replays previously completed transactions.
	RestorePurchases(ctx context.Context) ([]domain.Transaction, error)

	// PendingTransactions enumerates every unfinished transaction the store
	// still holds for this client.
	PendingTransactions(ctx context.Context) ([]domain.Transaction, error)

	// FinishTransaction acknowledges a transaction. Finishing an unknown or
	// already-finished id is a no-op.
	FinishTransaction(ctx context.Context, tx domain.Transaction) error

	// StartObserver begins streaming transaction updates. The channel is
	// closed by StopObserver or when ctx ends.
	StartObserver(ctx context.Context) (<-chan domain.Transaction, error)

	// StopObserver tears down the update stream. Safe to call repeatedly.
	StopObserver() error
}
