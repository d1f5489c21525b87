package appstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/purchasekit/internal/core/domain"
)

// SimAdapter is an in-process store used by the dev binary and e2e tests.
// Purchases succeed immediately, pending transactions can be seeded, and
// finish is idempotent like the real store API.
type SimAdapter struct {
	mu       sync.Mutex
	catalog  map[string]domain.Product
	pending  map[string]domain.Transaction
	finished map[string]bool

	updates  chan domain.Transaction
	observed bool
}

// NewSimAdapter creates a simulated store with the given catalog.
func NewSimAdapter(products []domain.Product) *SimAdapter {
	catalog := make(map[string]domain.Product, len(products))
	for _, p := range products {
		catalog[p.ID] = p
	}
	return &SimAdapter{
		catalog:  catalog,
		pending:  make(map[string]domain.Transaction),
		finished: make(map[string]bool),
	}
}

func (s *SimAdapter) LoadProducts(ctx context.Context, ids []string) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Product
	for _, id := range ids {
		p, ok := s.catalog[id]
		if !ok {
			return nil, fmt.Errorf("load %q: %w", id, domain.ErrProductNotFound)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *SimAdapter) Purchase(ctx context.Context, product domain.Product) (domain.PurchaseOutcome, error) {
	s.mu.Lock()
	if _, ok := s.catalog[product.ID]; !ok {
		s.mu.Unlock()
		return domain.PurchaseFailed{Err: domain.ErrProductNotFound}, nil
	}

	tx := domain.Transaction{
		ID:           uuid.New().String(),
		ProductID:    product.ID,
		PurchaseDate: time.Now(),
		State:        domain.TxnStatePurchased,
		Receipt:      []byte("sim-receipt-" + product.ID),
		Quantity:     1,
	}
	s.pending[tx.ID] = tx
	s.mu.Unlock()

	s.publish(tx)
	return domain.PurchaseSuccess{Txn: tx}, nil
}

func (s *SimAdapter) RestorePurchases(ctx context.Context) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Transaction
	for _, tx := range s.pending {
		if tx.State == domain.TxnStatePurchased || tx.State == domain.TxnStateRestored {
			restored := tx
			restored.State = domain.TxnStateRestored
			out = append(out, restored)
		}
	}
	return out, nil
}

func (s *SimAdapter) PendingTransactions(ctx context.Context) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Transaction, 0, len(s.pending))
	for _, tx := range s.pending {
		out = append(out, tx)
	}
	return out, nil
}

func (s *SimAdapter) FinishTransaction(ctx context.Context, tx domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Unknown or already-finished ids are a no-op.
	delete(s.pending, tx.ID)
	s.finished[tx.ID] = true
	return nil
}

func (s *SimAdapter) StartObserver(ctx context.Context) (<-chan domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.observed {
		return s.updates, nil
	}
	ch := make(chan domain.Transaction, 64)
	s.updates = ch
	s.observed = true

	go func() {
		<-ctx.Done()
		// A cancelled context from an earlier session must not tear down
		// its successor after a stop/start cycle.
		s.closeSession(ch)
	}()
	return ch, nil
}

func (s *SimAdapter) StopObserver() error {
	s.mu.Lock()
	ch := s.updates
	s.mu.Unlock()

	s.closeSession(ch)
	return nil
}

// closeSession ends the observer session owning ch. Stale sessions are a
// no-op.
func (s *SimAdapter) closeSession(ch chan domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.observed || s.updates != ch {
		return
	}
	s.observed = false
	close(ch)
}

// InjectPending seeds an unfinished transaction, as if a crash left it
// behind. Test and dev hook.
func (s *SimAdapter) InjectPending(tx domain.Transaction) {
	s.mu.Lock()
	s.pending[tx.ID] = tx
	s.mu.Unlock()
}

// EmitUpdate pushes a transaction event to the observer stream.
func (s *SimAdapter) EmitUpdate(tx domain.Transaction) {
	s.mu.Lock()
	if !s.observed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.publish(tx)
}

// Finished reports whether the transaction id was acknowledged.
func (s *SimAdapter) Finished(txID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished[txID]
}

func (s *SimAdapter) publish(tx domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.observed {
		return
	}
	select {
	case s.updates <- tx:
	default:
		// Observer is not draining; drop rather than block the store.
	}
}
