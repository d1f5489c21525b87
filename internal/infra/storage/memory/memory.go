package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/purchasekit/internal/core/domain"
	"github.com/vietddude/purchasekit/internal/infra/storage"
)

// Store holds all in-memory state behind one RWMutex. Used when no
// database is configured.
type Store struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	sweeps []*storage.SweepRecord
}

func NewStore() *Store {
	return &Store{
		orders: make(map[string]*domain.Order),
	}
}

// -----------------------------------------------------------------------------
// Order Repository
// -----------------------------------------------------------------------------

type OrderRepo struct {
	store *Store
}

func NewOrderRepo(store *Store) *OrderRepo {
	return &OrderRepo{store: store}
}

func (r *OrderRepo) Save(ctx context.Context, ord *domain.Order) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *ord
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	r.store.orders[ord.ID] = &cp
	return nil
}

func (r *OrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	ord, ok := r.store.orders[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *ord
	return &cp, nil
}

func (r *OrderRepo) ListByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Order
	for _, ord := range r.store.orders {
		if ord.Status == status {
			cp := *ord
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *OrderRepo) PurgeSettledBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	removed := 0
	for id, ord := range r.store.orders {
		if ord.Status.Terminal() && ord.UpdatedAt.Before(cutoff) {
			delete(r.store.orders, id)
			removed++
		}
	}
	return removed, nil
}

// -----------------------------------------------------------------------------
// Sweep Repository
// -----------------------------------------------------------------------------

type SweepRepo struct {
	store *Store
}

func NewSweepRepo(store *Store) *SweepRepo {
	return &SweepRepo{store: store}
}

func (r *SweepRepo) RecordSweep(ctx context.Context, rec *storage.SweepRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *rec
	r.store.sweeps = append(r.store.sweeps, &cp)
	return nil
}

func (r *SweepRepo) LastSweep(ctx context.Context) (*storage.SweepRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if len(r.store.sweeps) == 0 {
		return nil, storage.ErrNotFound
	}
	cp := *r.store.sweeps[len(r.store.sweeps)-1]
	return &cp, nil
}
