package recovery

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/purchasekit/internal/core/domain"
	"github.com/vietddude/purchasekit/internal/order"
	"github.com/vietddude/purchasekit/internal/retry"
)

// =============================================================================
// Mock store adapter
// =============================================================================

type mockStore struct {
	mu          sync.Mutex
	pending     []domain.Transaction
	finished    map[string]int // id -> finish call count
	finishOrder []string
	finishErr   error
}

func newMockStore(pending ...domain.Transaction) *mockStore {
	return &mockStore{pending: pending, finished: make(map[string]int)}
}

func (s *mockStore) LoadProducts(ctx context.Context, ids []string) ([]domain.Product, error) {
	return nil, nil
}

func (s *mockStore) Purchase(ctx context.Context, p domain.Product) (domain.PurchaseOutcome, error) {
	return domain.PurchaseCancelled{}, nil
}

func (s *mockStore) RestorePurchases(ctx context.Context) ([]domain.Transaction, error) {
	return nil, nil
}

func (s *mockStore) PendingTransactions(ctx context.Context) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Transaction, len(s.pending))
	copy(out, s.pending)
	return out, nil
}

func (s *mockStore) FinishTransaction(ctx context.Context, tx domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finishErr != nil {
		return s.finishErr
	}
	s.finished[tx.ID]++
	if s.finished[tx.ID] == 1 {
		s.finishOrder = append(s.finishOrder, tx.ID)
	}
	return nil
}

func (s *mockStore) StartObserver(ctx context.Context) (<-chan domain.Transaction, error) {
	ch := make(chan domain.Transaction)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (s *mockStore) StopObserver() error { return nil }

// =============================================================================
// Mock order client
// =============================================================================

type mockOrderClient struct {
	mu        sync.Mutex
	orders    map[string]*domain.Order
	cancelled []string
	pending   []*domain.Order
	createErr error
	seq       int
}

func newMockOrderClient() *mockOrderClient {
	return &mockOrderClient{orders: make(map[string]*domain.Order)}
}

func (c *mockOrderClient) CreateOrder(ctx context.Context, productID string, params order.CreateParams) (*domain.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return nil, c.createErr
	}
	c.seq++
	ord := &domain.Order{
		ID:        fmt.Sprintf("ord-%d", c.seq),
		ProductID: productID,
		Status:    domain.OrderStatusPending,
		CreatedAt: time.Now(),
	}
	c.orders[ord.ID] = ord
	return &domain.Order{ID: ord.ID, ProductID: ord.ProductID, Status: ord.Status, CreatedAt: ord.CreatedAt}, nil
}

func (c *mockOrderClient) QueryOrderStatus(ctx context.Context, orderID string) (*domain.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ord, ok := c.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *ord
	return &cp, nil
}

func (c *mockOrderClient) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ord, ok := c.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	ord.Status = status
	return nil
}

func (c *mockOrderClient) CancelOrder(ctx context.Context, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, orderID)
	if ord, ok := c.orders[orderID]; ok {
		ord.Status = domain.OrderStatusCancelled
	}
	return nil
}

func (c *mockOrderClient) CleanupExpiredOrders(ctx context.Context) (int, error) { return 0, nil }

func (c *mockOrderClient) RecoverPendingOrders(ctx context.Context) ([]*domain.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending, nil
}

// =============================================================================
// Mock validator
// =============================================================================

type mockValidator struct {
	mu     sync.Mutex
	orders map[string]*domain.Order // receipt payload -> known order
	err    error
}

func (v *mockValidator) ValidateReceipt(ctx context.Context, data []byte) (domain.ReceiptValidation, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return domain.ReceiptValidation{}, v.err
	}
	if len(data) == 0 {
		return domain.ReceiptValidation{}, domain.ErrInvalidReceipt
	}
	var known *domain.Order
	if v.orders != nil {
		known = v.orders[string(data)]
	}
	return domain.ReceiptValidation{Valid: true, Order: known}, nil
}

// =============================================================================
// Helpers
// =============================================================================

func newTestManager(store *mockStore) (*Manager, *mockOrderClient) {
	client := newMockOrderClient()
	retries := retry.NewManager(retry.Config{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		Strategy:   retry.StrategyFixed,
	})
	orders := order.NewService(client, retries, nil)
	mgr := NewManager(DefaultConfig(), store, orders, &mockValidator{}, retries, nil, nil)
	return mgr, client
}

func purchasedTxn(id, product string, age time.Duration) domain.Transaction {
	return domain.Transaction{
		ID:           id,
		ProductID:    product,
		PurchaseDate: time.Now().Add(-age),
		State:        domain.TxnStatePurchased,
		Receipt:      []byte("receipt-" + id),
		Quantity:     1,
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestSweepStatisticsPartition(t *testing.T) {
	store := newMockStore(
		purchasedTxn("t1", "p1", time.Hour),
		purchasedTxn("t2", "p2", time.Minute),
		domain.Transaction{ID: "t3", ProductID: "p3", State: domain.TxnStatePurchasing, PurchaseDate: time.Now()},
		domain.Transaction{ID: "t4", ProductID: "p4", State: domain.TxnStateDeferred, PurchaseDate: time.Now()},
		domain.Transaction{ID: "t5", ProductID: "p5", State: domain.TxnStateFailed, Failure: "payment not allowed", PurchaseDate: time.Now()},
	)
	mgr, _ := newTestManager(store)

	stats, err := mgr.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if stats.TotalTransactions != 5 || stats.ProcessedTransactions != 5 {
		t.Errorf("total/processed = %d/%d, want 5/5", stats.TotalTransactions, stats.ProcessedTransactions)
	}
	if !stats.Consistent() {
		t.Errorf("counts do not partition: %+v", stats)
	}
	if stats.RecoveredTransactions != 2 {
		t.Errorf("recovered = %d, want 2", stats.RecoveredTransactions)
	}
	if stats.InProgressTransactions != 2 {
		t.Errorf("in progress = %d, want 2", stats.InProgressTransactions)
	}
	if stats.FailedTransactions != 1 {
		t.Errorf("failed = %d, want 1", stats.FailedTransactions)
	}
}

func TestSweepFinishesOldestFirst(t *testing.T) {
	store := newMockStore(
		purchasedTxn("recent", "p1", 15*time.Minute),
		purchasedTxn("oldest", "p2", time.Hour),
		purchasedTxn("middle", "p3", 30*time.Minute),
	)
	mgr, _ := newTestManager(store)

	if _, err := mgr.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	want := []string{"oldest", "middle", "recent"}
	if len(store.finishOrder) != len(want) {
		t.Fatalf("finish order %v, want %v", store.finishOrder, want)
	}
	for i, id := range want {
		if store.finishOrder[i] != id {
			t.Errorf("finish[%d] = %s, want %s", i, store.finishOrder[i], id)
		}
	}
}

func TestSweepTiesBrokenByID(t *testing.T) {
	when := time.Now().Add(-time.Hour)
	a := purchasedTxn("a", "p1", 0)
	b := purchasedTxn("b", "p2", 0)
	a.PurchaseDate = when
	b.PurchaseDate = when
	store := newMockStore(b, a)
	mgr, _ := newTestManager(store)

	if _, err := mgr.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(store.finishOrder) != 2 || store.finishOrder[0] != "a" || store.finishOrder[1] != "b" {
		t.Errorf("finish order = %v, want [a b]", store.finishOrder)
	}
}

func TestSweepSurvivesMalformedAndFutureDated(t *testing.T) {
	future := purchasedTxn("future", "p1", 0)
	future.PurchaseDate = time.Now().Add(2 * time.Hour)
	store := newMockStore(
		domain.Transaction{ID: "", ProductID: "p0", State: domain.TxnStatePurchased, PurchaseDate: time.Now()},
		future,
	)
	mgr, _ := newTestManager(store)

	stats, err := mgr.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if stats.ProcessedTransactions != 2 {
		t.Errorf("processed = %d, want 2", stats.ProcessedTransactions)
	}
	// Clock skew only affects ordering, not validity.
	if stats.RecoveredTransactions != 1 {
		t.Errorf("recovered = %d, want 1", stats.RecoveredTransactions)
	}
	if stats.FailedTransactions != 1 {
		t.Errorf("failed = %d, want 1", stats.FailedTransactions)
	}
}

func TestSweepCountsDuplicateIDOnce(t *testing.T) {
	tx := purchasedTxn("dup", "p1", time.Hour)
	store := newMockStore(tx, tx)
	mgr, _ := newTestManager(store)

	stats, err := mgr.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if got := store.finished["dup"]; got != 1 {
		t.Errorf("finish calls = %d, want 1", got)
	}
	if stats.RecoveredTransactions != 1 || stats.FailedTransactions != 1 {
		t.Errorf("recovered/failed = %d/%d, want 1/1", stats.RecoveredTransactions, stats.FailedTransactions)
	}
}

func TestFinishTwiceIsNoop(t *testing.T) {
	tx := purchasedTxn("t1", "p1", time.Minute)
	store := newMockStore(tx)
	mgr, _ := newTestManager(store)

	ctx := context.Background()
	if err := mgr.ProcessTransaction(ctx, tx); err != nil {
		t.Fatalf("first ProcessTransaction: %v", err)
	}
	if err := mgr.ProcessTransaction(ctx, tx); err != nil {
		t.Fatalf("second ProcessTransaction: %v", err)
	}
	// The store sees a second idempotent finish; the mock records it as a
	// no-op on already-finished state.
	if got := store.finished["t1"]; got != 2 {
		t.Errorf("finish calls = %d, want 2 (second one a server-side no-op)", got)
	}
}

func TestProcessTransactionOrderMismatch(t *testing.T) {
	tx := purchasedTxn("t1", "p1", time.Minute)
	store := newMockStore(tx)
	client := newMockOrderClient()
	retries := retry.NewManager(retry.Config{MaxRetries: 1, BaseDelay: time.Millisecond, Strategy: retry.StrategyFixed})
	orders := order.NewService(client, retries, nil)
	validator := &mockValidator{orders: map[string]*domain.Order{
		"receipt-t1": {ID: "ord-9", ProductID: "other-product", Status: domain.OrderStatusPending},
	}}
	mgr := NewManager(DefaultConfig(), store, orders, validator, retries, nil, nil)

	err := mgr.ProcessTransaction(context.Background(), tx)
	if err == nil {
		t.Fatal("expected mismatch error")
	}
	if len(store.finishOrder) != 0 {
		t.Error("mismatched transaction must not be finished")
	}
}

func TestFailedTransactionRetryableRecorded(t *testing.T) {
	store := newMockStore(
		domain.Transaction{ID: "rt", ProductID: "p1", State: domain.TxnStateFailed, Failure: "request timed out", PurchaseDate: time.Now()},
		domain.Transaction{ID: "tt", ProductID: "p2", State: domain.TxnStateFailed, Failure: "payment not allowed", PurchaseDate: time.Now()},
	)
	client := newMockOrderClient()
	retries := retry.NewManager(retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond, Strategy: retry.StrategyFixed})
	orders := order.NewService(client, retries, nil)
	mgr := NewManager(DefaultConfig(), store, orders, &mockValidator{}, retries, nil, nil)

	if _, err := mgr.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if rec, ok := retries.Record("txn:rt"); !ok || rec.AttemptCount != 1 {
		t.Errorf("retryable failure not recorded: %+v ok=%v", rec, ok)
	}
	if _, ok := retries.Record("txn:tt"); ok {
		t.Error("terminal failure must not enter the retry ledger")
	}
}

func TestSweepLeavesInFlightUntouched(t *testing.T) {
	store := newMockStore(
		domain.Transaction{ID: "d1", ProductID: "p1", State: domain.TxnStateDeferred, PurchaseDate: time.Now().Add(-48 * time.Hour)},
	)
	mgr, _ := newTestManager(store)

	// Two sweeps: a stalled transaction is re-surfaced, never force-finished.
	for i := 0; i < 2; i++ {
		stats, err := mgr.Sweep(context.Background())
		if err != nil {
			t.Fatalf("Sweep #%d: %v", i+1, err)
		}
		if stats.InProgressTransactions != 1 {
			t.Errorf("sweep #%d: in progress = %d, want 1", i+1, stats.InProgressTransactions)
		}
		if stats.OldestInFlight.IsZero() {
			t.Errorf("sweep #%d: OldestInFlight not tracked", i+1)
		}
	}
	if len(store.finishOrder) != 0 {
		t.Error("in-flight transaction was finished")
	}
}

func TestConcurrentProcessingDisjointIDs(t *testing.T) {
	var txns []domain.Transaction
	for i := 0; i < 20; i++ {
		txns = append(txns, purchasedTxn(fmt.Sprintf("t%02d", i), fmt.Sprintf("p%02d", i), time.Minute))
	}
	store := newMockStore(txns...)
	mgr, _ := newTestManager(store)

	var wg sync.WaitGroup
	for _, tx := range txns {
		wg.Add(1)
		go func(tx domain.Transaction) {
			defer wg.Done()
			if err := mgr.ProcessTransaction(context.Background(), tx); err != nil {
				t.Errorf("%s: %v", tx.ID, err)
			}
		}(tx)
	}
	wg.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.finished) != len(txns) {
		t.Errorf("finished %d transactions, want %d", len(store.finished), len(txns))
	}
	for id, n := range store.finished {
		if n != 1 {
			t.Errorf("%s finished %d times", id, n)
		}
	}
}

func TestRecoverOrdersCancelsOrphans(t *testing.T) {
	store := newMockStore(purchasedTxn("t1", "live-product", time.Minute))
	client := newMockOrderClient()
	client.orders["orphan"] = &domain.Order{ID: "orphan", ProductID: "gone-product", Status: domain.OrderStatusCreated}
	client.orders["active"] = &domain.Order{ID: "active", ProductID: "live-product", Status: domain.OrderStatusCreated}
	client.pending = []*domain.Order{client.orders["orphan"], client.orders["active"]}

	retries := retry.NewManager(retry.Config{MaxRetries: 1, BaseDelay: time.Millisecond, Strategy: retry.StrategyFixed})
	orders := order.NewService(client, retries, nil)
	mgr := NewManager(DefaultConfig(), store, orders, &mockValidator{}, retries, nil, nil)

	if err := mgr.recoverOrders(context.Background()); err != nil {
		t.Fatalf("recoverOrders: %v", err)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.cancelled) != 1 || client.cancelled[0] != "orphan" {
		t.Errorf("cancelled = %v, want [orphan]", client.cancelled)
	}
}

func TestTriggerSweepCollapses(t *testing.T) {
	store := newMockStore()
	mgr, _ := newTestManager(store)

	// A full kick channel must never block the caller.
	for i := 0; i < 5; i++ {
		mgr.TriggerSweep("network-restore")
	}
}
