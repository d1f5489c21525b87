package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/purchasekit/internal/core/domain"
	"github.com/vietddude/purchasekit/internal/infra/appstore"
	"github.com/vietddude/purchasekit/internal/infra/storage"
	"github.com/vietddude/purchasekit/internal/infra/validation"
	"github.com/vietddude/purchasekit/internal/metrics"
	"github.com/vietddude/purchasekit/internal/order"
	"github.com/vietddude/purchasekit/internal/retry"
)

// FinishLedger remembers acknowledged transaction ids across restarts.
// Optional; the store's own finish idempotence is the hard guarantee, the
// ledger only skips redundant round trips.
type FinishLedger interface {
	MarkFinished(ctx context.Context, txID string, ttl time.Duration) (bool, error)
	IsFinished(ctx context.Context, txID string) (bool, error)
}

// SweepCheckpointer persists sweep outcomes across restarts. The redis
// ledger implements it; detection is by assertion so the base FinishLedger
// interface stays small.
type SweepCheckpointer interface {
	SaveCheckpoint(ctx context.Context, finishedAt time.Time, processed, recovered, failed int) error
	LastCheckpoint(ctx context.Context) (time.Time, error)
}

// Config controls sweep scheduling.
type Config struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	SweepOnStart  bool          `yaml:"sweep_on_start"`
	// RecoverOrders reconciles server-pending orders before the first sweep.
	RecoverOrders bool          `yaml:"recover_orders"`
	FinishedTTL   time.Duration `yaml:"finished_ttl"`
}

// DefaultConfig provides sensible defaults.
func DefaultConfig() Config {
	return Config{
		SweepInterval: 5 * time.Minute,
		SweepOnStart:  true,
		RecoverOrders: true,
		FinishedTTL:   30 * 24 * time.Hour,
	}
}

// Manager reconciles pending transactions with the order service so every
// purchase eventually reaches a finished, acknowledged state.
type Manager struct {
	cfg       Config
	store     appstore.Adapter
	orders    *order.Service
	validator validation.Validator
	retries   *retry.Manager
	ledger    FinishLedger            // nil disables dedupe
	sweepRepo storage.SweepRepository // nil disables auditing
	log       *slog.Logger

	mu        sync.Mutex
	lastStats Statistics
	firstSeen map[string]time.Time // in-flight txn id -> first observed

	kick chan string
}

// NewManager wires a recovery manager. ledger and sweepRepo may be nil.
func NewManager(
	cfg Config,
	store appstore.Adapter,
	orders *order.Service,
	validator validation.Validator,
	retries *retry.Manager,
	ledger FinishLedger,
	sweepRepo storage.SweepRepository,
) *Manager {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	return &Manager{
		cfg:       cfg,
		store:     store,
		orders:    orders,
		validator: validator,
		retries:   retries,
		ledger:    ledger,
		sweepRepo: sweepRepo,
		log:       slog.Default(),
		firstSeen: make(map[string]time.Time),
		kick:      make(chan string, 1),
	}
}

// Run drives sweeps until ctx ends: optionally once at startup, then on the
// configured interval, plus on-demand triggers. A sweep in flight when ctx
// ends is not rescheduled; the current item completes and the loop exits.
func (m *Manager) Run(ctx context.Context) error {
	if cp, ok := m.ledger.(SweepCheckpointer); ok {
		if last, err := cp.LastCheckpoint(ctx); err == nil && !last.IsZero() {
			m.log.Info("Resuming after previous sweep",
				"finished_at", last, "age", time.Since(last).Round(time.Second))
		}
	}
	if m.cfg.RecoverOrders {
		if err := m.recoverOrders(ctx); err != nil {
			m.log.Warn("Startup order recovery failed", "error", err)
		}
	}
	if m.cfg.SweepOnStart {
		if _, err := m.sweep(ctx, "startup"); err != nil && !errors.Is(err, context.Canceled) {
			m.log.Error("Startup sweep failed", "error", err)
		}
	}

	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.sweep(ctx, "interval"); err != nil && !errors.Is(err, context.Canceled) {
				m.log.Error("Recovery sweep failed", "error", err)
			}
		case trigger := <-m.kick:
			if _, err := m.sweep(ctx, trigger); err != nil && !errors.Is(err, context.Canceled) {
				m.log.Error("Recovery sweep failed", "trigger", trigger, "error", err)
			}
		}
	}
}

// TriggerSweep requests an out-of-band sweep (e.g. on network restore). A
// pending request is collapsed with the new one.
func (m *Manager) TriggerSweep(trigger string) {
	select {
	case m.kick <- trigger:
	default:
	}
}

// Sweep runs one reconciliation pass and returns its statistics.
func (m *Manager) Sweep(ctx context.Context) (Statistics, error) {
	return m.sweep(ctx, "manual")
}

func (m *Manager) sweep(ctx context.Context, trigger string) (Statistics, error) {
	stats := Statistics{Trigger: trigger, StartedAt: time.Now()}

	pending, err := m.store.PendingTransactions(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetch pending transactions: %w", err)
	}

	// Oldest first: server-side orders expire, so the transactions closest
	// to expiry get their round trips before the fresh ones.
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].PurchaseDate.Equal(pending[j].PurchaseDate) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].PurchaseDate.Before(pending[j].PurchaseDate)
	})

	stats.TotalTransactions = len(pending)
	m.log.Info("Recovery sweep started", "trigger", trigger, "pending", len(pending))

	seen := make(map[string]bool, len(pending))
	var oldestInFlight time.Time

	for _, tx := range pending {
		if err := ctx.Err(); err != nil {
			m.finishSweep(ctx, &stats, oldestInFlight)
			return stats, err
		}

		stats.ProcessedTransactions++

		switch {
		case !tx.Valid():
			stats.FailedTransactions++
			metrics.TransactionsFailed.Inc()
			m.log.Warn("Skipping malformed transaction", "id", tx.ID, "product", tx.ProductID)

		case seen[tx.ID]:
			stats.FailedTransactions++
			metrics.TransactionsFailed.Inc()
			m.log.Warn("Duplicate transaction id in batch", "id", tx.ID)

		case tx.NeedsFinish():
			seen[tx.ID] = true
			if err := m.ProcessTransaction(ctx, tx); err != nil {
				stats.FailedTransactions++
				metrics.TransactionsFailed.Inc()
				m.log.Warn("Failed to recover transaction",
					"id", tx.ID, "state", tx.State, "error", err)
			} else {
				stats.RecoveredTransactions++
				metrics.TransactionsRecovered.Inc()
				m.clearInFlight(tx.ID)
			}

		case tx.State == domain.TxnStateFailed:
			seen[tx.ID] = true
			stats.FailedTransactions++
			metrics.TransactionsFailed.Inc()
			m.recordFailedTransaction(tx)

		case tx.InFlight():
			seen[tx.ID] = true
			stats.InProgressTransactions++
			first := m.trackInFlight(tx)
			if oldestInFlight.IsZero() || first.Before(oldestInFlight) {
				oldestInFlight = first
			}

		default:
			stats.FailedTransactions++
			metrics.TransactionsFailed.Inc()
			m.log.Warn("Transaction in unknown state", "id", tx.ID, "state", tx.State)
		}

		metrics.TransactionsObserved.WithLabelValues(string(tx.State)).Inc()
	}

	m.finishSweep(ctx, &stats, oldestInFlight)
	m.log.Info("Recovery sweep finished",
		"trigger", trigger,
		"total", stats.TotalTransactions,
		"recovered", stats.RecoveredTransactions,
		"failed", stats.FailedTransactions,
		"in_progress", stats.InProgressTransactions,
	)
	return stats, nil
}

// ProcessTransaction drives one successful terminal transaction through
// validate -> reconcile order -> finish. Idempotent end to end: an
// already-acknowledged transaction short-circuits to a finish no-op.
func (m *Manager) ProcessTransaction(ctx context.Context, tx domain.Transaction) error {
	if !tx.Valid() {
		return fmt.Errorf("transaction missing identifiers: %w", domain.ErrOrderValidation)
	}

	if m.ledger != nil {
		done, err := m.ledger.IsFinished(ctx, tx.ID)
		if err != nil {
			m.log.Warn("Finish ledger lookup failed", "id", tx.ID, "error", err)
		} else if done {
			// Acknowledged in a previous life; repeat the idempotent finish
			// in case the store never saw it.
			return m.finishTransaction(ctx, tx)
		}
	}

	result, err := retry.Execute(ctx, m.retries, "validate:"+tx.ID,
		func(ctx context.Context) (domain.ReceiptValidation, error) {
			return m.validator.ValidateReceipt(ctx, tx.Receipt)
		})
	if err != nil {
		return err
	}
	if !result.Valid {
		return domain.ErrInvalidReceipt
	}

	ord, err := m.orders.Reconcile(ctx, tx, result.Order)
	if err != nil {
		return err
	}

	switch {
	case ord.Status == domain.OrderStatusCompleted:
		// Server already settled; just acknowledge.
	case ord.Status.Terminal():
		return fmt.Errorf("order %s already %s: %w", ord.ID, ord.Status, domain.ErrOrderExpired)
	default:
		if err := m.orders.Transition(ctx, ord, domain.OrderStatusCompleted); err != nil {
			return err
		}
	}

	return m.finishTransaction(ctx, tx)
}

func (m *Manager) finishTransaction(ctx context.Context, tx domain.Transaction) error {
	err := m.retries.Do(ctx, "finish:"+tx.ID, func(ctx context.Context) error {
		return m.store.FinishTransaction(ctx, tx)
	})
	if err != nil {
		metrics.FinishCalls.WithLabelValues("error").Inc()
		return err
	}
	metrics.FinishCalls.WithLabelValues("ok").Inc()

	if m.ledger != nil {
		if _, err := m.ledger.MarkFinished(ctx, tx.ID, m.cfg.FinishedTTL); err != nil {
			m.log.Warn("Failed to mark transaction finished", "id", tx.ID, "error", err)
		}
	}
	return nil
}

// recordFailedTransaction books a store-failed transaction into the retry
// ledger when its failure is transient, so the next sweep backs off
// correctly. Terminal failures stay unfinished and uncounted in the ledger.
func (m *Manager) recordFailedTransaction(tx domain.Transaction) {
	opID := "txn:" + tx.ID
	switch domain.ClassifyFailure(tx.Failure) {
	case domain.CategoryRetryable:
		if m.retries.Exhausted(opID) {
			m.log.Warn("Transaction retries exhausted", "id", tx.ID, "failure", tx.Failure)
			return
		}
		m.retries.RecordAttempt(opID, errors.New(tx.Failure))
	default:
		m.log.Info("Transaction failed terminally", "id", tx.ID, "failure", tx.Failure)
	}
}

func (m *Manager) trackInFlight(tx domain.Transaction) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	first, ok := m.firstSeen[tx.ID]
	if !ok {
		first = tx.PurchaseDate
		if first.IsZero() {
			first = time.Now()
		}
		m.firstSeen[tx.ID] = first
	}
	return first
}

func (m *Manager) clearInFlight(txID string) {
	m.mu.Lock()
	delete(m.firstSeen, txID)
	m.mu.Unlock()
}

func (m *Manager) finishSweep(ctx context.Context, stats *Statistics, oldestInFlight time.Time) {
	stats.FinishedAt = time.Now()
	stats.OldestInFlight = oldestInFlight

	metrics.RecoverySweeps.Inc()
	metrics.SweepDuration.Observe(stats.FinishedAt.Sub(stats.StartedAt).Seconds())
	if oldestInFlight.IsZero() {
		metrics.StalledTransactionAge.Set(0)
	} else {
		metrics.StalledTransactionAge.Set(time.Since(oldestInFlight).Seconds())
	}

	m.mu.Lock()
	m.lastStats = *stats
	m.mu.Unlock()

	if m.sweepRepo != nil {
		rec := &storage.SweepRecord{
			Trigger:    stats.Trigger,
			StartedAt:  stats.StartedAt,
			FinishedAt: stats.FinishedAt,
			Total:      stats.TotalTransactions,
			Processed:  stats.ProcessedTransactions,
			Recovered:  stats.RecoveredTransactions,
			Failed:     stats.FailedTransactions,
			InProgress: stats.InProgressTransactions,
		}
		if err := m.sweepRepo.RecordSweep(ctx, rec); err != nil {
			m.log.Warn("Failed to record sweep", "error", err)
		}
	}

	if cp, ok := m.ledger.(SweepCheckpointer); ok {
		err := cp.SaveCheckpoint(ctx, stats.FinishedAt,
			stats.ProcessedTransactions, stats.RecoveredTransactions, stats.FailedTransactions)
		if err != nil {
			m.log.Warn("Failed to save sweep checkpoint", "error", err)
		}
	}
}

// LastStatistics returns the most recent sweep's statistics.
func (m *Manager) LastStatistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastStats
}

// recoverOrders reconciles orders the server still reports unsettled before
// the first sweep. Orders that never got a transaction (still "created" and
// matching no pending product) are cancelled; everything else is left for
// the sweep to settle through its transaction.
func (m *Manager) recoverOrders(ctx context.Context) error {
	orders, err := m.orders.RecoverPending(ctx)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return nil
	}

	pending, err := m.store.PendingTransactions(ctx)
	if err != nil {
		return fmt.Errorf("fetch pending transactions: %w", err)
	}
	pendingProducts := make(map[string]bool, len(pending))
	for _, tx := range pending {
		pendingProducts[tx.ProductID] = true
	}

	for _, ord := range orders {
		if ord.Status != domain.OrderStatusCreated || pendingProducts[ord.ProductID] {
			continue
		}
		if err := m.orders.Cancel(ctx, ord); err != nil {
			m.log.Warn("Failed to cancel orphaned order", "order", ord.ID, "error", err)
			continue
		}
		m.log.Info("Cancelled orphaned order", "order", ord.ID, "product", ord.ProductID)
	}
	return nil
}
