package retry

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/purchasekit/internal/core/domain"
	"github.com/vietddude/purchasekit/internal/metrics"
)

// Record tracks the attempt history of one unresolved operation. It exists
// only while the operation is failing: success deletes it, exhaustion leaves
// it for inspection.
type Record struct {
	OperationID  string
	AttemptCount int
	LastError    error
	LastAttempt  time.Time
}

// Statistics is a point-in-time summary of the ledger.
type Statistics struct {
	ActiveOperations    int
	ExhaustedOperations int
	TotalAttempts       int
}

// Manager owns the per-operation attempt ledger and drives retries with the
// configured backoff. Distinct operation ids run in parallel; ledger
// mutations are serialized through a single mutex.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	records map[string]*Record

	// now and sleep are swapped out in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewManager creates a manager with an empty ledger.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:     cfg,
		records: make(map[string]*Record),
		now:     time.Now,
		sleep:   sleepWithContext,
	}
}

// Config returns the manager's configuration.
func (m *Manager) Config() Config { return m.cfg }

// GetDelay returns the wait before the next invocation of the operation:
// zero before any attempt was recorded, otherwise derived from the strategy
// and the recorded attempt count.
func (m *Manager) GetDelay(operationID string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[operationID]
	if !ok {
		return 0
	}
	return m.cfg.Delay(rec.AttemptCount)
}

// RecordAttempt increments the operation's attempt count and stores the
// error and timestamp. It returns the count after the increment.
func (m *Manager) RecordAttempt(operationID string, err error) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[operationID]
	if !ok {
		rec = &Record{OperationID: operationID}
		m.records[operationID] = rec
	}
	rec.AttemptCount++
	rec.LastError = err
	rec.LastAttempt = m.now()

	metrics.RetryAttempts.Inc()
	return rec.AttemptCount
}

// Record returns a copy of the operation's ledger entry, if any.
func (m *Manager) Record(operationID string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[operationID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// ClearRecord removes the operation's ledger entry. Callers use it to purge
// stale exhausted records before re-driving an operation.
func (m *Manager) ClearRecord(operationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, operationID)
}

// Exhausted reports whether the operation burned through its retry budget.
func (m *Manager) Exhausted(operationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[operationID]
	return ok && rec.AttemptCount >= m.cfg.MaxRetries+1
}

// Statistics summarizes the current ledger.
func (m *Manager) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Statistics{ActiveOperations: len(m.records)}
	for _, rec := range m.records {
		stats.TotalAttempts += rec.AttemptCount
		if rec.AttemptCount >= m.cfg.MaxRetries+1 {
			stats.ExhaustedOperations++
		}
	}
	return stats
}

// Do runs the operation, retrying retryable failures with backoff until
// MaxRetries+1 total invocations. Success clears the ledger entry; the final
// failure is returned unwrapped with its record left in place. Cancelled and
// terminal error kinds abort immediately.
func (m *Manager) Do(ctx context.Context, operationID string, op func(ctx context.Context) error) error {
	for {
		if d := m.GetDelay(operationID); d > 0 {
			if err := m.sleep(ctx, d); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			m.ClearRecord(operationID)
			return nil
		}

		attempts := m.RecordAttempt(operationID, err)
		if !domain.Retryable(err) {
			return err
		}
		if attempts >= m.cfg.MaxRetries+1 {
			metrics.RetryExhausted.Inc()
			return err
		}
	}
}

// Execute runs an operation that yields a value, with Do's retry semantics.
func Execute[T any](ctx context.Context, m *Manager, operationID string, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := m.Do(ctx, operationID, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
