package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/purchasekit/internal/core/domain"
	"github.com/vietddude/purchasekit/internal/infra/appstore"
	"github.com/vietddude/purchasekit/internal/metrics"
)

// State is the monitor lifecycle state.
type State string

const (
	StateStopped    State = "stopped"
	StateStarting   State = "starting"
	StateMonitoring State = "monitoring"
)

// Handler receives every observed transaction. Handlers are isolated from
// each other: one failing or panicking never blocks the rest.
type Handler func(ctx context.Context, tx domain.Transaction) error

// Finisher is the validate-then-finish path for terminal, successful,
// unfinished transactions. Satisfied by the recovery manager.
type Finisher interface {
	ProcessTransaction(ctx context.Context, tx domain.Transaction) error
}

// Config controls the monitor.
type Config struct {
	// PollInterval paces the periodic pending-transaction sweep that
	// backs up the live observer stream.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Stats is a snapshot of monitoring counters.
type Stats struct {
	State            State
	EventsObserved   int
	PendingProcessed int
	HandlerErrors    int
	LastEventAt      time.Time
}

// Monitor continuously observes the store's transaction stream and
// periodically sweeps pending transactions, fanning each event out to
// registered handlers and routing finishable transactions to the Finisher.
type Monitor struct {
	cfg      Config
	store    appstore.Adapter
	finisher Finisher
	log      *slog.Logger

	mu       sync.Mutex
	state    State
	handlers map[string]Handler
	stats    Stats
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewMonitor creates a stopped monitor.
func NewMonitor(cfg Config, store appstore.Adapter, finisher Finisher) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &Monitor{
		cfg:      cfg,
		store:    store,
		finisher: finisher,
		log:      slog.Default(),
		state:    StateStopped,
		stats:    Stats{State: StateStopped},
		handlers: make(map[string]Handler),
	}
}

// AddHandler registers a handler under the given identifier, replacing any
// previous handler with the same id.
func (m *Monitor) AddHandler(id string, h Handler) {
	m.mu.Lock()
	m.handlers[id] = h
	m.mu.Unlock()
}

// RemoveHandler unregisters the handler. Unknown ids are a no-op.
func (m *Monitor) RemoveHandler(id string) {
	m.mu.Lock()
	delete(m.handlers, id)
	m.mu.Unlock()
}

// Start begins observation. Calling Start while already monitoring is a
// no-op: the store listener is never registered twice.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateStopped {
		m.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	// Published while still starting: a concurrent Stop cancels this
	// session and waits on done instead of returning with nothing to stop.
	m.state = StateStarting
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	updates, err := m.store.StartObserver(runCtx)
	if err != nil {
		cancel()
		m.mu.Lock()
		m.state = StateStopped
		m.stats.State = StateStopped
		m.cancel = nil
		m.done = nil
		m.mu.Unlock()
		close(done)
		return fmt.Errorf("start transaction observer: %w", err)
	}

	m.mu.Lock()
	m.state = StateMonitoring
	m.stats.State = StateMonitoring
	m.mu.Unlock()

	go m.run(runCtx, updates, done)
	m.log.Info("Transaction monitor started", "poll_interval", m.cfg.PollInterval)
	return nil
}

// Stop cancels the background observation. Safe to call repeatedly; returns
// after the loop has exited.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.state == StateStopped {
		m.mu.Unlock()
		return nil
	}
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	if err := m.store.StopObserver(); err != nil {
		m.log.Warn("Failed to stop transaction observer", "error", err)
	}

	m.mu.Lock()
	m.state = StateStopped
	m.stats.State = StateStopped
	m.mu.Unlock()
	m.log.Info("Transaction monitor stopped")
	return nil
}

// Stats returns a snapshot of the monitoring counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Monitor) run(ctx context.Context, updates <-chan domain.Transaction, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tx, ok := <-updates:
			if !ok {
				return
			}
			m.handleEvent(ctx, tx)
		case <-ticker.C:
			m.sweepPending(ctx)
		}
	}
}

// sweepPending backs up the live stream: updates dropped while the app was
// backgrounded still get picked up here.
func (m *Monitor) sweepPending(ctx context.Context) {
	pending, err := m.store.PendingTransactions(ctx)
	if err != nil {
		m.log.Warn("Pending sweep failed", "error", err)
		return
	}

	for _, tx := range pending {
		if ctx.Err() != nil {
			return
		}
		m.handleEvent(ctx, tx)
		m.mu.Lock()
		m.stats.PendingProcessed++
		m.mu.Unlock()
	}
}

func (m *Monitor) handleEvent(ctx context.Context, tx domain.Transaction) {
	m.mu.Lock()
	m.stats.EventsObserved++
	m.stats.LastEventAt = time.Now()
	handlers := make(map[string]Handler, len(m.handlers))
	for id, h := range m.handlers {
		handlers[id] = h
	}
	m.mu.Unlock()

	metrics.TransactionsObserved.WithLabelValues(string(tx.State)).Inc()

	for id, h := range handlers {
		if err := m.dispatch(ctx, id, h, tx); err != nil {
			m.mu.Lock()
			m.stats.HandlerErrors++
			m.mu.Unlock()
			metrics.HandlerErrors.Inc()
			m.log.Warn("Handler failed", "handler", id, "txn", tx.ID, "error", err)
		}
	}

	if tx.NeedsFinish() && m.finisher != nil {
		if err := m.finisher.ProcessTransaction(ctx, tx); err != nil {
			// Left for the next recovery sweep; the monitor never throws
			// across its own boundary.
			m.log.Warn("Finish path failed, deferring to recovery",
				"txn", tx.ID, "state", tx.State, "error", err)
		}
	}
}

// dispatch runs one handler, converting a panic into an error so a broken
// handler cannot take down the monitor.
func (m *Monitor) dispatch(ctx context.Context, id string, h Handler, tx domain.Transaction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", id, r)
		}
	}()
	return h(ctx, tx)
}
