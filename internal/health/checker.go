package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/purchasekit/internal/monitor"
	"github.com/vietddude/purchasekit/internal/recovery"
	"github.com/vietddude/purchasekit/internal/retry"
)

// Pinger checks connectivity to an external dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates health status from the monitoring and recovery
// subsystems plus optional infrastructure pingers.
type Checker struct {
	mon     *monitor.Monitor
	rec     *recovery.Manager
	retries *retry.Manager
	pingers map[string]Pinger

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport Report
}

// NewChecker creates a health checker. Pingers for "database" and "redis"
// are registered by the caller when those backends are configured.
func NewChecker(mon *monitor.Monitor, rec *recovery.Manager, retries *retry.Manager) *Checker {
	return &Checker{
		mon:     mon,
		rec:     rec,
		retries: retries,
		pingers: make(map[string]Pinger),
	}
}

// AddPinger registers an infrastructure dependency check.
func (c *Checker) AddPinger(name string, p Pinger) {
	c.mu.Lock()
	c.pingers[name] = p
	c.mu.Unlock()
}

// CheckHealth builds a health report. Checks are rate limited so the
// endpoint cannot hammer the backends.
func (c *Checker) CheckHealth(ctx context.Context) Report {
	// The mutex guards only the cache and pinger registry. Pings run
	// outside it so a hung backend cannot block concurrent health queries.
	c.mu.Lock()
	if time.Since(c.lastCheck) < 10*time.Second && len(c.lastReport.Components) > 0 {
		report := c.lastReport
		c.mu.Unlock()
		return report
	}
	pingers := make(map[string]Pinger, len(c.pingers))
	for name, p := range c.pingers {
		pingers[name] = p
	}
	c.mu.Unlock()

	report := Report{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth),
	}

	monStats := c.mon.Stats()
	monHealth := ComponentHealth{Name: "monitor", Status: StatusHealthy, Details: monStats}
	if monStats.State != monitor.StateMonitoring {
		monHealth.Status = StatusDegraded
	}
	report.Components["monitor"] = monHealth

	recStats := c.rec.LastStatistics()
	recHealth := ComponentHealth{Name: "recovery", Status: StatusHealthy, Details: recStats}
	switch {
	case !recStats.OldestInFlight.IsZero() && time.Since(recStats.OldestInFlight) > 24*time.Hour:
		recHealth.Status = StatusDegraded
	case recStats.ProcessedTransactions > 0 &&
		recStats.FailedTransactions > recStats.RecoveredTransactions:
		recHealth.Status = StatusDegraded
	}
	report.Components["recovery"] = recHealth

	retryStats := c.retries.Statistics()
	retryHealth := ComponentHealth{Name: "retry", Status: StatusHealthy, Details: retryStats}
	if retryStats.ExhaustedOperations > 0 {
		retryHealth.Status = StatusDegraded
	}
	report.Components["retry"] = retryHealth

	for name, p := range pingers {
		ch := ComponentHealth{Name: name, Status: StatusHealthy}
		if err := p.Ping(ctx); err != nil {
			ch.Status = StatusCritical
			ch.Error = err.Error()
		}
		report.Components[name] = ch
	}

	// Worst case wins.
	for _, comp := range report.Components {
		if comp.Status == StatusCritical {
			report.SystemStatus = StatusCritical
			break
		}
		if comp.Status == StatusDegraded {
			report.SystemStatus = StatusDegraded
		}
	}

	c.mu.Lock()
	c.lastCheck = time.Now()
	c.lastReport = report
	c.mu.Unlock()
	return report
}
