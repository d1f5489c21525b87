package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/purchasekit/internal/infra/storage"
	"github.com/vietddude/purchasekit/internal/order"
)

// Janitor expires stale server orders and purges settled archive rows
// past the retention window.
type Janitor struct {
	interval  time.Duration
	retention time.Duration
	orders    *order.Service
	archive   storage.OrderRepository // nil when persistence is disabled
	log       *slog.Logger
}

// NewJanitor creates a new Janitor worker. retention <= 0 keeps archived
// orders forever.
func NewJanitor(
	interval time.Duration,
	retention time.Duration,
	orders *order.Service,
	archive storage.OrderRepository,
) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{
		interval:  interval,
		retention: retention,
		orders:    orders,
		archive:   archive,
		log:       slog.Default(),
	}
}

// Start runs the janitor loop.
func (j *Janitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Initial pass
	j.clean(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.clean(ctx)
		}
	}
}

func (j *Janitor) clean(ctx context.Context) {
	expired, err := j.orders.CleanupExpired(ctx)
	if err != nil {
		j.log.Warn("Failed to expire stale orders", "error", err)
	} else if expired > 0 {
		j.log.Info("Expired stale orders", "count", expired)
	}

	if j.archive == nil || j.retention <= 0 {
		return
	}

	cutoff := time.Now().Add(-j.retention)
	purged, err := j.archive.PurgeSettledBefore(ctx, cutoff)
	if err != nil {
		j.log.Warn("Failed to purge settled orders", "error", err)
	} else if purged > 0 {
		j.log.Info("Purged settled orders", "count", purged, "cutoff", cutoff)
	}
}
