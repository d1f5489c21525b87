package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/purchasekit/internal/core/domain"
)

// ErrNotFound is returned when a repository lookup matches nothing.
var ErrNotFound = errors.New("not found")

// OrderRepository archives order outcomes. Layered persistence: the core
// works without it, a configured database makes the audit trail durable.
type OrderRepository interface {
	// Save upserts the order by id.
	Save(ctx context.Context, ord *domain.Order) error

	GetByID(ctx context.Context, id string) (*domain.Order, error)

	ListByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error)

	// PurgeSettledBefore removes terminal orders last updated before cutoff
	// and reports how many were removed.
	PurgeSettledBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// SweepRecord is the audit row for one recovery sweep.
type SweepRecord struct {
	ID         string    `db:"id"`
	Trigger    string    `db:"trigger_kind"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
	Total      int       `db:"total_txns"`
	Processed  int       `db:"processed_txns"`
	Recovered  int       `db:"recovered_txns"`
	Failed     int       `db:"failed_txns"`
	InProgress int       `db:"in_progress_txns"`
}

// SweepRepository records recovery sweeps for auditing.
type SweepRepository interface {
	RecordSweep(ctx context.Context, rec *SweepRecord) error
	LastSweep(ctx context.Context) (*SweepRecord, error)
}
