package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vietddude/purchasekit/internal/infra/storage"
)

// SweepRepo implements storage.SweepRepository using PostgreSQL.
type SweepRepo struct {
	db *DB
}

func NewSweepRepo(db *DB) *SweepRepo {
	return &SweepRepo{db: db}
}

func (r *SweepRepo) RecordSweep(ctx context.Context, rec *storage.SweepRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	query := `
		INSERT INTO recovery_sweeps
			(id, trigger_kind, started_at, finished_at, total_txns, processed_txns, recovered_txns, failed_txns, in_progress_txns)
		VALUES
			(:id, :trigger_kind, :started_at, :finished_at, :total_txns, :processed_txns, :recovered_txns, :failed_txns, :in_progress_txns)
	`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to record sweep: %w", err)
	}
	return nil
}

func (r *SweepRepo) LastSweep(ctx context.Context) (*storage.SweepRecord, error) {
	query := `
		SELECT id, trigger_kind, started_at, finished_at, total_txns, processed_txns, recovered_txns, failed_txns, in_progress_txns
		FROM recovery_sweeps
		ORDER BY finished_at DESC
		LIMIT 1
	`
	var rec storage.SweepRecord
	err := r.db.GetContext(ctx, &rec, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last sweep: %w", err)
	}
	return &rec, nil
}
