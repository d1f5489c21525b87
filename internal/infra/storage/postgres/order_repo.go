package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/purchasekit/internal/core/domain"
	"github.com/vietddude/purchasekit/internal/infra/storage"
)

// OrderRepo implements storage.OrderRepository using PostgreSQL.
type OrderRepo struct {
	db *DB
}

func NewOrderRepo(db *DB) *OrderRepo {
	return &OrderRepo{db: db}
}

type orderRow struct {
	ID        string    `db:"id"`
	ProductID string    `db:"product_id"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *OrderRepo) Save(ctx context.Context, ord *domain.Order) error {
	query := `
		INSERT INTO orders (id, product_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, COALESCE(NULLIF($4, '0001-01-01 00:00:00+00'::timestamptz), NOW()), NOW())
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, ord.ID, ord.ProductID, string(ord.Status), ord.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

func (r *OrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `
		SELECT id, product_id, status, created_at, updated_at
		FROM orders
		WHERE id = $1
	`
	var row orderRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return row.toDomain(), nil
}

func (r *OrderRepo) ListByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	query := `
		SELECT id, product_id, status, created_at, updated_at
		FROM orders
		WHERE status = $1
		ORDER BY created_at ASC
	`
	var rows []orderRow
	if err := r.db.SelectContext(ctx, &rows, query, string(status)); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	out := make([]*domain.Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *OrderRepo) PurgeSettledBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		DELETE FROM orders
		WHERE status IN ('completed', 'cancelled', 'expired', 'failed')
		  AND updated_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge orders: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (row orderRow) toDomain() *domain.Order {
	return &domain.Order{
		ID:        row.ID,
		ProductID: row.ProductID,
		Status:    domain.OrderStatus(row.Status),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
