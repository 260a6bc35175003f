package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swapsmith/orchestrator/internal/domain"
)

// WatchedOrderStore implements domain.WatchedOrderStore using PostgreSQL.
type WatchedOrderStore struct {
	pool *pgxpool.Pool
}

// NewWatchedOrderStore creates a new WatchedOrderStore.
func NewWatchedOrderStore(pool *pgxpool.Pool) *WatchedOrderStore {
	return &WatchedOrderStore{pool: pool}
}

var _ domain.WatchedOrderStore = (*WatchedOrderStore)(nil)

// Insert registers an order for monitoring. Re-registering an order already
// under watch is a no-op, so restart-time reconciliation can call this
// unconditionally for every non-terminal order.
func (s *WatchedOrderStore) Insert(ctx context.Context, w domain.WatchedOrder) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO watched_orders (external_order_id, user_id, last_status, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (external_order_id) DO NOTHING`,
		w.ExternalOrderID, w.UserID, string(w.LastStatus),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert watched order %s: %w", w.ExternalOrderID, err)
	}
	return nil
}

// UpdateStatus records the last status observed for a watched order.
func (s *WatchedOrderStore) UpdateStatus(ctx context.Context, externalOrderID string, status domain.OrderStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE watched_orders SET last_status = $1 WHERE external_order_id = $2`,
		string(status), externalOrderID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update watched order %s: %w", externalOrderID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListAll returns every watched order, used to seed the monitor on startup.
func (s *WatchedOrderStore) ListAll(ctx context.Context) ([]domain.WatchedOrder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT external_order_id, user_id, last_status, created_at FROM watched_orders ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list watched orders: %w", err)
	}
	defer rows.Close()

	var out []domain.WatchedOrder
	for rows.Next() {
		var w domain.WatchedOrder
		var status string
		if err := rows.Scan(&w.ExternalOrderID, &w.UserID, &status, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan watched order: %w", err)
		}
		w.LastStatus = domain.OrderStatus(status)
		out = append(out, w)
	}
	return out, rows.Err()
}

// GetByExternalID fetches one watched order.
func (s *WatchedOrderStore) GetByExternalID(ctx context.Context, externalOrderID string) (domain.WatchedOrder, error) {
	var w domain.WatchedOrder
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT external_order_id, user_id, last_status, created_at FROM watched_orders WHERE external_order_id = $1`,
		externalOrderID,
	).Scan(&w.ExternalOrderID, &w.UserID, &status, &w.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.WatchedOrder{}, domain.ErrNotFound
		}
		return domain.WatchedOrder{}, fmt.Errorf("postgres: get watched order %s: %w", externalOrderID, err)
	}
	w.LastStatus = domain.OrderStatus(status)
	return w, nil
}
