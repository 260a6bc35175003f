package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/swapsmith/orchestrator/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

var _ domain.OrderStore = (*OrderStore)(nil)

// Create inserts a new order into the database.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			external_order_id, user_id, source_asset, source_network, source_amount,
			dest_asset, dest_network, expected_settle_amount,
			deposit_address, deposit_memo, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		o.ExternalOrderID, o.UserID, o.SourceAsset, o.SourceNetwork, o.SourceAmount,
		o.DestAsset, o.DestNetwork, o.ExpectedSettleAmount,
		o.DepositAddress, o.DepositMemo, string(o.Status),
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ExternalOrderID, err)
	}
	return nil
}

// UpdateStatus sets the status of an existing order.
func (s *OrderStore) UpdateStatus(ctx context.Context, externalOrderID string, status domain.OrderStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE external_order_id = $2`,
		string(status), externalOrderID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update order status %s: %w", externalOrderID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const orderSelectCols = `external_order_id, user_id, source_asset, source_network, source_amount,
	dest_asset, dest_network, expected_settle_amount,
	deposit_address, deposit_memo, status, created_at, updated_at`

func scanOrderFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var status string
	var sourceAmount, expectedSettleAmount decimal.Decimal

	err := scanner.Scan(
		&o.ExternalOrderID, &o.UserID, &o.SourceAsset, &o.SourceNetwork, &sourceAmount,
		&o.DestAsset, &o.DestNetwork, &expectedSettleAmount,
		&o.DepositAddress, &o.DepositMemo, &status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Status = domain.OrderStatus(status)
	o.SourceAmount = sourceAmount
	o.ExpectedSettleAmount = expectedSettleAmount
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetByExternalID retrieves a single order by its aggregator-assigned ID.
func (s *OrderStore) GetByExternalID(ctx context.Context, externalOrderID string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE external_order_id = $1`, externalOrderID)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", externalOrderID, err)
	}
	return o, nil
}

// ListNonTerminal returns every order not yet in a terminal status. The
// monitor does not call it; Monitor.LoadPending seeds its in-memory state
// from the watched_orders table instead.
func (s *OrderStore) ListNonTerminal(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE status NOT IN ('settled', 'expired', 'refunded', 'failed')
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list non-terminal orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan non-terminal orders: %w", err)
	}
	return orders, nil
}

// ListByUser returns a user's order history, most recent first.
func (s *OrderStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{userID}

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by user: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders by user: %w", err)
	}
	return orders, nil
}
