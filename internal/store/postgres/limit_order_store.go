package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/swapsmith/orchestrator/internal/domain"
)

// LimitOrderStore implements domain.LimitOrderStore using PostgreSQL.
type LimitOrderStore struct {
	pool *pgxpool.Pool
}

// NewLimitOrderStore creates a new LimitOrderStore.
func NewLimitOrderStore(pool *pgxpool.Pool) *LimitOrderStore {
	return &LimitOrderStore{pool: pool}
}

var _ domain.LimitOrderStore = (*LimitOrderStore)(nil)

const limitOrderSelectCols = `id, user_id, source_asset, source_network, dest_asset, dest_network,
	amount, target_price, condition, reference_asset, reference_chain,
	status, retry_count, retry_after, last_error, created_at, updated_at`

func scanLimitOrder(scanner interface{ Scan(dest ...any) error }) (domain.LimitOrder, error) {
	var l domain.LimitOrder
	var amount, target decimal.Decimal
	var condition, status string
	err := scanner.Scan(
		&l.ID, &l.UserID, &l.SourceAsset, &l.SourceNetwork, &l.DestAsset, &l.DestNetwork,
		&amount, &target, &condition, &l.ReferenceAsset, &l.ReferenceChain,
		&status, &l.RetryCount, &l.RetryAfter, &l.LastError, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.LimitOrder{}, err
	}
	l.Amount = amount
	l.TargetPrice = target
	l.Condition = domain.LimitCondition(condition)
	l.Status = domain.LimitOrderStatus(status)
	return l, nil
}

// ListArmedDue returns every armed limit order whose retry backoff (if any)
// has elapsed, which the worker must re-evaluate against the current price.
func (s *LimitOrderStore) ListArmedDue(ctx context.Context, now time.Time) ([]domain.LimitOrder, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+limitOrderSelectCols+`
		FROM limit_orders
		WHERE status = 'armed' AND (retry_after IS NULL OR retry_after <= $1)
		ORDER BY created_at ASC`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list armed limit orders: %w", err)
	}
	defer rows.Close()

	var out []domain.LimitOrder
	for rows.Next() {
		l, err := scanLimitOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan armed limit order: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// MarkTriggered flags that the target price condition has been met but
// execution has not yet started.
func (s *LimitOrderStore) MarkTriggered(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, domain.LimitOrderTriggered)
}

// MarkExecuting flags that an execution attempt is in flight.
func (s *LimitOrderStore) MarkExecuting(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, domain.LimitOrderExecuting)
}

func (s *LimitOrderStore) setStatus(ctx context.Context, id int64, status domain.LimitOrderStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE limit_orders SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), id,
	)
	if err != nil {
		return fmt.Errorf("postgres: set limit order %d status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CompleteExecution moves a limit order to settled and registers the
// resulting order for monitoring, in one transaction.
func (s *LimitOrderStore) CompleteExecution(ctx context.Context, id int64, order domain.Order, watched domain.WatchedOrder) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin complete limit order execution: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO orders (
			external_order_id, user_id, source_asset, source_network, source_amount,
			dest_asset, dest_network, expected_settle_amount,
			deposit_address, deposit_memo, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())`,
		order.ExternalOrderID, order.UserID, order.SourceAsset, order.SourceNetwork, order.SourceAmount,
		order.DestAsset, order.DestNetwork, order.ExpectedSettleAmount,
		order.DepositAddress, order.DepositMemo, string(order.Status),
	); err != nil {
		return fmt.Errorf("postgres: insert order from limit order %d: %w", id, err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO watched_orders (external_order_id, user_id, last_status, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (external_order_id) DO NOTHING`,
		watched.ExternalOrderID, watched.UserID, string(watched.LastStatus),
	); err != nil {
		return fmt.Errorf("postgres: insert watched order from limit order %d: %w", id, err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE limit_orders SET status = 'settled', updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: settle limit order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit complete limit order execution: %w", err)
	}
	return nil
}

// ScheduleRetry returns a limit order to the armed pool with a backoff.
func (s *LimitOrderStore) ScheduleRetry(ctx context.Context, id int64, retryCount int, retryAfter time.Time, lastError string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE limit_orders
		SET status = 'armed', retry_count = $1, retry_after = $2, last_error = $3, updated_at = NOW()
		WHERE id = $4`,
		retryCount, retryAfter, lastError, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: schedule retry for limit order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkDead permanently stops retrying a limit order after exhausting its
// backoff budget.
func (s *LimitOrderStore) MarkDead(ctx context.Context, id int64, lastError string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE limit_orders SET status = 'dead', last_error = $1, updated_at = NOW() WHERE id = $2`,
		lastError, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark limit order %d dead: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID fetches a single limit order.
func (s *LimitOrderStore) GetByID(ctx context.Context, id int64) (domain.LimitOrder, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+limitOrderSelectCols+` FROM limit_orders WHERE id = $1`, id)
	l, err := scanLimitOrder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.LimitOrder{}, domain.ErrNotFound
		}
		return domain.LimitOrder{}, fmt.Errorf("postgres: get limit order %d: %w", id, err)
	}
	return l, nil
}
