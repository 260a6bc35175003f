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

// DCAPlanStore implements domain.DCAPlanStore using PostgreSQL.
type DCAPlanStore struct {
	pool *pgxpool.Pool
}

// NewDCAPlanStore creates a new DCAPlanStore.
func NewDCAPlanStore(pool *pgxpool.Pool) *DCAPlanStore {
	return &DCAPlanStore{pool: pool}
}

var _ domain.DCAPlanStore = (*DCAPlanStore)(nil)

const dcaPlanSelectCols = `id, user_id, source_asset, source_network, dest_asset, dest_network,
	amount_per_exec, interval_hours, next_execution_at, is_active, executed_count, last_error, created_at`

func scanDCAPlan(scanner interface{ Scan(dest ...any) error }) (domain.DCAPlan, error) {
	var p domain.DCAPlan
	var amount decimal.Decimal
	err := scanner.Scan(
		&p.ID, &p.UserID, &p.SourceAsset, &p.SourceNetwork, &p.DestAsset, &p.DestNetwork,
		&amount, &p.IntervalHours, &p.NextExecutionAt, &p.IsActive, &p.ExecutedCount, &p.LastError, &p.CreatedAt,
	)
	if err != nil {
		return domain.DCAPlan{}, err
	}
	p.AmountPerExec = amount
	return p, nil
}

// ClaimDue selects up to limit due, active plans with FOR UPDATE SKIP LOCKED
// so that concurrent scheduler instances never claim the same plan, then
// advances each claimed row's next_execution_at to now+processingWindow as a
// lock sentinel: if this process crashes before CompleteExecution or
// Reschedule runs, the row becomes claimable again once the sentinel expires.
func (s *DCAPlanStore) ClaimDue(ctx context.Context, now time.Time, processingWindow time.Duration, limit int) ([]domain.DCAPlan, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin claim due: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT `+dcaPlanSelectCols+`
		FROM dca_plans
		WHERE is_active AND next_execution_at <= $1
		ORDER BY next_execution_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: query claim due: %w", err)
	}

	var claimed []domain.DCAPlan
	for rows.Next() {
		p, err := scanDCAPlan(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scan claimed plan: %w", err)
		}
		claimed = append(claimed, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate claimed plans: %w", err)
	}
	if len(claimed) == 0 {
		return nil, tx.Commit(ctx)
	}

	sentinel := now.Add(processingWindow)
	ids := make([]int64, len(claimed))
	for i, p := range claimed {
		ids[i] = p.ID
		claimed[i].NextExecutionAt = sentinel
	}

	if _, err := tx.Exec(ctx,
		`UPDATE dca_plans SET next_execution_at = $1 WHERE id = ANY($2)`,
		sentinel, ids,
	); err != nil {
		return nil, fmt.Errorf("postgres: write claim sentinel: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit claim due: %w", err)
	}
	return claimed, nil
}

// CompleteExecution records a successful DCA execution: inserts the order,
// registers it for monitoring, increments executed_count, and reschedules
// the plan, all within one transaction.
func (s *DCAPlanStore) CompleteExecution(ctx context.Context, planID int64, order domain.Order, watched domain.WatchedOrder, nextExecutionAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin complete execution: %w", err)
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
		return fmt.Errorf("postgres: insert order from dca plan %d: %w", planID, err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO watched_orders (external_order_id, user_id, last_status, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (external_order_id) DO NOTHING`,
		watched.ExternalOrderID, watched.UserID, string(watched.LastStatus),
	); err != nil {
		return fmt.Errorf("postgres: insert watched order from dca plan %d: %w", planID, err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE dca_plans
		SET executed_count = executed_count + 1, next_execution_at = $1, last_error = ''
		WHERE id = $2`,
		nextExecutionAt, planID,
	)
	if err != nil {
		return fmt.Errorf("postgres: reschedule dca plan %d: %w", planID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit complete execution: %w", err)
	}
	return nil
}

// Reschedule advances next_execution_at without crediting executed_count,
// used when a plan's execution attempt failed or was skipped.
func (s *DCAPlanStore) Reschedule(ctx context.Context, planID int64, nextExecutionAt time.Time, lastError string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dca_plans SET next_execution_at = $1, last_error = $2 WHERE id = $3`,
		nextExecutionAt, lastError, planID,
	)
	if err != nil {
		return fmt.Errorf("postgres: reschedule dca plan %d: %w", planID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID fetches a single plan.
func (s *DCAPlanStore) GetByID(ctx context.Context, id int64) (domain.DCAPlan, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+dcaPlanSelectCols+` FROM dca_plans WHERE id = $1`, id)
	p, err := scanDCAPlan(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.DCAPlan{}, domain.ErrNotFound
		}
		return domain.DCAPlan{}, fmt.Errorf("postgres: get dca plan %d: %w", id, err)
	}
	return p, nil
}

// ListActive returns every active plan, used for diagnostics and admin views.
func (s *DCAPlanStore) ListActive(ctx context.Context) ([]domain.DCAPlan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+dcaPlanSelectCols+` FROM dca_plans WHERE is_active ORDER BY next_execution_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active dca plans: %w", err)
	}
	defer rows.Close()

	var out []domain.DCAPlan
	for rows.Next() {
		p, err := scanDCAPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan active dca plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
