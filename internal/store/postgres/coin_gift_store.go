package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/swapsmith/orchestrator/internal/domain"
)

// CoinGiftStore implements domain.CoinGiftStore using PostgreSQL.
type CoinGiftStore struct {
	pool *pgxpool.Pool
}

// NewCoinGiftStore creates a new CoinGiftStore.
func NewCoinGiftStore(pool *pgxpool.Pool) *CoinGiftStore {
	return &CoinGiftStore{pool: pool}
}

var _ domain.CoinGiftStore = (*CoinGiftStore)(nil)

// Insert appends one admin balance adjustment.
func (s *CoinGiftStore) Insert(ctx context.Context, entry domain.CoinGiftLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO coin_gift_logs (target_user_id, admin_id, action, amount, note, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		entry.TargetUserID, entry.AdminID, string(entry.Action), entry.Amount, entry.Note,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert coin gift log for %s: %w", entry.TargetUserID, err)
	}
	return nil
}

// SumForUser returns the net signed balance adjustment recorded for a user.
// Amounts are stored with CoinGiftAction.Signed applied (deduct negative,
// gift and reset positive), so a plain sum is the net of all stored entries;
// a reset entry adds its amount like a gift and does not zero the balance.
func (s *CoinGiftStore) SumForUser(ctx context.Context, userID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM coin_gift_logs WHERE target_user_id = $1`, userID,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: sum coin gifts for %s: %w", userID, err)
	}
	return sum, nil
}

// ListByUser returns a user's coin gift history, most recent first.
func (s *CoinGiftStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.CoinGiftLog, error) {
	query := `SELECT id, target_user_id, admin_id, action, amount, note, created_at
		FROM coin_gift_logs WHERE target_user_id = $1 ORDER BY created_at DESC`
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
		return nil, fmt.Errorf("postgres: list coin gifts for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []domain.CoinGiftLog
	for rows.Next() {
		var l domain.CoinGiftLog
		var action string
		if err := rows.Scan(&l.ID, &l.TargetUserID, &l.AdminID, &action, &l.Amount, &l.Note, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan coin gift log: %w", err)
		}
		l.Action = domain.CoinGiftAction(action)
		out = append(out, l)
	}
	return out, rows.Err()
}
