package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/swapsmith/orchestrator/internal/domain"
)

// AdminCoinStore performs admin test-credit balance adjustments together
// with their audit trail entry inside a single transaction, grounded on the
// multi-statement transaction pattern in dca_plan_store.go's
// CompleteExecution.
type AdminCoinStore struct {
	pool *pgxpool.Pool
}

// NewAdminCoinStore creates a new AdminCoinStore.
func NewAdminCoinStore(pool *pgxpool.Pool) *AdminCoinStore {
	return &AdminCoinStore{pool: pool}
}

var _ domain.AdminCoinStore = (*AdminCoinStore)(nil)

// Adjust records one signed balance adjustment and its audit entry
// atomically, returning the user's resulting net adjustment.
func (s *AdminCoinStore) Adjust(ctx context.Context, entry domain.CoinGiftLog, audit domain.AdminAuditEntry) (decimal.Decimal, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: adjust coin balance: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO coin_gift_logs (target_user_id, admin_id, action, amount, note, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		entry.TargetUserID, entry.AdminID, string(entry.Action), entry.Amount, entry.Note,
	); err != nil {
		return decimal.Zero, fmt.Errorf("postgres: adjust coin balance: insert gift log: %w", err)
	}

	detail, err := json.Marshal(audit.Detail)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: adjust coin balance: marshal audit detail: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO admin_audit_log (admin_id, action, target_user_id, detail, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		audit.AdminID, audit.Action, audit.TargetUserID, detail,
	); err != nil {
		return decimal.Zero, fmt.Errorf("postgres: adjust coin balance: insert audit entry: %w", err)
	}

	var sum decimal.Decimal
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM coin_gift_logs WHERE target_user_id = $1`, entry.TargetUserID,
	).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("postgres: adjust coin balance: sum: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("postgres: adjust coin balance: commit: %w", err)
	}
	return sum, nil
}

// GiftAll credits amount to every user in userIDs and writes a single audit
// entry summarizing the batch, all in one transaction.
func (s *AdminCoinStore) GiftAll(ctx context.Context, userIDs []string, amount decimal.Decimal, adminID, note string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: gift all: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, userID := range userIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO coin_gift_logs (target_user_id, admin_id, action, amount, note, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())`,
			userID, adminID, string(domain.CoinGiftActionGift), amount, note,
		); err != nil {
			return 0, fmt.Errorf("postgres: gift all: insert gift log for %s: %w", userID, err)
		}
	}

	detail, err := json.Marshal(map[string]any{
		"amount":       amount.String(),
		"user_count":   len(userIDs),
		"note":         note,
	})
	if err != nil {
		return 0, fmt.Errorf("postgres: gift all: marshal audit detail: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO admin_audit_log (admin_id, action, target_user_id, detail, created_at)
		VALUES ($1, 'coin_gift_all', '', $2, NOW())`,
		adminID, detail,
	); err != nil {
		return 0, fmt.Errorf("postgres: gift all: insert audit entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: gift all: commit: %w", err)
	}
	return len(userIDs), nil
}
