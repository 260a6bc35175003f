package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/swapsmith/orchestrator/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new UserStore.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

var _ domain.UserStore = (*UserStore)(nil)

// GetByID fetches a user by ID.
func (s *UserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, settlement_address, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.SettlementAddress, &u.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", id, err)
	}
	return u, nil
}

// GetSettings fetches a user's settings, falling back to the documented
// default slippage tolerance if no row exists yet.
func (s *UserStore) GetSettings(ctx context.Context, userID string) (domain.UserSettings, error) {
	var settings domain.UserSettings
	var tolerance decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, slippage_tolerance, updated_at FROM user_settings WHERE user_id = $1`, userID,
	).Scan(&settings.UserID, &tolerance, &settings.UpdatedAt)
	if err == pgx.ErrNoRows {
		return domain.UserSettings{
			UserID:            userID,
			SlippageTolerance: decimal.NewFromFloat(0.005),
		}, nil
	}
	if err != nil {
		return domain.UserSettings{}, fmt.Errorf("postgres: get settings for %s: %w", userID, err)
	}
	settings.SlippageTolerance = tolerance
	return settings, nil
}

// ListIDs returns every known user ID.
func (s *UserStore) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
