package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swapsmith/orchestrator/internal/domain"
)

// ConversationStore implements domain.ConversationStore using PostgreSQL.
// Writes are optimistic-concurrency guarded by the version column; the
// CompareAndSwap UPDATE doubles as a row-level lock for the brief window of
// a single statement, so two concurrent writers racing on the same user
// never silently clobber one another.
type ConversationStore struct {
	pool *pgxpool.Pool
}

// NewConversationStore creates a new ConversationStore.
func NewConversationStore(pool *pgxpool.Pool) *ConversationStore {
	return &ConversationStore{pool: pool}
}

var _ domain.ConversationStore = (*ConversationStore)(nil)

// Get fetches a user's conversation state, returning a fresh zero-version
// state if none exists yet.
func (s *ConversationStore) Get(ctx context.Context, userID string) (domain.ConversationState, error) {
	var cs domain.ConversationState
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, state, version, updated_at FROM conversations WHERE user_id = $1`, userID,
	).Scan(&cs.UserID, &raw, &cs.Version, &cs.UpdatedAt)
	if err == pgx.ErrNoRows {
		return domain.ConversationState{UserID: userID, State: map[string]any{}, Version: 0}, nil
	}
	if err != nil {
		return domain.ConversationState{}, fmt.Errorf("postgres: get conversation for %s: %w", userID, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cs.State); err != nil {
			return domain.ConversationState{}, fmt.Errorf("postgres: unmarshal conversation state: %w", err)
		}
	}
	return cs, nil
}

// CompareAndSwap updates the row to newState if its current version matches
// expectedVersion. If no row exists yet, newState is inserted at version 1
// whatever expectedVersion is. On mismatch it returns domain.ErrAlreadyExists
// so the caller reloads and retries its edit against the latest state.
func (s *ConversationStore) CompareAndSwap(ctx context.Context, userID string, expectedVersion int64, newState map[string]any) error {
	raw, err := json.Marshal(newState)
	if err != nil {
		return fmt.Errorf("postgres: marshal conversation state: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (user_id, state, version, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET state = EXCLUDED.state, version = conversations.version + 1, updated_at = NOW()
		WHERE conversations.version = $3`,
		userID, raw, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("postgres: compare-and-swap conversation for %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: conversation version conflict for %s: %w", userID, domain.ErrAlreadyExists)
	}
	return nil
}
