package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swapsmith/orchestrator/internal/domain"
)

// StatusLogStore implements domain.StatusLogStore using PostgreSQL.
type StatusLogStore struct {
	pool *pgxpool.Pool
}

// NewStatusLogStore creates a new StatusLogStore.
func NewStatusLogStore(pool *pgxpool.Pool) *StatusLogStore {
	return &StatusLogStore{pool: pool}
}

var _ domain.StatusLogStore = (*StatusLogStore)(nil)

// Append records one observed transition. The table is append-only; no
// update or delete method exists on this store by design.
func (s *StatusLogStore) Append(ctx context.Context, entry domain.StatusLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO status_log (external_order_id, old_status, new_status, emitted_at, payload_fingerprint)
		VALUES ($1, $2, $3, NOW(), $4)`,
		entry.ExternalOrderID, string(entry.OldStatus), string(entry.NewStatus), entry.PayloadFingerprint,
	)
	if err != nil {
		return fmt.Errorf("postgres: append status log for %s: %w", entry.ExternalOrderID, err)
	}
	return nil
}

// ListByOrder returns the full transition history for one order, oldest first.
func (s *StatusLogStore) ListByOrder(ctx context.Context, externalOrderID string) ([]domain.StatusLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, external_order_id, old_status, new_status, emitted_at, payload_fingerprint
		FROM status_log WHERE external_order_id = $1 ORDER BY emitted_at ASC`,
		externalOrderID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list status log for %s: %w", externalOrderID, err)
	}
	defer rows.Close()

	var out []domain.StatusLog
	for rows.Next() {
		var l domain.StatusLog
		var oldStatus, newStatus string
		if err := rows.Scan(&l.ID, &l.ExternalOrderID, &oldStatus, &newStatus, &l.EmittedAt, &l.PayloadFingerprint); err != nil {
			return nil, fmt.Errorf("postgres: scan status log row: %w", err)
		}
		l.OldStatus = domain.OrderStatus(oldStatus)
		l.NewStatus = domain.OrderStatus(newStatus)
		out = append(out, l)
	}
	return out, rows.Err()
}
