package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swapsmith/orchestrator/internal/domain"
)

// AdminAuditStore implements domain.AdminAuditStore using PostgreSQL. The
// underlying table is dedicated and immutable, separate from status_log, per
// the spec's open question on admin-action auditing (see DESIGN.md).
type AdminAuditStore struct {
	pool *pgxpool.Pool
}

// NewAdminAuditStore creates a new AdminAuditStore.
func NewAdminAuditStore(pool *pgxpool.Pool) *AdminAuditStore {
	return &AdminAuditStore{pool: pool}
}

var _ domain.AdminAuditStore = (*AdminAuditStore)(nil)

// Append records one privileged admin action.
func (s *AdminAuditStore) Append(ctx context.Context, entry domain.AdminAuditEntry) error {
	detail, err := json.Marshal(entry.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal admin audit detail: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO admin_audit_log (admin_id, action, target_user_id, detail, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		entry.AdminID, entry.Action, entry.TargetUserID, detail,
	)
	if err != nil {
		return fmt.Errorf("postgres: append admin audit entry: %w", err)
	}
	return nil
}

// ListRecent returns the most recent admin actions, newest first.
func (s *AdminAuditStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.AdminAuditEntry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, admin_id, action, target_user_id, detail, created_at
		FROM admin_audit_log ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list admin audit entries: %w", err)
	}
	defer rows.Close()

	var out []domain.AdminAuditEntry
	for rows.Next() {
		var e domain.AdminAuditEntry
		var detail []byte
		if err := rows.Scan(&e.ID, &e.AdminID, &e.Action, &e.TargetUserID, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan admin audit entry: %w", err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal admin audit detail: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
