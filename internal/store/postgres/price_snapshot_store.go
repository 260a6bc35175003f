package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/swapsmith/orchestrator/internal/domain"
)

// PriceSnapshotStore implements domain.PriceSnapshotStore using PostgreSQL.
// It is the durable table for price snapshots. Price reads on the hot path go
// to the Redis price cache only; nothing falls back to this store on a cache
// miss or outage.
type PriceSnapshotStore struct {
	pool *pgxpool.Pool
}

// NewPriceSnapshotStore creates a new PriceSnapshotStore.
func NewPriceSnapshotStore(pool *pgxpool.Pool) *PriceSnapshotStore {
	return &PriceSnapshotStore{pool: pool}
}

var _ domain.PriceSnapshotStore = (*PriceSnapshotStore)(nil)

// Upsert writes the latest observed price for an (asset, chain) pair.
func (s *PriceSnapshotStore) Upsert(ctx context.Context, snap domain.PriceSnapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO price_snapshots (asset, chain, price, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (asset, chain) DO UPDATE
		SET price = EXCLUDED.price, updated_at = EXCLUDED.updated_at, expires_at = EXCLUDED.expires_at`,
		snap.Asset, snap.Chain, snap.Price, snap.UpdatedAt, snap.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert price snapshot %s/%s: %w", snap.Asset, snap.Chain, err)
	}
	return nil
}

// Get fetches the stored snapshot for an (asset, chain) pair.
func (s *PriceSnapshotStore) Get(ctx context.Context, asset, chain string) (domain.PriceSnapshot, error) {
	var snap domain.PriceSnapshot
	var price decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`SELECT asset, chain, price, updated_at, expires_at FROM price_snapshots WHERE asset = $1 AND chain = $2`,
		asset, chain,
	).Scan(&snap.Asset, &snap.Chain, &price, &snap.UpdatedAt, &snap.ExpiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.PriceSnapshot{}, domain.ErrNotFound
		}
		return domain.PriceSnapshot{}, fmt.Errorf("postgres: get price snapshot %s/%s: %w", asset, chain, err)
	}
	snap.Price = price
	return snap, nil
}
