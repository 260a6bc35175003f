package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/swapsmith/orchestrator/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each price
// series is stored as a hash at key "price:{asset}:{chain}" with fields
// "price", "updated_at" and "expires_at" (Unix nanosecond timestamps).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(asset, chain string) string {
	return "price:" + asset + ":" + chain
}

// SetPrice stores the latest snapshot for an (asset, chain) pair.
func (pc *PriceCache) SetPrice(ctx context.Context, snap domain.PriceSnapshot) error {
	key := priceKey(snap.Asset, snap.Chain)
	fields := map[string]any{
		"price":      snap.Price.String(),
		"updated_at": strconv.FormatInt(snap.UpdatedAt.UnixNano(), 10),
		"expires_at": strconv.FormatInt(snap.ExpiresAt.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s/%s: %w", snap.Asset, snap.Chain, err)
	}
	return nil
}

func parseSnapshot(asset, chain string, vals map[string]string) (domain.PriceSnapshot, error) {
	priceStr, ok := vals["price"]
	if !ok {
		return domain.PriceSnapshot{}, domain.ErrNotFound
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("redis: parse price %s/%s: %w", asset, chain, err)
	}

	updatedStr, ok := vals["updated_at"]
	if !ok {
		return domain.PriceSnapshot{}, domain.ErrNotFound
	}
	updatedNano, err := strconv.ParseInt(updatedStr, 10, 64)
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("redis: parse updated_at %s/%s: %w", asset, chain, err)
	}

	var expires time.Time
	if expiresStr, ok := vals["expires_at"]; ok {
		if expiresNano, err := strconv.ParseInt(expiresStr, 10, 64); err == nil {
			expires = time.Unix(0, expiresNano)
		}
	}

	return domain.PriceSnapshot{
		Asset:     asset,
		Chain:     chain,
		Price:     price,
		UpdatedAt: time.Unix(0, updatedNano),
		ExpiresAt: expires,
	}, nil
}

// GetPrice retrieves the latest snapshot for an (asset, chain) pair. It
// returns domain.ErrNotFound when no snapshot has been cached yet.
func (pc *PriceCache) GetPrice(ctx context.Context, asset, chain string) (domain.PriceSnapshot, error) {
	key := priceKey(asset, chain)
	vals, err := pc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("redis: get price %s/%s: %w", asset, chain, err)
	}
	if len(vals) == 0 {
		return domain.PriceSnapshot{}, domain.ErrNotFound
	}
	return parseSnapshot(asset, chain, vals)
}

// GetPrices retrieves snapshots for multiple (asset, chain) pairs using a
// pipeline. Pairs whose keys do not exist are silently omitted.
func (pc *PriceCache) GetPrices(ctx context.Context, keys []domain.AssetChainKey) (map[domain.AssetChainKey]domain.PriceSnapshot, error) {
	if len(keys) == 0 {
		return map[domain.AssetChainKey]domain.PriceSnapshot{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[domain.AssetChainKey]*redis.MapStringStringCmd, len(keys))
	for _, k := range keys {
		cmds[k] = pipe.HGetAll(ctx, priceKey(k.Asset, k.Chain))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[domain.AssetChainKey]domain.PriceSnapshot, len(keys))
	for k, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		snap, err := parseSnapshot(k.Asset, k.Chain, vals)
		if err != nil {
			continue
		}
		result[k] = snap
	}

	return result, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
