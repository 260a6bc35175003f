package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swapsmith/orchestrator/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

const waitPollInterval = 50 * time.Millisecond

// RateLimiter implements domain.RateLimiter using a sliding-window approach
// backed by a Redis sorted set and an atomic Lua script. It is used by the
// monitor's status polling, to stay under the aggregator's documented rate
// limit, and by the HTTP server's per-IP RateLimit middleware; DCA and
// limit-order execution calls do not go through it.
type RateLimiter struct {
	rdb           *redis.Client
	slidingWindow *redis.Script
	limit         int
	window        time.Duration
}

// NewRateLimiter creates a RateLimiter enforcing limit requests per window,
// backed by the given Client.
func NewRateLimiter(c *Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		rdb:           c.Underlying(),
		slidingWindow: redis.NewScript(slidingWindowLua),
		limit:         limit,
		window:        window,
	}
}

func rateLimitKey(key string) string {
	return "ratelimit:" + key
}

// Allow checks whether a request for key is permitted under the configured
// sliding window, consuming one unit of budget if so.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixMicro()
	windowMicro := rl.window.Microseconds()

	result, err := rl.slidingWindow.Run(
		ctx, rl.rdb, []string{rateLimitKey(key)}, now, windowMicro, rl.limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	if len(result) < 2 {
		return false, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(result))
	}

	return result[0] == 1, nil
}

// Wait blocks until a request for key is allowed, polling at a fixed
// interval, or returns ctx.Err() if ctx is done first.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		default:
		}

		allowed, err := rl.Allow(ctx, key)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(waitPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
