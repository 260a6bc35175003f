package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/swapsmith/orchestrator/internal/domain"
)

// unlockLua deletes a lock key only if its value matches the caller's
// unique token, so one holder can never release another holder's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager using Redis SETNX with a TTL and
// a Lua-based conditional unlock.
type LockManager struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
	}
}

func lockKey(name string) string {
	return "lock:" + name
}

// heldLock implements domain.Lock. Unlock is safe to call multiple times.
type heldLock struct {
	lm       *LockManager
	key      string
	token    string
	released bool
}

func (l *heldLock) Unlock(ctx context.Context) error {
	if l.released {
		return nil
	}
	l.released = true
	if err := l.lm.unlockSc.Run(ctx, l.lm.rdb, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("redis: unlock %s: %w", l.key, err)
	}
	return nil
}

// Acquire attempts to obtain a distributed lock for name with the given TTL.
// It returns domain.ErrLockHeld if another owner currently holds it.
func (lm *LockManager) Acquire(ctx context.Context, name string, ttl time.Duration) (domain.Lock, error) {
	token := uuid.New().String()
	lk := lockKey(name)

	ok, err := lm.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	return &heldLock{lm: lm, key: lk, token: token}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
