package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// OrderStore persists swap orders. Orders are never deleted, only
// terminal-archived via UpdateStatus.
type OrderStore interface {
	Create(ctx context.Context, o Order) error
	UpdateStatus(ctx context.Context, externalOrderID string, status OrderStatus) error
	GetByExternalID(ctx context.Context, externalOrderID string) (Order, error)
	ListNonTerminal(ctx context.Context) ([]Order, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Order, error)
}

// WatchedOrderStore persists the durable monitor registration records.
type WatchedOrderStore interface {
	// Insert is idempotent: inserting a duplicate ExternalOrderID is a no-op
	// (on-conflict-do-nothing), not an error.
	Insert(ctx context.Context, w WatchedOrder) error
	UpdateStatus(ctx context.Context, externalOrderID string, status OrderStatus) error
	ListAll(ctx context.Context) ([]WatchedOrder, error)
	GetByExternalID(ctx context.Context, externalOrderID string) (WatchedOrder, error)
}

// StatusLogStore appends immutable order-transition records.
type StatusLogStore interface {
	Append(ctx context.Context, entry StatusLog) error
	ListByOrder(ctx context.Context, externalOrderID string) ([]StatusLog, error)
}

// DCAPlanStore persists recurring swap plans and implements the skip-locked
// claim protocol used by the scheduler.
type DCAPlanStore interface {
	// ClaimDue selects up to limit rows where is_active AND
	// next_execution_at <= now, using FOR UPDATE SKIP LOCKED, and advances
	// each claimed row's next_execution_at to now+processingWindow (the lock
	// sentinel) within the same transaction. Concurrent callers never
	// observe the same row.
	ClaimDue(ctx context.Context, now time.Time, processingWindow time.Duration, limit int) ([]DCAPlan, error)
	// CompleteExecution inserts the order, inserts the watched-order row
	// (on-conflict-do-nothing), increments the plan's executed_count, and
	// reschedules next_execution_at, all in one transaction.
	CompleteExecution(ctx context.Context, planID int64, order Order, watched WatchedOrder, nextExecutionAt time.Time) error
	// Reschedule sets next_execution_at without touching executed_count; used
	// for retry-later and skip-due-to-missing-settlement-address paths.
	Reschedule(ctx context.Context, planID int64, nextExecutionAt time.Time, lastError string) error
	GetByID(ctx context.Context, id int64) (DCAPlan, error)
	ListActive(ctx context.Context) ([]DCAPlan, error)
}

// LimitOrderStore persists price-armed intents.
type LimitOrderStore interface {
	ListArmedDue(ctx context.Context, now time.Time) ([]LimitOrder, error)
	MarkTriggered(ctx context.Context, id int64) error
	MarkExecuting(ctx context.Context, id int64) error
	// CompleteExecution moves the limit order to settled, inserts the order
	// and watched-order rows, in one transaction.
	CompleteExecution(ctx context.Context, id int64, order Order, watched WatchedOrder) error
	ScheduleRetry(ctx context.Context, id int64, retryCount int, retryAfter time.Time, lastError string) error
	MarkDead(ctx context.Context, id int64, lastError string) error
	GetByID(ctx context.Context, id int64) (LimitOrder, error)
}

// PriceSnapshotStore persists the durable copy of cached prices (the Redis
// cache in front of it is the hot path; this is the source of truth and
// reconciliation fallback).
type PriceSnapshotStore interface {
	Upsert(ctx context.Context, snap PriceSnapshot) error
	Get(ctx context.Context, asset, chain string) (PriceSnapshot, error)
}

// UserStore reads the minimal user projection needed at the core's boundary.
type UserStore interface {
	GetByID(ctx context.Context, id string) (User, error)
	GetSettings(ctx context.Context, userID string) (UserSettings, error)
	// ListIDs returns every known user ID, used by the admin gift-all action.
	ListIDs(ctx context.Context) ([]string, error)
}

// CoinGiftStore persists admin test-credit adjustments and exposes the
// running balance used by invariant 6 (sum of signed amounts equals current
// balance minus initial balance).
type CoinGiftStore interface {
	Insert(ctx context.Context, entry CoinGiftLog) error
	SumForUser(ctx context.Context, userID string) (decimal.Decimal, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]CoinGiftLog, error)
}

// AdminAuditStore persists the immutable admin privilege-action log.
type AdminAuditStore interface {
	Append(ctx context.Context, entry AdminAuditEntry) error
	ListRecent(ctx context.Context, opts ListOpts) ([]AdminAuditEntry, error)
}

// AdminCoinStore performs admin test-credit adjustments atomically with
// their audit trail entry, so a balance mutation can never be recorded
// without the privileged action that caused it.
type AdminCoinStore interface {
	// Adjust inserts entry and audit in one transaction and returns the
	// user's resulting net balance adjustment.
	Adjust(ctx context.Context, entry CoinGiftLog, audit AdminAuditEntry) (decimal.Decimal, error)
	// GiftAll inserts one CoinGiftLog per user ID and one AdminAuditEntry
	// summarizing the batch, in a single transaction, returning the number
	// of users credited.
	GiftAll(ctx context.Context, userIDs []string, amount decimal.Decimal, adminID, note string) (int, error)
}

// ConversationStore persists per-user dialog state under optimistic
// concurrency combined with a row-level exclusive lock for contended writes.
type ConversationStore interface {
	Get(ctx context.Context, userID string) (ConversationState, error)
	// CompareAndSwap updates the row only if its current version equals
	// expectedVersion, returning ErrAlreadyExists-wrapped conflict info on
	// mismatch so the caller can reload and retry.
	CompareAndSwap(ctx context.Context, userID string, expectedVersion int64, newState map[string]any) error
}
