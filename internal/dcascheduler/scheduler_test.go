package dcascheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swapsmith/orchestrator/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePlanStore struct {
	mu                  sync.Mutex
	completed           []int64
	rescheduled         []int64
	lastError           string
	lastNextExecutionAt time.Time
	completeErr         error
	rescheduleErr       error
}

func (f *fakePlanStore) ClaimDue(ctx context.Context, now time.Time, processingWindow time.Duration, limit int) ([]domain.DCAPlan, error) {
	return nil, nil
}

func (f *fakePlanStore) CompleteExecution(ctx context.Context, planID int64, order domain.Order, watched domain.WatchedOrder, nextExecutionAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completed = append(f.completed, planID)
	return nil
}

func (f *fakePlanStore) Reschedule(ctx context.Context, planID int64, nextExecutionAt time.Time, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rescheduled = append(f.rescheduled, planID)
	f.lastError = lastError
	f.lastNextExecutionAt = nextExecutionAt
	return f.rescheduleErr
}

func (f *fakePlanStore) GetByID(ctx context.Context, id int64) (domain.DCAPlan, error) { return domain.DCAPlan{}, nil }
func (f *fakePlanStore) ListActive(ctx context.Context) ([]domain.DCAPlan, error)      { return nil, nil }

type fakeUserStore struct {
	user domain.User
	err  error
}

func (f *fakeUserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	return f.user, f.err
}
func (f *fakeUserStore) GetSettings(ctx context.Context, userID string) (domain.UserSettings, error) {
	return domain.UserSettings{}, nil
}
func (f *fakeUserStore) ListIDs(ctx context.Context) ([]string, error) { return nil, nil }

type fakeAggregator struct {
	quote      domain.Quote
	quoteErr   error
	order      domain.CreateOrderResult
	orderErr   error
}

func (f *fakeAggregator) GetQuote(ctx context.Context, sourceAsset, sourceNetwork string, amount decimal.Decimal, destAsset, destNetwork string) (domain.Quote, error) {
	return f.quote, f.quoteErr
}

func (f *fakeAggregator) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.CreateOrderResult, error) {
	return f.order, f.orderErr
}

func (f *fakeAggregator) GetOrderStatus(ctx context.Context, externalOrderID string) (domain.OrderStatusResult, error) {
	return domain.OrderStatusResult{}, nil
}

func (f *fakeAggregator) CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResult, error) {
	return domain.CheckoutResult{}, nil
}

type fakeTracker struct {
	mu        sync.Mutex
	tracked   []string
}

func (f *fakeTracker) Track(externalOrderID, userID string, status domain.OrderStatus, createdAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked = append(f.tracked, externalOrderID)
}

func samplePlan() domain.DCAPlan {
	return domain.DCAPlan{
		ID:            1,
		UserID:        "user-1",
		SourceAsset:   "USDC",
		SourceNetwork: "ethereum",
		DestAsset:     "ETH",
		DestNetwork:   "ethereum",
		AmountPerExec: decimal.NewFromInt(100),
		IntervalHours: 24,
	}
}

func TestScheduler_Execute_ReschedulesWhenUserHasNoSettlementAddress(t *testing.T) {
	plans := &fakePlanStore{}
	users := &fakeUserStore{user: domain.User{ID: "user-1"}}
	tracker := &fakeTracker{}
	s := New(plans, users, &fakeAggregator{}, tracker, discardLogger(), Config{})

	s.execute(t.Context(), samplePlan())

	assert.Empty(t, plans.completed)
	require.Len(t, plans.rescheduled, 1)
	assert.Equal(t, int64(1), plans.rescheduled[0])
	assert.Empty(t, tracker.tracked)
	// Skipping a cycle for a missing settlement address still waits the full
	// recurrence interval, not the short transient-failure retry delay.
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), plans.lastNextExecutionAt, 5*time.Second)
}

func TestScheduler_Execute_ReschedulesOnQuoteFailure(t *testing.T) {
	plans := &fakePlanStore{}
	users := &fakeUserStore{user: domain.User{ID: "user-1", SettlementAddress: "0xabc"}}
	agg := &fakeAggregator{quoteErr: errors.New("quote unavailable")}
	s := New(plans, users, agg, &fakeTracker{}, discardLogger(), Config{RetryDelay: 5 * time.Minute})

	s.execute(t.Context(), samplePlan())

	assert.Empty(t, plans.completed)
	assert.Len(t, plans.rescheduled, 1)
	assert.Equal(t, "quote unavailable", plans.lastError)
	// A transient quote failure retries after RetryDelay, not a full 24h cycle.
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), plans.lastNextExecutionAt, 5*time.Second)
}

func TestScheduler_Execute_ReschedulesOnCreateOrderFailure(t *testing.T) {
	plans := &fakePlanStore{}
	users := &fakeUserStore{user: domain.User{ID: "user-1", SettlementAddress: "0xabc"}}
	agg := &fakeAggregator{
		quote:    domain.Quote{RateFingerprint: "fp-1", DestAmount: decimal.NewFromInt(99)},
		orderErr: errors.New("order rejected"),
	}
	s := New(plans, users, agg, &fakeTracker{}, discardLogger(), Config{RetryDelay: 5 * time.Minute})

	s.execute(t.Context(), samplePlan())

	assert.Empty(t, plans.completed)
	assert.Len(t, plans.rescheduled, 1)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), plans.lastNextExecutionAt, 5*time.Second)
}

func TestScheduler_Execute_CompletesAndTracksOnSuccess(t *testing.T) {
	plans := &fakePlanStore{}
	users := &fakeUserStore{user: domain.User{ID: "user-1", SettlementAddress: "0xabc"}}
	agg := &fakeAggregator{
		quote: domain.Quote{RateFingerprint: "fp-1", DestAmount: decimal.NewFromInt(99)},
		order: domain.CreateOrderResult{ExternalOrderID: "ord-1", DepositAddress: "0xdead", Status: domain.OrderStatusWaiting},
	}
	tracker := &fakeTracker{}
	s := New(plans, users, agg, tracker, discardLogger(), Config{})

	s.execute(t.Context(), samplePlan())

	require.Len(t, plans.completed, 1)
	assert.Equal(t, int64(1), plans.completed[0])
	require.Len(t, tracker.tracked, 1)
	assert.Equal(t, "ord-1", tracker.tracked[0])
}

func TestScheduler_Execute_LoadUserFailureReschedulesWithoutExecuting(t *testing.T) {
	plans := &fakePlanStore{}
	users := &fakeUserStore{err: errors.New("db down")}
	agg := &fakeAggregator{}
	s := New(plans, users, agg, &fakeTracker{}, discardLogger(), Config{RetryDelay: 5 * time.Minute})

	s.execute(t.Context(), samplePlan())

	assert.Empty(t, plans.completed)
	assert.Len(t, plans.rescheduled, 1)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), plans.lastNextExecutionAt, 5*time.Second)
}
