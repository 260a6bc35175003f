package limitworker

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

type fakeLimitOrderStore struct {
	mu           sync.Mutex
	triggered    []int64
	executing    []int64
	completed    []int64
	retried      []int64
	dead         []int64
	lastRetryAt  time.Time
	lastError    string
	completeErr  error
}

func (f *fakeLimitOrderStore) ListArmedDue(ctx context.Context, now time.Time) ([]domain.LimitOrder, error) {
	return nil, nil
}

func (f *fakeLimitOrderStore) MarkTriggered(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, id)
	return nil
}

func (f *fakeLimitOrderStore) MarkExecuting(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executing = append(f.executing, id)
	return nil
}

func (f *fakeLimitOrderStore) CompleteExecution(ctx context.Context, id int64, order domain.Order, watched domain.WatchedOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeLimitOrderStore) ScheduleRetry(ctx context.Context, id int64, retryCount int, retryAfter time.Time, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retried = append(f.retried, id)
	f.lastRetryAt = retryAfter
	f.lastError = lastError
	return nil
}

func (f *fakeLimitOrderStore) MarkDead(ctx context.Context, id int64, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead = append(f.dead, id)
	f.lastError = lastError
	return nil
}

func (f *fakeLimitOrderStore) GetByID(ctx context.Context, id int64) (domain.LimitOrder, error) {
	return domain.LimitOrder{}, nil
}

type fakePriceCache struct {
	snap domain.PriceSnapshot
	err  error
}

func (f *fakePriceCache) SetPrice(ctx context.Context, snap domain.PriceSnapshot) error { return nil }

func (f *fakePriceCache) GetPrice(ctx context.Context, asset, chain string) (domain.PriceSnapshot, error) {
	return f.snap, f.err
}

func (f *fakePriceCache) GetPrices(ctx context.Context, keys []domain.AssetChainKey) (map[domain.AssetChainKey]domain.PriceSnapshot, error) {
	return nil, nil
}

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
	quote    domain.Quote
	quoteErr error
	order    domain.CreateOrderResult
	orderErr error
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
	mu      sync.Mutex
	tracked []string
}

func (f *fakeTracker) Track(externalOrderID, userID string, status domain.OrderStatus, createdAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked = append(f.tracked, externalOrderID)
}

func sampleLimitOrder() domain.LimitOrder {
	return domain.LimitOrder{
		ID:             1,
		UserID:         "user-1",
		SourceAsset:    "USDC",
		SourceNetwork:  "ethereum",
		DestAsset:      "ETH",
		DestNetwork:    "ethereum",
		Amount:         decimal.NewFromInt(100),
		TargetPrice:    decimal.NewFromInt(2000),
		Condition:      domain.LimitConditionBelow,
		ReferenceAsset: "ETH",
		ReferenceChain: "ethereum",
	}
}

func TestWorker_Evaluate_SkipsWhenNoPriceCached(t *testing.T) {
	orders := &fakeLimitOrderStore{}
	prices := &fakePriceCache{err: domain.ErrNotFound}
	w := New(orders, prices, &fakeAggregator{}, &fakeUserStore{}, &fakeTracker{}, discardLogger(), Config{})

	w.evaluate(t.Context(), sampleLimitOrder())

	assert.Empty(t, orders.triggered)
}

func TestWorker_Evaluate_SkipsWhenPriceStale(t *testing.T) {
	orders := &fakeLimitOrderStore{}
	prices := &fakePriceCache{snap: domain.PriceSnapshot{
		Asset: "ETH", Chain: "ethereum",
		Price:     decimal.NewFromInt(1900),
		UpdatedAt: time.Now().Add(-time.Hour),
	}}
	w := New(orders, prices, &fakeAggregator{}, &fakeUserStore{}, &fakeTracker{}, discardLogger(), Config{MaxStaleness: time.Minute})

	w.evaluate(t.Context(), sampleLimitOrder())

	assert.Empty(t, orders.triggered)
}

func TestWorker_Evaluate_SkipsWhenConditionNotMet(t *testing.T) {
	orders := &fakeLimitOrderStore{}
	prices := &fakePriceCache{snap: domain.PriceSnapshot{
		Asset: "ETH", Chain: "ethereum",
		Price:     decimal.NewFromInt(2100), // above target, condition is "below"
		UpdatedAt: time.Now(),
	}}
	w := New(orders, prices, &fakeAggregator{}, &fakeUserStore{}, &fakeTracker{}, discardLogger(), Config{})

	w.evaluate(t.Context(), sampleLimitOrder())

	assert.Empty(t, orders.triggered)
}

func TestWorker_Evaluate_FiresWhenConditionMet(t *testing.T) {
	orders := &fakeLimitOrderStore{}
	prices := &fakePriceCache{snap: domain.PriceSnapshot{
		Asset: "ETH", Chain: "ethereum",
		Price:     decimal.NewFromInt(1900),
		UpdatedAt: time.Now(),
	}}
	agg := &fakeAggregator{
		quote: domain.Quote{RateFingerprint: "fp-1", DestAmount: decimal.NewFromInt(99)},
		order: domain.CreateOrderResult{ExternalOrderID: "ord-1", Status: domain.OrderStatusWaiting},
	}
	users := &fakeUserStore{user: domain.User{ID: "user-1", SettlementAddress: "0xabc"}}
	tracker := &fakeTracker{}
	w := New(orders, prices, agg, users, tracker, discardLogger(), Config{})

	w.evaluate(t.Context(), sampleLimitOrder())

	require.Len(t, orders.triggered, 1)
	require.Len(t, orders.executing, 1)
	require.Len(t, orders.completed, 1)
	require.Len(t, tracker.tracked, 1)
	assert.Equal(t, "ord-1", tracker.tracked[0])
}

func TestWorker_HandleFailure_SchedulesRetryUnderLimit(t *testing.T) {
	orders := &fakeLimitOrderStore{}
	w := New(orders, &fakePriceCache{}, &fakeAggregator{}, &fakeUserStore{}, &fakeTracker{}, discardLogger(), Config{MaxRetries: 5})

	lo := sampleLimitOrder()
	lo.RetryCount = 1
	w.handleFailure(t.Context(), lo, errors.New("transient"), discardLogger())

	assert.Len(t, orders.retried, 1)
	assert.Empty(t, orders.dead)
}

func TestWorker_HandleFailure_MarksDeadAfterMaxRetries(t *testing.T) {
	orders := &fakeLimitOrderStore{}
	w := New(orders, &fakePriceCache{}, &fakeAggregator{}, &fakeUserStore{}, &fakeTracker{}, discardLogger(), Config{MaxRetries: 3})

	lo := sampleLimitOrder()
	lo.RetryCount = 3
	w.handleFailure(t.Context(), lo, errors.New("permanent"), discardLogger())

	assert.Empty(t, orders.retried)
	assert.Len(t, orders.dead, 1)
	assert.Equal(t, "permanent", orders.lastError)
}

func TestWorker_Fire_FailsWhenUserHasNoSettlementAddress(t *testing.T) {
	orders := &fakeLimitOrderStore{}
	users := &fakeUserStore{user: domain.User{ID: "user-1"}}
	w := New(orders, &fakePriceCache{}, &fakeAggregator{}, users, &fakeTracker{}, discardLogger(), Config{})

	err := w.fire(t.Context(), sampleLimitOrder(), discardLogger())

	assert.Error(t, err)
}

func TestRetryBackoff_CapsAtMaxBackoff(t *testing.T) {
	cfg := Config{BaseBackoff: time.Second, MaxBackoff: 10 * time.Second}.Defaults()

	assert.Equal(t, time.Second, retryBackoff(cfg, 0))
	assert.Equal(t, 2*time.Second, retryBackoff(cfg, 1))
	assert.Equal(t, 4*time.Second, retryBackoff(cfg, 2))
	assert.Equal(t, cfg.MaxBackoff, retryBackoff(cfg, 10))
}
