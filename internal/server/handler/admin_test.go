package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swapsmith/orchestrator/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAdminCoins struct {
	adjustBalance decimal.Decimal
	adjustErr     error
	giftAllCount  int
	giftAllErr    error
	lastEntry     domain.CoinGiftLog
	lastUserIDs   []string
}

func (f *fakeAdminCoins) Adjust(ctx context.Context, entry domain.CoinGiftLog, audit domain.AdminAuditEntry) (decimal.Decimal, error) {
	f.lastEntry = entry
	return f.adjustBalance, f.adjustErr
}

func (f *fakeAdminCoins) GiftAll(ctx context.Context, userIDs []string, amount decimal.Decimal, adminID, note string) (int, error) {
	f.lastUserIDs = userIDs
	return f.giftAllCount, f.giftAllErr
}

type fakeAdminStats struct {
	sum     decimal.Decimal
	sumErr  error
	history []domain.CoinGiftLog
	listErr error
}

func (f *fakeAdminStats) SumForUser(ctx context.Context, userID string) (decimal.Decimal, error) {
	return f.sum, f.sumErr
}

func (f *fakeAdminStats) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.CoinGiftLog, error) {
	return f.history, f.listErr
}

type fakeUserLister struct {
	ids []string
	err error
}

func (f *fakeUserLister) ListIDs(ctx context.Context) ([]string, error) {
	return f.ids, f.err
}

func TestAdminHandler_Adjust_RejectsInvalidAction(t *testing.T) {
	h := NewAdminHandler(&fakeAdminCoins{}, &fakeAdminStats{}, &fakeUserLister{}, discardLogger())

	body := `{"adminId":"admin-1","userId":"user-1","action":"bogus","amount":"10"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/coins/adjust", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	h.Adjust(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminHandler_Adjust_RejectsNegativeAmount(t *testing.T) {
	h := NewAdminHandler(&fakeAdminCoins{}, &fakeAdminStats{}, &fakeUserLister{}, discardLogger())

	body := `{"adminId":"admin-1","userId":"user-1","action":"gift","amount":"-10"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/coins/adjust", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	h.Adjust(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminHandler_Adjust_AppliesSignForDeduct(t *testing.T) {
	coins := &fakeAdminCoins{adjustBalance: decimal.NewFromInt(40)}
	h := NewAdminHandler(coins, &fakeAdminStats{}, &fakeUserLister{}, discardLogger())

	body := `{"adminId":"admin-1","userId":"user-1","action":"deduct","amount":"10"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/coins/adjust", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	h.Adjust(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, coins.lastEntry.Amount.Equal(decimal.NewFromInt(-10)))

	var resp adjustResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Balance.Equal(decimal.NewFromInt(40)))
}

func TestAdminHandler_Adjust_RejectsMissingIDs(t *testing.T) {
	h := NewAdminHandler(&fakeAdminCoins{}, &fakeAdminStats{}, &fakeUserLister{}, discardLogger())

	body := `{"adminId":"","userId":"","action":"gift","amount":"10"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/coins/adjust", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	h.Adjust(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminHandler_Stats_RequiresUserID(t *testing.T) {
	h := NewAdminHandler(&fakeAdminCoins{}, &fakeAdminStats{}, &fakeUserLister{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/admin/coins/stats", nil)
	rec := httptest.NewRecorder()

	h.Stats(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminHandler_Stats_ReturnsBalanceAndHistory(t *testing.T) {
	stats := &fakeAdminStats{
		sum:     decimal.NewFromInt(25),
		history: []domain.CoinGiftLog{{TargetUserID: "user-1", Amount: decimal.NewFromInt(25)}},
	}
	h := NewAdminHandler(&fakeAdminCoins{}, stats, &fakeUserLister{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/admin/coins/stats?userId=user-1", nil)
	rec := httptest.NewRecorder()

	h.Stats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "user-1", resp.UserID)
	assert.Len(t, resp.History, 1)
}

func TestAdminHandler_GiftAll_RejectsNonPositiveAmount(t *testing.T) {
	h := NewAdminHandler(&fakeAdminCoins{}, &fakeAdminStats{}, &fakeUserLister{}, discardLogger())

	body := `{"adminId":"admin-1","amount":"0"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/coins/gift-all", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	h.GiftAll(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminHandler_GiftAll_CreditsEveryListedUser(t *testing.T) {
	coins := &fakeAdminCoins{giftAllCount: 3}
	users := &fakeUserLister{ids: []string{"u1", "u2", "u3"}}
	h := NewAdminHandler(coins, &fakeAdminStats{}, users, discardLogger())

	body := `{"adminId":"admin-1","amount":"5","note":"promo"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/coins/gift-all", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	h.GiftAll(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"u1", "u2", "u3"}, coins.lastUserIDs)

	var resp giftAllResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.UsersCredited)
}
