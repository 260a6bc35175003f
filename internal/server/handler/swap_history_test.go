package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swapsmith/orchestrator/internal/domain"
)

type fakeOrderHistory struct {
	orders []domain.Order
	err    error
}

func (f *fakeOrderHistory) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Order, error) {
	return f.orders, f.err
}

func TestSwapHistoryHandler_RequiresUserID(t *testing.T) {
	h := NewSwapHistoryHandler(&fakeOrderHistory{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/swap-history", nil)
	rec := httptest.NewRecorder()

	h.ListHistory(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSwapHistoryHandler_ReturnsEmptyArrayNotNull(t *testing.T) {
	h := NewSwapHistoryHandler(&fakeOrderHistory{orders: nil}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/swap-history?userId=user-1", nil)
	rec := httptest.NewRecorder()

	h.ListHistory(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"orders":[]}`, rec.Body.String())
}

func TestSwapHistoryHandler_ReturnsOrders(t *testing.T) {
	orders := []domain.Order{{ExternalOrderID: "ord-1", UserID: "user-1"}}
	h := NewSwapHistoryHandler(&fakeOrderHistory{orders: orders}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/swap-history?userId=user-1", nil)
	rec := httptest.NewRecorder()

	h.ListHistory(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp swapHistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Orders, 1)
	assert.Equal(t, "ord-1", resp.Orders[0].ExternalOrderID)
}

func TestSwapHistoryHandler_SurfacesStoreErrorAs500(t *testing.T) {
	h := NewSwapHistoryHandler(&fakeOrderHistory{err: assert.AnError}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/swap-history?userId=user-1", nil)
	rec := httptest.NewRecorder()

	h.ListHistory(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUserIDQueryParam_ExtractsFromQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/swap-history?userId=user-42", nil)
	assert.Equal(t, "user-42", UserIDQueryParam(req))
}
