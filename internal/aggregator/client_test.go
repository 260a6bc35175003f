package aggregator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swapsmith/orchestrator/internal/domain"
)

func TestClient_GetQuote_ParsesSuccessResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/quote", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(quoteResponse{
			DestAmount:      "99.5",
			RateFingerprint: "fp-1",
			ExpiresAt:       time.Unix(1700000000, 0).UTC(),
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
	quote, err := c.GetQuote(t.Context(), "USDC", "ethereum", decimal.NewFromInt(100), "ETH", "ethereum")

	require.NoError(t, err)
	assert.True(t, quote.DestAmount.Equal(decimal.NewFromFloat(99.5)))
	assert.Equal(t, "fp-1", quote.RateFingerprint)
}

func TestClient_GetQuote_ClassifiesErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(errorBody{Code: "rate_limited", Message: "slow down"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
	_, err := c.GetQuote(t.Context(), "USDC", "ethereum", decimal.NewFromInt(100), "ETH", "ethereum")

	require.Error(t, err)
	var aggErr *domain.AggregatorError
	require.ErrorAs(t, err, &aggErr)
	assert.Equal(t, http.StatusTooManyRequests, aggErr.HTTPStatus)
	assert.True(t, aggErr.Retryable())
	assert.Equal(t, 2*time.Second, aggErr.RetryAfter)
}

func TestClient_CreateOrder_SendsExpectedBody(t *testing.T) {
	var gotBody createOrderRequestBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(createOrderResponse{
			ExternalOrderID: "ord-1",
			DepositAddress:  "0xabc",
			Status:          "waiting",
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
	result, err := c.CreateOrder(t.Context(), domain.CreateOrderRequest{
		RateFingerprint: "fp-1",
		UserID:          "user-1",
		SettlementAddr:  "0xdead",
	})

	require.NoError(t, err)
	assert.Equal(t, "ord-1", result.ExternalOrderID)
	assert.Equal(t, domain.OrderStatus("waiting"), result.Status)
	assert.Equal(t, "fp-1", gotBody.RateFingerprint)
	assert.Equal(t, "0xdead", gotBody.SettlementAddr)
}

func TestClient_GetOrderStatus_ParsesSettledAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders/ord-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(orderStatusResponse{
			Status:        "settled",
			SettledAmount: "42.1",
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
	result, err := c.GetOrderStatus(t.Context(), "ord-1")

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusSettled, result.Status)
	assert.True(t, result.SettledAmount.Equal(decimal.NewFromFloat(42.1)))
}

func TestClient_CreateCheckout_SendsExpectedBodyAndParsesResponse(t *testing.T) {
	var gotBody checkoutRequestBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(checkoutResponse{
			CheckoutID:     "chk-1",
			PayLink:        "https://pay.example/chk-1",
			DepositAddress: "0xabc",
			ExpiresAt:      time.Unix(1700000000, 0).UTC(),
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
	result, err := c.CreateCheckout(t.Context(), domain.CheckoutRequest{
		DestAsset:      "ETH",
		DestNetwork:    "ethereum",
		DestAmount:     decimal.NewFromInt(50),
		SettlementAddr: "0xdead",
	})

	require.NoError(t, err)
	assert.Equal(t, "chk-1", result.CheckoutID)
	assert.Equal(t, "https://pay.example/chk-1", result.PayLink)
	assert.Equal(t, "50", gotBody.DestAmount)
	assert.Equal(t, "0xdead", gotBody.SettlementAddr)
}

func TestClient_DoRequest_WrapsTransportFailureAsAggregatorError(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:0", APIKey: "test-key"})
	_, err := c.GetOrderStatus(t.Context(), "ord-1")

	require.Error(t, err)
	var aggErr *domain.AggregatorError
	assert.ErrorAs(t, err, &aggErr)
}
