// Package aggregator implements domain.AggregatorClient against the
// external swap-aggregation HTTP API that is the orchestration core's sole
// upstream boundary.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/swapsmith/orchestrator/internal/domain"
)

// Client is the REST client for the swap aggregator API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config holds connection parameters for the aggregator client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewClient creates a new aggregator REST client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ domain.AggregatorClient = (*Client)(nil)

type quoteResponse struct {
	DestAmount      string    `json:"destAmount"`
	RateFingerprint string    `json:"rateFingerprint"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// GetQuote requests a price/amount estimate for a prospective swap.
func (c *Client) GetQuote(ctx context.Context, sourceAsset, sourceNetwork string, amount decimal.Decimal, destAsset, destNetwork string) (domain.Quote, error) {
	params := url.Values{}
	params.Set("sourceAsset", sourceAsset)
	params.Set("sourceNetwork", sourceNetwork)
	params.Set("sourceAmount", amount.String())
	params.Set("destAsset", destAsset)
	params.Set("destNetwork", destNetwork)

	body, err := c.doRequest(ctx, http.MethodGet, "/v1/quote?"+params.Encode(), nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("aggregator: get quote: %w", err)
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("aggregator: decode quote: %w", err)
	}

	destAmount, err := decimal.NewFromString(resp.DestAmount)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("aggregator: parse quote dest amount: %w", err)
	}

	return domain.Quote{
		SourceAsset:     sourceAsset,
		SourceNetwork:   sourceNetwork,
		SourceAmount:    amount,
		DestAsset:       destAsset,
		DestNetwork:     destNetwork,
		DestAmount:      destAmount,
		RateFingerprint: resp.RateFingerprint,
		ExpiresAt:       resp.ExpiresAt,
	}, nil
}

type createOrderRequestBody struct {
	RateFingerprint string `json:"rateFingerprint"`
	UserID          string `json:"userId"`
	SettlementAddr  string `json:"settlementAddress"`
}

type createOrderResponse struct {
	ExternalOrderID string `json:"orderId"`
	DepositAddress  string `json:"depositAddress"`
	DepositMemo     string `json:"depositMemo"`
	Status          string `json:"status"`
}

// CreateOrder confirms a quote into a live order.
func (c *Client) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.CreateOrderResult, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/v1/orders", createOrderRequestBody{
		RateFingerprint: req.RateFingerprint,
		UserID:          req.UserID,
		SettlementAddr:  req.SettlementAddr,
	})
	if err != nil {
		return domain.CreateOrderResult{}, fmt.Errorf("aggregator: create order: %w", err)
	}

	var resp createOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.CreateOrderResult{}, fmt.Errorf("aggregator: decode create order response: %w", err)
	}

	return domain.CreateOrderResult{
		ExternalOrderID: resp.ExternalOrderID,
		DepositAddress:  resp.DepositAddress,
		DepositMemo:     resp.DepositMemo,
		Status:          domain.OrderStatus(resp.Status),
	}, nil
}

type orderStatusResponse struct {
	Status        string `json:"status"`
	SettledAmount string `json:"settledAmount"`
}

// GetOrderStatus polls the current aggregator-reported status of an order.
func (c *Client) GetOrderStatus(ctx context.Context, externalOrderID string) (domain.OrderStatusResult, error) {
	path := fmt.Sprintf("/v1/orders/%s", url.PathEscape(externalOrderID))

	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.OrderStatusResult{}, fmt.Errorf("aggregator: get order status %s: %w", externalOrderID, err)
	}

	var resp orderStatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderStatusResult{}, fmt.Errorf("aggregator: decode order status %s: %w", externalOrderID, err)
	}

	var settled decimal.Decimal
	if resp.SettledAmount != "" {
		settled, err = decimal.NewFromString(resp.SettledAmount)
		if err != nil {
			return domain.OrderStatusResult{}, fmt.Errorf("aggregator: parse settled amount %s: %w", externalOrderID, err)
		}
	}

	return domain.OrderStatusResult{
		ExternalOrderID: externalOrderID,
		Status:          domain.OrderStatus(resp.Status),
		SettledAmount:   settled,
	}, nil
}

type checkoutRequestBody struct {
	DestAsset      string `json:"destAsset"`
	DestNetwork    string `json:"destNetwork"`
	DestAmount     string `json:"destAmount"`
	SettlementAddr string `json:"settlementAddress"`
	Memo           string `json:"memo,omitempty"`
}

type checkoutResponse struct {
	CheckoutID     string    `json:"checkoutId"`
	PayLink        string    `json:"payLink"`
	DepositAddress string    `json:"depositAddress"`
	DepositMemo    string    `json:"depositMemo"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// CreateCheckout opens a pay-link checkout session for a fixed-amount
// charge. Used only by the chat front-end; the orchestration core's own
// components never call it.
func (c *Client) CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResult, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/v1/checkout", checkoutRequestBody{
		DestAsset:      req.DestAsset,
		DestNetwork:    req.DestNetwork,
		DestAmount:     req.DestAmount.String(),
		SettlementAddr: req.SettlementAddr,
		Memo:           req.Memo,
	})
	if err != nil {
		return domain.CheckoutResult{}, fmt.Errorf("aggregator: create checkout: %w", err)
	}

	var resp checkoutResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.CheckoutResult{}, fmt.Errorf("aggregator: decode checkout response: %w", err)
	}

	return domain.CheckoutResult{
		CheckoutID:     resp.CheckoutID,
		PayLink:        resp.PayLink,
		DepositAddress: resp.DepositAddress,
		DepositMemo:    resp.DepositMemo,
		ExpiresAt:      resp.ExpiresAt,
	}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.AggregatorError{Message: err.Error(), RetryAfter: time.Second}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := c.checkStatus(resp.StatusCode, resp.Header, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// checkStatus maps non-2xx aggregator responses to a classified
// domain.AggregatorError so callers can branch on Retryable() instead of
// matching strings.
func (c *Client) checkStatus(statusCode int, header http.Header, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorBody
	_ = json.Unmarshal(body, &apiErr)

	var retryAfter time.Duration
	if raw := header.Get("Retry-After"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil {
			retryAfter = time.Duration(secs) * time.Second
		}
	}

	return &domain.AggregatorError{
		HTTPStatus: statusCode,
		Code:       apiErr.Code,
		Message:    apiErr.Message,
		RetryAfter: retryAfter,
	}
}
