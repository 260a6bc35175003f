package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a price/amount estimate for a prospective swap, valid until
// ExpiresAt.
type Quote struct {
	SourceAsset     string
	SourceNetwork   string
	SourceAmount    decimal.Decimal
	DestAsset       string
	DestNetwork     string
	DestAmount      decimal.Decimal
	RateFingerprint string
	ExpiresAt       time.Time
}

// CreateOrderRequest confirms a quote into a live order.
type CreateOrderRequest struct {
	RateFingerprint string
	UserID          string
	SettlementAddr  string
}

// CreateOrderResult is the aggregator's response to order creation.
type CreateOrderResult struct {
	ExternalOrderID string
	DepositAddress  string
	DepositMemo     string
	Status          OrderStatus
}

// OrderStatusResult is a single poll observation.
type OrderStatusResult struct {
	ExternalOrderID string
	Status          OrderStatus
	SettledAmount   decimal.Decimal
}

// CheckoutRequest describes a pay-link checkout session: a fixed-amount
// charge to a single destination asset/network, with no counter-asset
// conversion performed by the orchestration core itself.
type CheckoutRequest struct {
	DestAsset      string
	DestNetwork    string
	DestAmount     decimal.Decimal
	SettlementAddr string
	Memo           string
}

// CheckoutResult is the aggregator's response to checkout creation: a
// hosted pay-link plus the deposit details a payer sends funds to.
type CheckoutResult struct {
	CheckoutID     string
	PayLink        string
	DepositAddress string
	DepositMemo    string
	ExpiresAt      time.Time
}

// AggregatorClient is the sole boundary between the orchestration core and
// the external swap aggregator. All three components (monitor, scheduler,
// limit worker) depend on this interface, never on a concrete HTTP client,
// so they can be tested against an in-process fake.
type AggregatorClient interface {
	GetQuote(ctx context.Context, sourceAsset, sourceNetwork string, amount decimal.Decimal, destAsset, destNetwork string) (Quote, error)
	CreateOrder(ctx context.Context, req CreateOrderRequest) (CreateOrderResult, error)
	GetOrderStatus(ctx context.Context, externalOrderID string) (OrderStatusResult, error)
	// CreateCheckout opens a pay-link checkout session. Used only by the
	// chat front-end (out of scope for the orchestration core's own
	// components), but its contract lives here since it shares the same
	// HTTP wrapper and error classification as the rest of this interface.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error)
}

// AggregatorError classifies a non-2xx or transport-level failure from the
// aggregator so callers can branch on retryability without string-matching.
type AggregatorError struct {
	HTTPStatus int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *AggregatorError) Error() string {
	return fmt.Sprintf("aggregator: status=%d code=%s msg=%s", e.HTTPStatus, e.Code, e.Message)
}

// Retryable reports whether the failure is transient: a transport-level
// failure (HTTPStatus 0), 429, and 5xx other than 501/505 which indicate a
// permanently unsupported request.
func (e *AggregatorError) Retryable() bool {
	switch {
	case e.HTTPStatus == 0:
		return true
	case e.HTTPStatus == 429:
		return true
	case e.HTTPStatus == 501 || e.HTTPStatus == 505:
		return false
	case e.HTTPStatus >= 500:
		return true
	default:
		return false
	}
}
