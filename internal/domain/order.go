package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the aggregator-authoritative lifecycle state of a swap
// order. The monitor only observes and persists transitions; it never
// invents a status the aggregator did not report.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusWaiting    OrderStatus = "waiting"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusSettled    OrderStatus = "settled"
	OrderStatusExpired    OrderStatus = "expired"
	OrderStatusRefunded   OrderStatus = "refunded"
	OrderStatusFailed     OrderStatus = "failed"
)

// Terminal reports whether no further transitions are expected from s.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusSettled, OrderStatusExpired, OrderStatusRefunded, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// validNextStatus encodes the observed state machine from spec §4.1. It is
// used only to validate that a StatusLog entry is reachable from the
// preceding entry for the same order (invariant 4); the monitor itself never
// rejects an aggregator-reported transition.
var validNextStatus = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPending: {
		OrderStatusWaiting: true,
		OrderStatusExpired: true,
	},
	OrderStatusWaiting: {
		OrderStatusProcessing: true,
		OrderStatusRefunded:   true,
		OrderStatusExpired:    true,
	},
	OrderStatusProcessing: {
		OrderStatusSettled:  true,
		OrderStatusRefunded: true,
		OrderStatusFailed:   true,
		OrderStatusExpired:  true,
	},
}

// IsReachableFrom reports whether transitioning from prev to s is a valid
// edge in the observed aggregator state machine. Identical statuses (a
// replayed observation) are always reachable.
func (s OrderStatus) IsReachableFrom(prev OrderStatus) bool {
	if prev == s {
		return true
	}
	edges, ok := validNextStatus[prev]
	if !ok {
		return false
	}
	return edges[s]
}

// Order is a single swap instance created from a confirmed quote.
type Order struct {
	ID                   int64
	ExternalOrderID      string
	UserID               string
	SourceAsset          string
	SourceNetwork        string
	SourceAmount         decimal.Decimal
	DestAsset            string
	DestNetwork          string
	ExpectedSettleAmount decimal.Decimal
	DepositAddress       string
	DepositMemo          string
	Status               OrderStatus
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// WatchedOrder is the durable registration record that makes order
// monitoring crash-safe: a WatchedOrder exists for every non-terminal Order
// until a terminal status is recorded.
type WatchedOrder struct {
	ExternalOrderID string
	UserID          string
	LastStatus      OrderStatus
	CreatedAt       time.Time
}

// StatusLog is an append-only audit record of one observed transition.
type StatusLog struct {
	ID                 int64
	ExternalOrderID    string
	OldStatus          OrderStatus
	NewStatus          OrderStatus
	EmittedAt          time.Time
	PayloadFingerprint string
}
