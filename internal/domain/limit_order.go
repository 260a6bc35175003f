package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LimitCondition is the direction a reference price must cross to trigger
// execution.
type LimitCondition string

const (
	LimitConditionAbove LimitCondition = "above"
	LimitConditionBelow LimitCondition = "below"
)

// Met reports whether price satisfies the condition against target.
func (c LimitCondition) Met(price, target decimal.Decimal) bool {
	switch c {
	case LimitConditionAbove:
		return price.GreaterThan(target)
	case LimitConditionBelow:
		return price.LessThan(target)
	default:
		return false
	}
}

// LimitOrderStatus tracks a price-armed intent through its lifecycle.
type LimitOrderStatus string

const (
	LimitOrderArmed     LimitOrderStatus = "armed"
	LimitOrderTriggered LimitOrderStatus = "triggered"
	LimitOrderExecuting LimitOrderStatus = "executing"
	LimitOrderSettled   LimitOrderStatus = "settled"
	LimitOrderFailed    LimitOrderStatus = "failed"
	LimitOrderDead      LimitOrderStatus = "dead"
)

// LimitOrder is a user intent armed to execute when a monitored price
// crosses a target.
type LimitOrder struct {
	ID              int64
	UserID          string
	SourceAsset     string
	SourceNetwork   string
	DestAsset       string
	DestNetwork     string
	Amount          decimal.Decimal
	TargetPrice     decimal.Decimal
	Condition       LimitCondition
	ReferenceAsset  string
	ReferenceChain  string
	Status          LimitOrderStatus
	RetryCount      int
	RetryAfter      *time.Time
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PriceSnapshot is a cached external price for one (asset, chain) pair.
type PriceSnapshot struct {
	Asset     string
	Chain     string
	Price     decimal.Decimal
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// Stale reports whether the snapshot is older than maxStaleness as of now.
// Consumers MUST reject any snapshot for which this returns true before
// making an execution decision (spec §3 PriceSnapshot invariant).
func (p PriceSnapshot) Stale(now time.Time, maxStaleness time.Duration) bool {
	return now.Sub(p.UpdatedAt) > maxStaleness
}
