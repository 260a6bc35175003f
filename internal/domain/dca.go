package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DCAPlan is a recurring swap intent. While IsActive, NextExecutionAt is
// always either strictly in the future or a lock sentinel written within the
// last MAX_PROCESSING_TIME window (see dcascheduler.Config.ProcessingWindow).
type DCAPlan struct {
	ID              int64
	UserID          string
	SourceAsset     string
	SourceNetwork   string
	DestAsset       string
	DestNetwork     string
	AmountPerExec   decimal.Decimal
	IntervalHours   int
	NextExecutionAt time.Time
	IsActive        bool
	ExecutedCount   int64
	LastError       string
	CreatedAt       time.Time
}
