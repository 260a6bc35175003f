package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the minimal user projection the swap core needs at its boundary.
type User struct {
	ID                string
	SettlementAddress string
	CreatedAt         time.Time
}

// HasSettlementAddress reports whether u can receive settled funds. The DCA
// scheduler skips execution for users missing this.
func (u User) HasSettlementAddress() bool {
	return u.SettlementAddress != ""
}

// UserSettings holds per-user preferences consumed at the HTTP boundary.
type UserSettings struct {
	UserID            string
	SlippageTolerance decimal.Decimal
	UpdatedAt         time.Time
}

// CoinGiftAction enumerates the admin test-credit adjustment actions.
type CoinGiftAction string

const (
	CoinGiftActionGift   CoinGiftAction = "gift"
	CoinGiftActionDeduct CoinGiftAction = "deduct"
	CoinGiftActionReset  CoinGiftAction = "reset"
)

// Signed returns amount with the sign convention for this action applied:
// gift is positive, deduct is negative, and reset returns amount unchanged
// (positive, like gift); no delta against the pre-reset balance is computed.
func (a CoinGiftAction) Signed(amount decimal.Decimal) decimal.Decimal {
	switch a {
	case CoinGiftActionDeduct:
		return amount.Neg()
	default:
		return amount
	}
}

// CoinGiftLog is an append-only record of an admin balance adjustment.
type CoinGiftLog struct {
	ID           int64
	TargetUserID string
	AdminID      string
	Action       CoinGiftAction
	Amount       decimal.Decimal
	Note         string
	CreatedAt    time.Time
}

// AdminAuditEntry is one row of the immutable admin privilege-action log.
type AdminAuditEntry struct {
	ID           int64
	AdminID      string
	Action       string
	TargetUserID string
	Detail       map[string]any
	CreatedAt    time.Time
}

// ConversationState is the per-user dialog state mutated under optimistic
// concurrency: Version increments on every successful write and is checked
// with a compare-and-swap on update (spec §9, "Conversation state
// concurrency").
type ConversationState struct {
	UserID    string
	State     map[string]any
	Version   int64
	UpdatedAt time.Time
}
