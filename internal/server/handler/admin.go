package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/swapsmith/orchestrator/internal/domain"
)

// AdminCoinService defines the atomic balance-adjustment operations the
// admin handler requires.
type AdminCoinService interface {
	Adjust(ctx context.Context, entry domain.CoinGiftLog, audit domain.AdminAuditEntry) (decimal.Decimal, error)
	GiftAll(ctx context.Context, userIDs []string, amount decimal.Decimal, adminID, note string) (int, error)
}

// AdminCoinStatsService defines the read side of the coin gift ledger.
type AdminCoinStatsService interface {
	SumForUser(ctx context.Context, userID string) (decimal.Decimal, error)
	ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.CoinGiftLog, error)
}

// AdminUserLister enumerates every known user ID for the gift-all action.
type AdminUserLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// AdminHandler serves the privileged test-credit endpoints. Every route here
// must sit behind middleware.RequireAdmin.
type AdminHandler struct {
	coins  AdminCoinService
	stats  AdminCoinStatsService
	users  AdminUserLister
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(coins AdminCoinService, stats AdminCoinStatsService, users AdminUserLister, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{coins: coins, stats: stats, users: users, logger: logger}
}

type adjustRequest struct {
	AdminID string          `json:"adminId"`
	UserID  string          `json:"userId"`
	Action  string          `json:"action"`
	Amount  decimal.Decimal `json:"amount"`
	Note    string          `json:"note"`
}

type adjustResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

// Adjust applies one signed balance adjustment to a single user.
// POST /api/admin/coins/adjust
func (h *AdminHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.AdminID == "" {
		writeError(w, http.StatusBadRequest, "adminId and userId are required")
		return
	}
	action := domain.CoinGiftAction(req.Action)
	switch action {
	case domain.CoinGiftActionGift, domain.CoinGiftActionDeduct, domain.CoinGiftActionReset:
	default:
		writeError(w, http.StatusBadRequest, "action must be one of gift, deduct, reset")
		return
	}
	if req.Amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "amount must not be negative")
		return
	}

	entry := domain.CoinGiftLog{
		TargetUserID: req.UserID,
		AdminID:      req.AdminID,
		Action:       action,
		Amount:       action.Signed(req.Amount),
		Note:         req.Note,
	}
	audit := domain.AdminAuditEntry{
		AdminID:      req.AdminID,
		Action:       "coin_adjust",
		TargetUserID: req.UserID,
		Detail: map[string]any{
			"action": req.Action,
			"amount": req.Amount.String(),
			"note":   req.Note,
		},
	}

	balance, err := h.coins.Adjust(r.Context(), entry, audit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: admin adjust failed",
			slog.String("admin_id", req.AdminID),
			slog.String("user_id", req.UserID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to adjust balance")
		return
	}

	writeJSON(w, http.StatusOK, adjustResponse{Balance: balance})
}

type statsResponse struct {
	UserID  string                `json:"userId"`
	Balance decimal.Decimal       `json:"balance"`
	History []domain.CoinGiftLog  `json:"history"`
}

// Stats returns a user's net admin-adjusted balance and recent history.
// GET /api/admin/coins/stats?userId=
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId query parameter required")
		return
	}

	balance, err := h.stats.SumForUser(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: admin coin stats failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load coin stats")
		return
	}

	history, err := h.stats.ListByUser(r.Context(), userID, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: admin coin history failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load coin history")
		return
	}
	if history == nil {
		history = []domain.CoinGiftLog{}
	}

	writeJSON(w, http.StatusOK, statsResponse{UserID: userID, Balance: balance, History: history})
}

type giftAllRequest struct {
	AdminID string          `json:"adminId"`
	Amount  decimal.Decimal `json:"amount"`
	Note    string          `json:"note"`
}

type giftAllResponse struct {
	UsersCredited int `json:"usersCredited"`
}

// GiftAll credits amount to every known user in one transaction.
// POST /api/admin/coins/gift-all
func (h *AdminHandler) GiftAll(w http.ResponseWriter, r *http.Request) {
	var req giftAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AdminID == "" {
		writeError(w, http.StatusBadRequest, "adminId is required")
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	userIDs, err := h.users.ListIDs(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: admin gift-all list users failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	credited, err := h.coins.GiftAll(r.Context(), userIDs, req.Amount, req.AdminID, req.Note)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: admin gift-all failed",
			slog.String("admin_id", req.AdminID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to gift all users")
		return
	}

	writeJSON(w, http.StatusOK, giftAllResponse{UsersCredited: credited})
}
