package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/swapsmith/orchestrator/internal/domain"
)

// OrderHistoryService defines the methods the swap-history handler requires
// from the order store.
type OrderHistoryService interface {
	ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Order, error)
}

// SwapHistoryHandler serves a user's paginated swap order history.
type SwapHistoryHandler struct {
	orders OrderHistoryService
	logger *slog.Logger
}

// NewSwapHistoryHandler creates a SwapHistoryHandler with the given service
// and logger.
func NewSwapHistoryHandler(orders OrderHistoryService, logger *slog.Logger) *SwapHistoryHandler {
	return &SwapHistoryHandler{orders: orders, logger: logger}
}

type swapHistoryResponse struct {
	Orders []domain.Order `json:"orders"`
}

// ListHistory returns a page of swap orders for the authenticated user.
// GET /api/swap-history?userId=&limit=&offset=
func (h *SwapHistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId query parameter required")
		return
	}

	orders, err := h.orders.ListByUser(r.Context(), userID, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list swap history failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list swap history")
		return
	}

	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, swapHistoryResponse{Orders: orders})
}

// UserIDQueryParam extracts the userId query parameter, used by
// middleware.RequireSelf to IDOR-check this route.
func UserIDQueryParam(r *http.Request) string {
	return r.URL.Query().Get("userId")
}
