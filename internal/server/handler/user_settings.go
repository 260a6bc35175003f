package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/swapsmith/orchestrator/internal/domain"
)

// UserSettingsService defines the methods the settings handler requires from
// the user store.
type UserSettingsService interface {
	GetSettings(ctx context.Context, userID string) (domain.UserSettings, error)
}

// UserSettingsHandler serves a user's preferences (currently just slippage
// tolerance).
type UserSettingsHandler struct {
	users  UserSettingsService
	logger *slog.Logger
}

// NewUserSettingsHandler creates a UserSettingsHandler with the given service
// and logger.
func NewUserSettingsHandler(users UserSettingsService, logger *slog.Logger) *UserSettingsHandler {
	return &UserSettingsHandler{users: users, logger: logger}
}

// GetSettings returns the authenticated user's settings.
// GET /api/user/settings?userId=
func (h *UserSettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId query parameter required")
		return
	}

	settings, err := h.users.GetSettings(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get user settings failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load user settings")
		return
	}

	writeJSON(w, http.StatusOK, settings)
}
