package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/swapsmith/orchestrator/internal/domain"
	"github.com/swapsmith/orchestrator/internal/server/handler"
	"github.com/swapsmith/orchestrator/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	JWTSecret   string // HMAC key RequireUser verifies user-facing route tokens with; config validation requires it when the server is enabled
	AdminAPIKey string // admin routes; empty fails closed, rejecting all admin requests
}

// Handlers aggregates all HTTP handlers the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	History  *handler.SwapHistoryHandler
	Settings *handler.UserSettingsHandler
	Admin    *handler.AdminHandler
}

// Server is the headless HTTP API for the swap orchestrator.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up the middleware chain (logging, CORS, rate limiting, auth).
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// User-facing routes: JWT auth plus an IDOR check that the authenticated
	// subject matches the userId parameter being accessed.
	userChain := func(h http.HandlerFunc, paramFn func(*http.Request) string) http.Handler {
		var wrapped http.Handler = h
		wrapped = middleware.RequireSelf(paramFn)(wrapped)
		wrapped = middleware.RequireUser(cfg.JWTSecret)(wrapped)
		return wrapped
	}
	mux.Handle("GET /api/swap-history", userChain(handlers.History.ListHistory, handler.UserIDQueryParam))
	mux.Handle("GET /api/user/settings", userChain(handlers.Settings.GetSettings, handler.UserIDQueryParam))

	// Admin-only routes: static admin key, fail closed if unconfigured.
	adminChain := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireAdmin(cfg.AdminAPIKey)(h)
	}
	mux.Handle("POST /api/admin/coins/adjust", adminChain(handlers.Admin.Adjust))
	mux.Handle("GET /api/admin/coins/stats", adminChain(handlers.Admin.Stats))
	mux.Handle("POST /api/admin/coins/gift-all", adminChain(handlers.Admin.GiftAll))

	// Build the outer middleware chain.
	var h http.Handler = mux
	if limiter != nil {
		h = middleware.RateLimit(limiter)(h)
	}
	h = middleware.Logging(logger)(h)
	h = corsMiddleware(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// corsMiddleware returns middleware that sets CORS headers for the allowed
// origins. If no origins are specified, it defaults to allowing all origins.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				allowed := len(allowedOrigins) == 0
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, "*") || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}

				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
