package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const userIDContextKey contextKey = "swapsmith_user_id"

// RequireUser returns middleware that validates a Bearer JWT signed with the
// given HMAC secret and, on success, stores the token's "sub" claim in the
// request context for downstream handlers (notably RequireSelf).
func RequireUser(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeUnauthorized(w, "missing bearer token")
				return
			}

			claims := jwt.MapClaims{}
			_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil {
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			sub, _ := claims["sub"].(string)
			if sub == "" {
				writeUnauthorized(w, "token missing sub claim")
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext returns the authenticated user ID set by RequireUser, if
// any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDContextKey).(string)
	return v, ok
}

// RequireSelf returns middleware that rejects a request with 403 unless the
// userId parameter (checked via paramFn) matches the authenticated subject
// set by RequireUser. This guards against one user reading or mutating
// another user's data by simply changing a query parameter (IDOR).
func RequireSelf(paramFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authedID, ok := UserIDFromContext(r.Context())
			if !ok {
				writeUnauthorized(w, "missing authentication")
				return
			}
			requested := paramFn(r)
			if requested == "" || requested != authedID {
				writeForbidden(w, "user mismatch")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin returns middleware that validates a static admin key from the
// Authorization: Bearer or X-API-Key header using a constant-time compare.
// If adminKey is empty, every request is rejected (fail closed: admin routes
// must never be reachable by an unconfigured deployment).
func RequireAdmin(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKey == "" {
				writeUnauthorized(w, "admin routes are disabled")
				return
			}
			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w, "missing admin token")
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(adminKey)) != 1 {
				writeUnauthorized(w, "invalid admin token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts a token from the Authorization: Bearer header only.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// extractToken looks for a token in the Authorization header (Bearer scheme)
// or in the X-API-Key header.
func extractToken(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return ""
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}

// writeForbidden sends a 403 response with a JSON error body.
func writeForbidden(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
