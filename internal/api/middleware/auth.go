package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/jobleaser/internal/api/response"
)

// SessionResolver maps a bearer token to the agent it was issued to.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (string, bool, error)
}

// Auth provides agent session and admin token middleware.
type Auth struct {
	sessions   SessionResolver
	adminToken string
}

// NewAuth creates a new Auth middleware. An empty adminToken disables the
// admin routes.
func NewAuth(sessions SessionResolver, adminToken string) *Auth {
	return &Auth{sessions: sessions, adminToken: adminToken}
}

// Authenticate resolves the Bearer session token and sets agent_id in the
// request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		agentID, ok, err := a.sessions.Resolve(r.Context(), token)
		if err != nil {
			slog.Error("session lookup failed", "error", err)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate session", nil)
			return
		}
		if !ok {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Session expired or unknown", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetAgentID(r.Context(), agentID)))
	})
}

// RequireAdmin checks the Bearer token against the configured admin token.
func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.adminToken == "" {
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Admin API is disabled", nil)
			return
		}
		token := extractBearerToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(a.adminToken)) != 1 {
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Insufficient permissions", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
