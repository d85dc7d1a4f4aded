package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/payprompt/payprompt-backend/internal/api/httpx"
	"github.com/payprompt/payprompt-backend/internal/auth"
)

type ctxKey string

const ctxUsernameKey ctxKey = "username"

func Username(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxUsernameKey).(string)
	return v, ok
}

type AuthMiddleware struct {
	TM *auth.TokenManager
}

func NewAuthMiddleware(tm *auth.TokenManager) *AuthMiddleware {
	return &AuthMiddleware{TM: tm}
}

// Auth guards the bank-side routes with a bearer access token.
func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ah := r.Header.Get("Authorization")
		if ah == "" || !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
			httpx.Failed(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		token := strings.TrimSpace(ah[len("Bearer "):])

		claims, isRefresh, err := m.TM.Parse(token)
		if err != nil || isRefresh {
			httpx.Failed(w, http.StatusUnauthorized, "invalid access token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUsernameKey, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GatewayAuth guards the customer-facing routes called by the USSD/SMS
// gateway with a shared API key. An empty configured key disables the check
// (dev only).
func GatewayAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey != "" {
				got := r.Header.Get("X-Gateway-Apikey")
				if subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
					httpx.Failed(w, http.StatusUnauthorized, "invalid gateway key")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
