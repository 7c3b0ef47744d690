package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	InstallIDKey contextKey = "install_id"
)

// Auth validates an optional Bearer token (HS256) and stores the caller's
// identity in the request context. Requests without a token proceed
// anonymously — the analyze endpoint accepts them under the free trial —
// but a token that is present and invalid is rejected.
func Auth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), InstallIDKey, installIDFrom(r))

			auth := r.Header.Get("Authorization")
			if auth == "" {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if raw == "" {
				http.Error(w, "invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !tok.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			sub := ""
			if claims, ok := tok.Claims.(jwt.MapClaims); ok {
				if v, ok := claims["sub"].(string); ok {
					sub = v
				}
			}
			if sub == "" {
				http.Error(w, "token missing subject", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, UserIDKey, sub)))
		})
	}
}

// RequireAuth gates owner-scoped endpoints (history, delete, trial reset).
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == "" {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserID extracts the authenticated user id from context ("" = anonymous).
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}

// GetInstallID extracts the installation id used for trial gating.
func GetInstallID(ctx context.Context) string {
	if v, ok := ctx.Value(InstallIDKey).(string); ok {
		return v
	}
	return ""
}

// installIDFrom prefers the browser-generated X-Install-ID header and falls
// back to the client IP so gating still applies without one.
func installIDFrom(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Install-ID")); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
