package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/turnstile/internal/models"
	pkghttp "github.com/BradenHooton/turnstile/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// ServiceContextKey is the key for storing service claims in context
	ServiceContextKey contextKey = "service"
)

// ServiceAuth validates service bearer tokens and injects the claims into context
func ServiceAuth(tm *TokenManager, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteUnauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				pkghttp.WriteUnauthorized(w, "invalid authorization header format")
				return
			}

			claims, err := tm.ValidateToken(parts[1])
			if err != nil {
				logger.Warn("service token rejected",
					slog.String("path", r.URL.Path),
					slog.Any("error", err))
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ServiceContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetServiceFromContext extracts service claims from request context
func GetServiceFromContext(r *http.Request) *models.ServiceClaims {
	claims, ok := r.Context().Value(ServiceContextKey).(*models.ServiceClaims)
	if !ok {
		return nil
	}
	return claims
}
