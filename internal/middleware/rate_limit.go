package middleware

import (
	"net/http"
	"time"

	"github.com/BradenHooton/turnstile/internal/auth"
	"github.com/BradenHooton/turnstile/internal/models"
	pkghttp "github.com/BradenHooton/turnstile/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	// IPConfig decides which forwarding headers are trusted when keying by IP
	IPConfig *pkghttp.IPConfig
}

// RateLimitByIP limits requests per client IP. Forwarding headers are only
// honoured from trusted proxies.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			ip := pkghttp.ExtractClientIP(r, config.IPConfig)
			if ip == "" {
				ip = "unknown"
			}
			return "ip:" + ip, nil
		}),
		httprate.WithLimitHandler(tooManyRequests),
	)
}

// RateLimitByService limits requests per authenticated calling service.
// It must run after auth.ServiceAuth; requests without claims fall back to the client IP.
func RateLimitByService(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.GetServiceFromContext(r); claims != nil {
				return "service:" + claims.Service, nil
			}
			return "ip:" + pkghttp.ExtractClientIP(r, config.IPConfig), nil
		}),
		httprate.WithLimitHandler(tooManyRequests),
	)
}

func tooManyRequests(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, models.ErrRateLimitExceeded.Error())
}
