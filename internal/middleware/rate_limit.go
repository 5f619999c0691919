package middleware

import (
	"net/http"
	"time"

	"github.com/BradenHooton/loginguard/internal/auth"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int

	// ClientIP returns the origin used as the bucket key. Nil keys by the
	// connection's remote address and ignores forwarding headers.
	ClientIP func(r *http.Request) string
}

func (c RateLimitConfig) keyByClient(r *http.Request) (string, error) {
	if c.ClientIP != nil {
		return "ip:" + c.ClientIP(r), nil
	}
	key, err := httprate.KeyByIP(r)
	return "ip:" + key, err
}

// RateLimitByIP rate limits requests by client IP
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(config.keyByClient),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// RateLimitByOperator rate limits dashboard requests per operator token,
// falling back to the client IP when no operator is authenticated
func RateLimitByOperator(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.GetUserFromContext(r); claims != nil && claims.UserID != "" {
				return "operator:" + claims.UserID, nil
			}
			return config.keyByClient(r)
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}

func limitExceeded(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, "rate limit exceeded")
}
