package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitByIP_Returns429AfterLimit(t *testing.T) {
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 3})(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/security/analyze-login", nil)
		req.RemoteAddr = "192.168.1.1:8080"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	req := httptest.NewRequest("POST", "/security/analyze-login", nil)
	req.RemoteAddr = "192.168.1.1:8080"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")
}

func TestRateLimitByIP_IsolatesClients(t *testing.T) {
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 1})(okHandler())

	for _, addr := range []string{"192.168.1.1:1", "192.168.1.2:1"} {
		req := httptest.NewRequest("POST", "/", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitByOperator_IsolatesOperatorBuckets(t *testing.T) {
	handler := RateLimitByOperator(RateLimitConfig{RequestsPerMinute: 1})(okHandler())

	send := func(userID string) int {
		req := httptest.NewRequest("GET", "/security/stats", nil)
		req.RemoteAddr = "10.0.0.1:1"
		claims := &models.TokenClaims{UserID: userID, Type: "access"}
		req = req.WithContext(context.WithValue(req.Context(), auth.UserContextKey, claims))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("op-1"))
	assert.Equal(t, http.StatusOK, send("op-2"))
	assert.Equal(t, http.StatusTooManyRequests, send("op-1"))
}

func TestRateLimitByOperator_FallsBackToIP(t *testing.T) {
	handler := RateLimitByOperator(RateLimitConfig{RequestsPerMinute: 1})(okHandler())

	req := httptest.NewRequest("GET", "/security/stats", nil)
	req.RemoteAddr = "192.168.1.9:8080"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitByIP_IgnoresForwardedHeadersByDefault(t *testing.T) {
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 1})(okHandler())

	codes := make([]int, 0, 2)
	for _, xff := range []string{"1.1.1.1", "2.2.2.2"} {
		req := httptest.NewRequest("POST", "/security/analyze-login", nil)
		req.RemoteAddr = "192.168.1.1:8080"
		req.Header.Set("X-Forwarded-For", xff)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimitByIP_UsesClientIPFunc(t *testing.T) {
	handler := RateLimitByIP(RateLimitConfig{
		RequestsPerMinute: 1,
		ClientIP:          func(r *http.Request) string { return r.Header.Get("X-Test-Origin") },
	})(okHandler())

	for _, origin := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest("POST", "/security/analyze-login", nil)
		req.RemoteAddr = "10.0.0.1:1"
		req.Header.Set("X-Test-Origin", origin)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
