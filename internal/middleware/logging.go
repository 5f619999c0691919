package middleware

import (
	"log/slog"
	"net/http"
	"time"

	pkglogger "github.com/BradenHooton/loginguard/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RequestObserver receives the outcome of every request SecureLogger sees
type RequestObserver interface {
	ObserveRequest(route, method string, status int, d time.Duration)
}

// quietRoutes are polled by probes and scrapers and log at debug level
var quietRoutes = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// SecureLogger logs each request with credential-bearing query strings redacted.
// observer may be nil.
func SecureLogger(logger *slog.Logger, observer RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			elapsed := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			var route string
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			if observer != nil {
				observer.ObserveRequest(route, r.Method, status, elapsed)
			}

			path := r.URL.Path
			switch {
			case pkglogger.SanitizeQueryString(r.URL.RawQuery):
				path += "?[REDACTED]"
			case r.URL.RawQuery != "":
				path += "?" + r.URL.RawQuery
			}

			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case quietRoutes[route]:
				level = slog.LevelDebug
			}

			logger.LogAttrs(r.Context(), level, "http_request",
				slog.String("method", r.Method),
				slog.String("path", path),
				slog.String("route", route),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Int64("duration_ms", elapsed.Milliseconds()),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
