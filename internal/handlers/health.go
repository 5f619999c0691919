package handlers

import (
	"context"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
)

// Pinger checks a backing dependency
type Pinger interface {
	Ping(ctx context.Context) error
}

// ClassifierStateReporter reports the classifier load state
type ClassifierStateReporter interface {
	Usable() bool
}

// HealthHandler serves the liveness endpoint
type HealthHandler struct {
	db         Pinger
	classifier ClassifierStateReporter
}

// NewHealthHandler creates a HealthHandler. db may be nil when no database is configured.
func NewHealthHandler(db Pinger, classifier ClassifierStateReporter) *HealthHandler {
	return &HealthHandler{db: db, classifier: classifier}
}

// Health reports service status. A missing classifier degrades but does not fail the check.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":               "healthy",
		"classifier_available": h.classifier != nil && h.classifier.Usable(),
		"timestamp":            time.Now().UTC().Format(time.RFC3339),
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			resp["status"] = "unhealthy"
			resp["database"] = "unreachable"
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["database"] = "ok"
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}
