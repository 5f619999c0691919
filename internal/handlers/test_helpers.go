package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/services"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithOperatorContext adds operator claims to request context for testing dashboard endpoints
func WithOperatorContext(req *http.Request, userID, role string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Role:   role,
		Type:   "access",
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockDetectionService implements DetectionServiceInterface for testing
type MockDetectionService struct {
	AnalyzeAttemptFunc    func(ctx context.Context, rec models.AttemptRecord, failureReason string) services.AnalysisResult
	StatsFunc             func() models.AggregateStats
	DashboardFunc         func() models.DashboardStats
	RecentAttacksFunc     func(limit int) []models.DetectionSnapshot
	RecentEventsFunc      func(ctx context.Context, limit int) []models.SecurityEvent
	LoginStatsFunc        func(ctx context.Context, window time.Duration) models.LoginStats
	ClearRecentEventsFunc func(ctx context.Context, actorID, ipAddress string) int
	LedgerStatsFunc       func(ctx context.Context) (services.LedgerStats, error)
}

func (m *MockDetectionService) AnalyzeAttempt(ctx context.Context, rec models.AttemptRecord, failureReason string) services.AnalysisResult {
	if m.AnalyzeAttemptFunc == nil {
		return services.AnalysisResult{Detection: models.DetectionResult{AttackType: models.AttackTypeNormal}}
	}
	return m.AnalyzeAttemptFunc(ctx, rec, failureReason)
}

func (m *MockDetectionService) Stats() models.AggregateStats {
	if m.StatsFunc == nil {
		return models.AggregateStats{}
	}
	return m.StatsFunc()
}

func (m *MockDetectionService) Dashboard() models.DashboardStats {
	if m.DashboardFunc == nil {
		return models.DashboardStats{}
	}
	return m.DashboardFunc()
}

func (m *MockDetectionService) RecentAttacks(limit int) []models.DetectionSnapshot {
	if m.RecentAttacksFunc == nil {
		return []models.DetectionSnapshot{}
	}
	return m.RecentAttacksFunc(limit)
}

func (m *MockDetectionService) RecentEvents(ctx context.Context, limit int) []models.SecurityEvent {
	if m.RecentEventsFunc == nil {
		return []models.SecurityEvent{}
	}
	return m.RecentEventsFunc(ctx, limit)
}

func (m *MockDetectionService) LoginStats(ctx context.Context, window time.Duration) models.LoginStats {
	if m.LoginStatsFunc == nil {
		return models.LoginStats{}
	}
	return m.LoginStatsFunc(ctx, window)
}

func (m *MockDetectionService) ClearRecentEvents(ctx context.Context, actorID, ipAddress string) int {
	if m.ClearRecentEventsFunc == nil {
		return 0
	}
	return m.ClearRecentEventsFunc(ctx, actorID, ipAddress)
}

func (m *MockDetectionService) LedgerStats(ctx context.Context) (services.LedgerStats, error) {
	if m.LedgerStatsFunc == nil {
		return services.LedgerStats{Backend: "none"}, nil
	}
	return m.LedgerStatsFunc(ctx)
}

// MockResolver implements ClientResolver for testing
type MockResolver struct {
	Client models.ClientContext
}

func (m *MockResolver) Resolve(r *http.Request) models.ClientContext {
	return m.Client
}
