package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/classifier"
	"github.com/BradenHooton/loginguard/internal/config"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModel struct {
	p float64
}

func (m stubModel) Predict(ctx context.Context, text string) (float64, error) {
	return m.p, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{
			Env:                "test",
			AnalyzeRateLimit:   1000,
			DashboardRateLimit: 1000,
		},
		Detection: config.DetectionConfig{
			Threshold:            0.6,
			TimeWindow:           2 * time.Minute,
			CleanupInterval:      5 * time.Minute,
			StatsFreshness:       time.Millisecond,
			ClassifierTimeout:    time.Second,
			HighRiskRegions:      []string{"RU", "CN", "KP", "IR"},
			SuspiciousIdentities: []string{"admin", "root", "test", "hacker"},
			ScriptingClients:     []string{"python", "curl", "wget"},
		},
		SecurityLog: config.SecurityLogConfig{
			LogDir:                 dir,
			HighFrequencyThreshold: 10,
			HighFrequencyWindow:    5 * time.Minute,
			SuspiciousUserAgents:   []string{"bot", "curl"},
		},
		Ledger: config.LedgerConfig{
			Backend: config.LedgerBackendFile,
			Path:    filepath.Join(dir, "ledger.jsonl"),
		},
		Alert: config.AlertConfig{Interval: time.Minute},
	}
}

func newTestApp(t *testing.T, cfg *config.Config, opts Options) *App {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	a, err := New(context.Background(), cfg, logger, opts)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func analyze(t *testing.T, h http.Handler, body map[string]interface{}, headers map[string]string) map[string]interface{} {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/security/analyze-login", bytes.NewReader(payload))
	req.RemoteAddr = "203.0.113.5:41000"
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func get(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestPipeline_BehavioralOnly(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg, Options{})

	normal := analyze(t, a.Router, map[string]interface{}{
		"email":            "alice@example.com",
		"login_successful": true,
	}, map[string]string{"User-Agent": "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0", "CF-IPCountry": "FR"})
	assert.Equal(t, false, normal["is_attack"])
	assert.Equal(t, "normal", normal["attack_type"])
	assert.Equal(t, false, normal["classifier_used"])
	assert.Equal(t, false, normal["ledger_logged"])

	attack := analyze(t, a.Router, map[string]interface{}{
		"email":            "admin@example.com",
		"login_successful": false,
		"failure_reason":   "invalid_password",
	}, map[string]string{"User-Agent": "curl/8.4.0", "CF-IPCountry": "RU"})
	assert.Equal(t, true, attack["is_attack"])
	assert.Equal(t, "behavioral_anomaly", attack["attack_type"])
	assert.InDelta(t, 0.8, attack["confidence"], 1e-9)
	assert.Equal(t, []interface{}{models.AnomalySuspiciousUA}, attack["detected_anomalies"])
	assert.Equal(t, true, attack["ledger_logged"])
	assert.Equal(t, float64(2), attack["origin_attempts_last_hour"])
	assert.NotEmpty(t, attack["ledger_tx_id"])

	// both events reached the file sink
	data, err := os.ReadFile(filepath.Join(cfg.SecurityLog.LogDir, storage.JSONFileName))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))

	w := get(t, a.Router, "/security/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.AggregateStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.TotalAttempts)
	assert.Equal(t, int64(1), stats.DetectedAttacks)
	assert.Equal(t, 2, stats.AttemptsLastHour)

	w = get(t, a.Router, "/security/ledger/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"attack_count":1`)
	assert.Contains(t, w.Body.String(), `"count_scope":"ledger"`)

	w = get(t, a.Router, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `loginguard_attempts_total{verdict="attack"} 1`)

	w = get(t, a.Router, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"classifier_available":false`)
}

func TestPipeline_ClassifierDetected(t *testing.T) {
	cfg := testConfig(t)
	loader := func(ctx context.Context) (classifier.Model, error) { return stubModel{p: 0.95}, nil }
	a := newTestApp(t, cfg, Options{Loader: loader})

	resp := analyze(t, a.Router, map[string]interface{}{
		"email":            "bob@example.com",
		"login_successful": false,
	}, map[string]string{"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0", "CF-IPCountry": "DE"})

	assert.Equal(t, true, resp["classifier_used"])
	assert.Equal(t, true, resp["is_attack"])
	assert.Equal(t, "classifier_detected", resp["attack_type"])
	assert.True(t, a.Classifier.Usable())
}

func TestPipeline_DashboardRequiresToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth = config.AuthConfig{JWTSecret: "dashboard-secret-with-enough-bytes", TokenExpiry: time.Minute}
	a := newTestApp(t, cfg, Options{})

	assert.Equal(t, http.StatusUnauthorized, get(t, a.Router, "/security/dashboard", "").Code)

	token, err := auth.NewTokenManager(cfg.Auth.JWTSecret, time.Minute).GenerateToken("op-1", "", models.RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(t, a.Router, "/security/dashboard", token).Code)

	// viewers cannot clear the event buffer
	req := httptest.NewRequest("DELETE", "/security/events/recent", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestNew_RejectsUnusableLogDir(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	cfg.SecurityLog.LogDir = filepath.Join(blocker, "logs")

	_, err := New(context.Background(), cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)), Options{})
	assert.Error(t, err)
}
