package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/services"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
)

const (
	defaultAttackLimit = 10
	defaultEventLimit  = 50
	maxListLimit       = 1000
	maxEventLimit      = 10000
	maxStatsHours      = 24 * 30
	maxRequestBody     = 16 << 10
)

// DetectionServiceInterface defines the detection operations used by the handler
type DetectionServiceInterface interface {
	AnalyzeAttempt(ctx context.Context, rec models.AttemptRecord, failureReason string) services.AnalysisResult
	Stats() models.AggregateStats
	Dashboard() models.DashboardStats
	RecentAttacks(limit int) []models.DetectionSnapshot
	RecentEvents(ctx context.Context, limit int) []models.SecurityEvent
	LoginStats(ctx context.Context, window time.Duration) models.LoginStats
	ClearRecentEvents(ctx context.Context, actorID, ipAddress string) int
	LedgerStats(ctx context.Context) (services.LedgerStats, error)
}

// ClientResolver derives the client context of a request
type ClientResolver interface {
	Resolve(r *http.Request) models.ClientContext
}

// SecurityHandler handles login analysis and dashboard HTTP requests
type SecurityHandler struct {
	service  DetectionServiceInterface
	resolver ClientResolver
	logger   *slog.Logger
	now      func() time.Time
}

// NewSecurityHandler creates a new SecurityHandler
func NewSecurityHandler(service DetectionServiceInterface, resolver ClientResolver, logger *slog.Logger) *SecurityHandler {
	return &SecurityHandler{
		service:  service,
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}
}

// AnalyzeLoginRequest is the attempt reported by the authentication front end
type AnalyzeLoginRequest struct {
	Email           string `json:"email" validate:"required_without=UserID,max=320"`
	UserID          string `json:"user_id" validate:"max=128"`
	LoginSuccessful *bool  `json:"login_successful" validate:"required"`
	FailureReason   string `json:"failure_reason" validate:"max=200"`
}

// AnalyzeLoginResponse is the verdict returned for an attempt
type AnalyzeLoginResponse struct {
	IsAttack              bool              `json:"is_attack"`
	Confidence            float64           `json:"confidence"`
	AttackType            models.AttackType `json:"attack_type"`
	ClassifierProbability float64           `json:"classifier_probability"`
	BehavioralScore       float64           `json:"behavioral_score"`
	BehavioralFlags       []string          `json:"behavioral_flags"`
	RecentFailures        int               `json:"recent_failures"`
	OriginAttempts        int               `json:"origin_attempts_last_hour"`
	ClassifierUsed        bool              `json:"classifier_used"`
	Anomalies             []string          `json:"detected_anomalies"`
	LogID                 string            `json:"log_id"`
	SessionID             string            `json:"session_id"`
	LedgerLogged          bool              `json:"ledger_logged"`
	LedgerTxID            string            `json:"ledger_tx_id,omitempty"`
}

// AnalyzeLogin scores one login attempt
func (h *SecurityHandler) AnalyzeLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req AnalyzeLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}

	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "bad_request", "validation failed", err.Error())
		return
	}

	rec := models.NewAttemptRecord(models.AttemptInput{
		Email:           req.Email,
		UserID:          req.UserID,
		LoginSuccessful: *req.LoginSuccessful,
	}, h.resolver.Resolve(r), h.now())

	result := h.service.AnalyzeAttempt(r.Context(), rec, req.FailureReason)

	flags := result.Detection.BehavioralFlags
	if flags == nil {
		flags = []string{}
	}
	anomalies := result.Event.Anomalies
	if anomalies == nil {
		anomalies = []string{}
	}

	pkghttp.WriteJSON(w, http.StatusOK, AnalyzeLoginResponse{
		IsAttack:              result.Detection.IsAttack,
		Confidence:            result.Detection.Confidence,
		AttackType:            result.Detection.AttackType,
		ClassifierProbability: result.Detection.ClassifierProbability,
		BehavioralScore:       result.Detection.BehavioralScore,
		BehavioralFlags:       flags,
		RecentFailures:        result.Detection.RecentFailures,
		OriginAttempts:        result.OriginAttempts,
		ClassifierUsed:        result.Detection.ClassifierUsed,
		Anomalies:             anomalies,
		LogID:                 result.Event.LogID,
		SessionID:             result.Event.SessionToken,
		LedgerLogged:          result.LedgerLogged,
		LedgerTxID:            result.LedgerTxID,
	})
}

// GetStats returns the raw aggregate statistics
func (h *SecurityHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, h.service.Stats())
}

// GetDashboard returns the formatted dashboard statistics
func (h *SecurityHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, h.service.Dashboard())
}

// GetRecentAttacks returns the most recent attack verdicts
func (h *SecurityHandler) GetRecentAttacks(w http.ResponseWriter, r *http.Request) {
	limit := pkghttp.QueryInt(r, "limit", defaultAttackLimit, maxListLimit)
	attacks := h.service.RecentAttacks(limit)

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"attacks": attacks,
		"count":   len(attacks),
		"limit":   limit,
	})
}

// GetRecentEvents returns the most recent security events
func (h *SecurityHandler) GetRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := pkghttp.QueryInt(r, "limit", defaultEventLimit, maxEventLimit)
	events := h.service.RecentEvents(r.Context(), limit)

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  limit,
	})
}

// GetLoginStats summarizes security events over the last ?hours= (default 24)
func (h *SecurityHandler) GetLoginStats(w http.ResponseWriter, r *http.Request) {
	hours := pkghttp.QueryInt(r, "hours", 24, maxStatsHours)
	stats := h.service.LoginStats(r.Context(), time.Duration(hours)*time.Hour)

	pkghttp.WriteJSON(w, http.StatusOK, stats)
}

// ClearRecentEvents empties the in-memory event buffer
func (h *SecurityHandler) ClearRecentEvents(w http.ResponseWriter, r *http.Request) {
	actorID := "anonymous"
	if claims := auth.GetUserFromContext(r); claims != nil {
		actorID = claims.UserID
	}

	cleared := h.service.ClearRecentEvents(r.Context(), actorID, h.resolver.Resolve(r).IPAddress)

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "cleared",
		"cleared": strconv.Itoa(cleared),
	})
}

// GetLedgerStats reports the attack ledger backend and its attack count
func (h *SecurityHandler) GetLedgerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.LedgerStats(r.Context())
	if err != nil {
		h.logger.Error("failed to read ledger stats", slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "ledger_unavailable", "ledger is unavailable")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, stats)
}
