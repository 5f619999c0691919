package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/loginguard/internal/alert"
	"github.com/BradenHooton/loginguard/internal/classifier"
	"github.com/BradenHooton/loginguard/internal/detection"
	"github.com/BradenHooton/loginguard/internal/ledger"
	"github.com/BradenHooton/loginguard/internal/metrics"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/tracker"
	pkglogger "github.com/BradenHooton/loginguard/pkg/logger"
)

const (
	ledgerTimeout = 10 * time.Second

	// originWindow is the lookback of AnalysisResult.OriginAttempts
	originWindow = time.Hour
)

// ClassifierScorer is the classifier adapter as seen by the detector
type ClassifierScorer interface {
	Score(ctx context.Context, text string) (models.ClassifierResult, error)
	State() classifier.State
}

// ActivityTracker stores windowed activity histories
type ActivityTracker interface {
	Record(rec models.AttemptRecord)
	Query(key string, scope tracker.Scope) []models.ActivityEvent
	CountSince(key string, scope tracker.Scope, since time.Time) int
}

// StatsRecorder aggregates verdicts for the dashboard
type StatsRecorder interface {
	Observe(snap models.DetectionSnapshot)
	RecentAttacks(limit int) []models.DetectionSnapshot
	CurrentStats() models.AggregateStats
	DashboardStats() models.DashboardStats
}

// EventRecorder is the security event logger
type EventRecorder interface {
	RecordAttempt(ctx context.Context, rec models.AttemptRecord, detection *models.DetectionResult, failureReason string) models.SecurityEvent
	RecentEvents(ctx context.Context, n int) []models.SecurityEvent
	ClearRecent() int
	LoginStats(ctx context.Context, window time.Duration) models.LoginStats
}

// AnalysisResult is everything produced for one analyzed attempt.
// OriginAttempts counts tracked attempts from the same origin, this one included, within the last hour.
type AnalysisResult struct {
	Detection      models.DetectionResult `json:"detection"`
	Event          models.SecurityEvent   `json:"event"`
	OriginAttempts int                    `json:"origin_attempts_last_hour"`
	LedgerTxID     string                 `json:"ledger_tx_id,omitempty"`
	LedgerLogged   bool                   `json:"ledger_logged"`
}

// LedgerStats reports the state of the attack ledger. CountScope is "ledger" when
// AttackCount covers the whole ledger and "process" when it only counts
// submissions accepted since this process started.
type LedgerStats struct {
	Backend     string `json:"backend"`
	Enabled     bool   `json:"enabled"`
	AttackCount int64  `json:"attack_count"`
	CountScope  string `json:"count_scope"`
}

// DetectionService runs the detection pipeline for login attempts
type DetectionService struct {
	classifier ClassifierScorer
	behavioral *detection.BehavioralScorer
	combiner   *detection.Combiner
	tracker    ActivityTracker
	stats      StatsRecorder
	events     EventRecorder
	ledger     ledger.Sink
	alerter    alert.Alerter
	metrics    *metrics.Metrics
	audit      *pkglogger.AuditLogger
	logger     *slog.Logger
}

// DetectionDeps groups the collaborators of a DetectionService
type DetectionDeps struct {
	Classifier ClassifierScorer
	Behavioral *detection.BehavioralScorer
	Combiner   *detection.Combiner
	Tracker    ActivityTracker
	Stats      StatsRecorder
	Events     EventRecorder
	Ledger     ledger.Sink
	Alerter    alert.Alerter
	Metrics    *metrics.Metrics
}

// NewDetectionService creates a new DetectionService
func NewDetectionService(deps DetectionDeps, logger *slog.Logger) *DetectionService {
	if deps.Behavioral == nil {
		deps.Behavioral = detection.NewBehavioralScorer(detection.DefaultBehavioralConfig())
	}
	if deps.Combiner == nil {
		deps.Combiner = detection.NewCombiner(detection.DefaultThreshold)
	}
	if deps.Ledger == nil {
		deps.Ledger = ledger.Noop{}
	}
	if deps.Alerter == nil {
		deps.Alerter = alert.NewLogAlerter(logger)
	}
	return &DetectionService{
		classifier: deps.Classifier,
		behavioral: deps.Behavioral,
		combiner:   deps.Combiner,
		tracker:    deps.Tracker,
		stats:      deps.Stats,
		events:     deps.Events,
		ledger:     deps.Ledger,
		alerter:    deps.Alerter,
		metrics:    deps.Metrics,
		audit:      pkglogger.NewAuditLogger(logger),
		logger:     logger,
	}
}

// AnalyzeAttempt scores an attempt, records it and submits confirmed attacks to the ledger.
// It always produces a verdict: classifier, storage and ledger failures only degrade the result.
func (s *DetectionService) AnalyzeAttempt(ctx context.Context, rec models.AttemptRecord, failureReason string) AnalysisResult {
	result := s.detect(ctx, rec)

	s.tracker.Record(rec)
	s.stats.Observe(models.DetectionSnapshot{
		DetectionResult: result,
		Timestamp:       rec.Timestamp,
		Email:           rec.Email,
		IPAddress:       rec.IPAddress,
		Country:         rec.Country,
		LoginSuccessful: rec.LoginSuccessful,
	})
	s.metrics.ObserveVerdict(result.IsAttack, string(result.AttackType))

	event := s.events.RecordAttempt(ctx, rec, &result, failureReason)

	out := AnalysisResult{
		Detection:      result,
		Event:          event,
		OriginAttempts: s.tracker.CountSince(rec.IPAddress, tracker.ScopeOrigin, rec.Timestamp.Add(-originWindow)),
	}
	if result.IsAttack {
		out.LedgerTxID, out.LedgerLogged = s.submitAttack(ctx, rec, result, event.LogID)
	}
	return out
}

// detect runs the classifier and behavioral scorer and fuses their outputs
func (s *DetectionService) detect(ctx context.Context, rec models.AttemptRecord) models.DetectionResult {
	// a transient error while loaded still yields the fallback probability, which is fused
	cls, err := s.classifier.Score(ctx, classifier.AttemptText(rec))
	usable := s.classifier.State() == classifier.StateLoaded
	if err != nil && !errors.Is(err, models.ErrClassifierUnavailable) {
		s.logger.Warn("classifier call failed, using fallback",
			slog.String("ip_address", rec.IPAddress),
			slog.Any("error", err))
	}
	s.metrics.SetClassifierState(int(s.classifier.State()))

	history := s.history(rec)
	beh := s.behavioral.Score(rec, history)

	return s.combiner.Combine(cls, beh, usable)
}

// history returns the identity history, or the origin history for anonymous attempts
func (s *DetectionService) history(rec models.AttemptRecord) []models.ActivityEvent {
	if key := tracker.IdentityKey(rec); key != "" {
		return s.tracker.Query(key, tracker.ScopeUser)
	}
	return s.tracker.Query(rec.IPAddress, tracker.ScopeOrigin)
}

func (s *DetectionService) submitAttack(ctx context.Context, rec models.AttemptRecord, result models.DetectionResult, logID string) (string, bool) {
	ledgerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()

	txID, err := s.ledger.RecordAttack(ledgerCtx, ledger.NewAttackRecord(rec, result, logID))
	switch {
	case err == nil:
		s.metrics.LedgerSubmission("ok")
		s.logger.Info("attack recorded to ledger",
			slog.String("backend", s.ledger.Backend()),
			slog.String("tx_id", txID),
			slog.String("attack_type", string(result.AttackType)))
		return txID, true
	case errors.Is(err, models.ErrLedgerDisabled):
		s.metrics.LedgerSubmission("disabled")
		return "", false
	default:
		s.metrics.LedgerSubmission("failed")
		s.logger.Error("failed to record attack to ledger",
			slog.String("backend", s.ledger.Backend()),
			slog.String("ip_address", rec.IPAddress),
			slog.Any("error", err))
		body := fmt.Sprintf("attack from %s (%s) could not be recorded to the %s ledger: %v",
			rec.IPAddress, result.AttackType, s.ledger.Backend(), err)
		if alertErr := s.alerter.Alert(ledgerCtx, "ledger submission failed", body); alertErr != nil {
			s.logger.Error("failed to raise ledger alert", slog.Any("error", alertErr))
		}
		return "", false
	}
}

// Stats returns the aggregate statistics
func (s *DetectionService) Stats() models.AggregateStats {
	return s.stats.CurrentStats()
}

// Dashboard returns the formatted dashboard statistics
func (s *DetectionService) Dashboard() models.DashboardStats {
	return s.stats.DashboardStats()
}

// RecentAttacks returns up to limit of the most recent attack verdicts, oldest first
func (s *DetectionService) RecentAttacks(limit int) []models.DetectionSnapshot {
	return s.stats.RecentAttacks(limit)
}

// RecentEvents returns up to limit of the most recent security events, oldest first
func (s *DetectionService) RecentEvents(ctx context.Context, limit int) []models.SecurityEvent {
	return s.events.RecentEvents(ctx, limit)
}

// LoginStats summarizes the security events of the last window
func (s *DetectionService) LoginStats(ctx context.Context, window time.Duration) models.LoginStats {
	return s.events.LoginStats(ctx, window)
}

// ClearRecentEvents empties the in-memory event buffer
func (s *DetectionService) ClearRecentEvents(ctx context.Context, actorID, ipAddress string) int {
	n := s.events.ClearRecent()
	s.audit.LogAdminAction(ctx, "clear_recent_events", actorID, ipAddress, map[string]string{
		"cleared": fmt.Sprintf("%d", n),
	})
	return n
}

// LedgerStats reports the ledger backend and how many attacks it holds
func (s *DetectionService) LedgerStats(ctx context.Context) (LedgerStats, error) {
	stats := LedgerStats{Backend: s.ledger.Backend(), CountScope: ledger.CountScope(s.ledger)}
	count, err := s.ledger.AttackCount(ctx)
	if errors.Is(err, models.ErrLedgerDisabled) {
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("failed to count ledger attacks: %w", err)
	}
	stats.Enabled = true
	stats.AttackCount = count
	return stats, nil
}
