package securitylog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/loginguard/internal/alert"
	"github.com/BradenHooton/loginguard/internal/denylist"
	"github.com/BradenHooton/loginguard/internal/metrics"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/storage"
	pkglogger "github.com/BradenHooton/loginguard/pkg/logger"
	"github.com/BradenHooton/loginguard/pkg/ring"
	"github.com/google/uuid"
)

const (
	// RingCapacity bounds the in-memory buffer of recent events
	RingCapacity = 1000

	DefaultHighFrequencyThreshold = 10
	DefaultHighFrequencyWindow    = 5 * time.Minute
	DefaultStatsFreshness         = 5 * time.Second

	nullOrigin   = "0.0.0.0"
	alertTimeout = 10 * time.Second
)

// DefaultSuspiciousAgents are the substrings that mark an automated client
var DefaultSuspiciousAgents = []string{"bot", "crawler", "scraper", "python", "curl", "wget", "headless"}

// Config holds the anomaly check settings
type Config struct {
	HighFrequencyThreshold int
	HighFrequencyWindow    time.Duration
	SuspiciousAgents       []string
	StatsFreshness         time.Duration
}

func (c Config) withDefaults() Config {
	if c.HighFrequencyThreshold <= 0 {
		c.HighFrequencyThreshold = DefaultHighFrequencyThreshold
	}
	if c.HighFrequencyWindow <= 0 {
		c.HighFrequencyWindow = DefaultHighFrequencyWindow
	}
	if len(c.SuspiciousAgents) == 0 {
		c.SuspiciousAgents = DefaultSuspiciousAgents
	}
	agents := make([]string, 0, len(c.SuspiciousAgents))
	for _, a := range c.SuspiciousAgents {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			agents = append(agents, a)
		}
	}
	c.SuspiciousAgents = agents
	if c.StatsFreshness <= 0 {
		c.StatsFreshness = DefaultStatsFreshness
	}
	return c
}

// Invalidator is notified whenever a new event is recorded
type Invalidator interface {
	Invalidate()
}

// HistoryReader loads durable events when the in-memory buffer has none for a window
type HistoryReader interface {
	ReadSince(ctx context.Context, since time.Time) ([]models.SecurityEvent, error)
}

// Archive is the queryable event store, present when the events database is configured
type Archive interface {
	ListRecent(ctx context.Context, limit int) ([]models.SecurityEvent, error)
	CountAttacks(ctx context.Context) (int64, error)
}

// Deps are the collaborators of a Logger. Only Sink is required.
type Deps struct {
	Sink     storage.EventSink
	Denylist denylist.Checker
	Stats    Invalidator
	Alerter  alert.Alerter
	Metrics  *metrics.Metrics
	History  HistoryReader
	Archive  Archive
}

// Logger durably records every login attempt and runs anomaly checks over the recorded stream
type Logger struct {
	deps   Deps
	config Config
	audit  *pkglogger.AuditLogger
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	recent *ring.Buffer[*models.SecurityEvent]

	// coveredFrom is the instant from which recent holds every recorded event; guarded by mu
	coveredFrom time.Time

	statsMu     sync.Mutex
	statsCache  *models.LoginStats
	statsWindow time.Duration
	statsAt     time.Time
}

// New creates a Logger
func New(deps Deps, config Config, logger *slog.Logger) *Logger {
	if deps.Denylist == nil {
		deps.Denylist = denylist.Chain{}
	}
	if deps.Alerter == nil {
		deps.Alerter = alert.NewLogAlerter(logger)
	}
	return &Logger{
		deps:   deps,
		config: config.withDefaults(),
		audit:  pkglogger.NewAuditLogger(logger),
		logger: logger,
		now:    time.Now,
		recent: ring.New[*models.SecurityEvent](RingCapacity),

		coveredFrom: time.Now(),
	}
}

// RecordAttempt builds the security event for an attempt, runs the anomaly
// checks, and stores it in the recent buffer and the durable sink. A storage
// failure is logged and alerted but never returned; the event is always produced.
// detection may be nil when the attempt was not analyzed.
func (l *Logger) RecordAttempt(ctx context.Context, rec models.AttemptRecord, detection *models.DetectionResult, failureReason string) models.SecurityEvent {
	ev := l.buildEvent(rec, detection, failureReason)

	var anomalies []string
	if ev.IPAddress == nullOrigin || l.deps.Denylist.IsDenied(ctx, ev.IPAddress) {
		anomalies = append(anomalies, models.AnomalySuspiciousIP)
	}
	if l.isSuspiciousAgent(ev.UserAgent) {
		anomalies = append(anomalies, models.AnomalySuspiciousUA)
	}

	// the frequency count includes the event being recorded
	l.mu.Lock()
	if l.countRecentLocked(ev.IPAddress, ev.Timestamp)+1 > l.config.HighFrequencyThreshold {
		anomalies = append(anomalies, models.AnomalyHighFrequency)
	}
	ev.Anomalies = anomalies
	stored := ev
	if l.recent.Len() == l.recent.Cap() {
		if evicted := l.recent.At(0); evicted.Timestamp.After(l.coveredFrom) {
			l.coveredFrom = evicted.Timestamp
		}
	}
	l.recent.Push(&stored)
	l.mu.Unlock()

	if err := l.deps.Sink.Write(ctx, &ev); err != nil {
		l.handleStorageFailure(ctx, &ev, err)
	}

	if l.deps.Stats != nil {
		l.deps.Stats.Invalidate()
	}
	l.invalidateLoginStats()

	for _, a := range anomalies {
		l.deps.Metrics.Anomaly(a)
	}
	l.audit.LogAnomalies(ctx, ev.IPAddress, anomalies)
	l.audit.LogLoginAttempt(ctx, auditEventOf(&ev))

	return ev
}

func (l *Logger) buildEvent(rec models.AttemptRecord, detection *models.DetectionResult, failureReason string) models.SecurityEvent {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}

	ev := models.SecurityEvent{
		ID:              uuid.New(),
		LogID:           LogID(rec.Email, ts),
		SessionToken:    SessionToken(rec.IPAddress, rec.UserAgent, ts),
		Timestamp:       ts,
		Email:           rec.Email,
		IPAddress:       rec.IPAddress,
		Country:         rec.Country,
		Region:          rec.Region,
		City:            rec.City,
		UserAgent:       rec.UserAgent,
		Browser:         rec.Browser,
		OS:              rec.OS,
		DeviceType:      rec.DeviceType,
		LoginSuccessful: rec.LoginSuccessful,
	}
	if rec.UserID != "" {
		ev.AnonymizedUser = Anonymize(rec.UserID)
	}
	if failureReason != "" {
		reason := failureReason
		ev.FailureReason = &reason
	}
	if detection != nil {
		ev.IsAttack = detection.IsAttack
		ev.Detection = models.SummaryOf(*detection)
	}
	return ev
}

func (l *Logger) handleStorageFailure(ctx context.Context, ev *models.SecurityEvent, err error) {
	sinks := storage.FailedSinks(err)
	if len(sinks) == 0 {
		sinks = []string{l.deps.Sink.Name()}
	}
	for _, s := range sinks {
		l.deps.Metrics.StorageFailure(s)
	}

	l.logger.Error("failed to persist security event",
		slog.String("log_id", ev.LogID),
		slog.String("sinks", strings.Join(sinks, ",")),
		slog.Any("error", err))

	alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()
	body := fmt.Sprintf("security event %s could not be written to %s: %v", ev.LogID, strings.Join(sinks, ", "), err)
	if alertErr := l.deps.Alerter.Alert(alertCtx, "security event storage write failed", body); alertErr != nil {
		l.logger.Error("failed to raise storage alert", slog.Any("error", alertErr))
	}
}

// countRecentLocked counts buffered events from ip within the high-frequency window ending at now
func (l *Logger) countRecentLocked(ip string, now time.Time) int {
	cutoff := now.Add(-l.config.HighFrequencyWindow)
	n := 0
	for i := 0; i < l.recent.Len(); i++ {
		ev := l.recent.At(i)
		if ev.IPAddress == ip && ev.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

func (l *Logger) isSuspiciousAgent(ua string) bool {
	ua = strings.ToLower(ua)
	for _, pattern := range l.config.SuspiciousAgents {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}

// RecentEvents returns copies of the newest n events, oldest first. When n
// exceeds a full buffer they are read from the archive instead.
func (l *Logger) RecentEvents(ctx context.Context, n int) []models.SecurityEvent {
	l.mu.RLock()
	full := l.recent.Len() == l.recent.Cap()
	ptrs := l.recent.Last(n)
	l.mu.RUnlock()

	if full && n > len(ptrs) && l.deps.Archive != nil {
		archived, err := l.deps.Archive.ListRecent(ctx, n)
		if err == nil {
			slices.Reverse(archived)
			return archived
		}
		l.logger.Warn("failed to list archived security events", slog.Any("error", err))
	}

	out := make([]models.SecurityEvent, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}

// ClearRecent empties the in-memory buffer; durable storage is untouched
func (l *Logger) ClearRecent() int {
	l.mu.Lock()
	n := l.recent.Len()
	l.recent.Clear()
	l.coveredFrom = l.now()
	l.mu.Unlock()

	l.invalidateLoginStats()
	l.logger.Info("recent security events cleared", slog.Int("count", n))
	return n
}

// Anonymize returns the first 16 hex characters of the SHA-256 of id
func Anonymize(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:16]
}

// LogID derives the deduplication id of an event from the identity and instant
func LogID(email string, ts time.Time) string {
	return Anonymize(email + strconv.FormatInt(ts.UnixNano(), 10))
}

// SessionToken correlates attempts from the same client within the same hour
func SessionToken(ip, userAgent string, ts time.Time) string {
	return Anonymize(ip + "|" + userAgent + "|" + ts.UTC().Format("2006-01-02T15"))
}

func auditEventOf(ev *models.SecurityEvent) pkglogger.AuditEvent {
	ae := pkglogger.AuditEvent{
		EventType:  "login_attempt",
		UserID:     ev.AnonymizedUser,
		Email:      ev.Email,
		IPAddress:  ev.IPAddress,
		Country:    ev.Country,
		DeviceType: ev.DeviceType,
		Success:    ev.LoginSuccessful,
	}
	if ev.FailureReason != nil {
		ae.FailureReason = *ev.FailureReason
	}
	if ev.IsAttack && ev.Detection != nil {
		ae.AttackType = string(ev.Detection.AttackType)
		ae.Confidence = ev.Detection.Confidence
	}
	return ae
}
