package services

import (
	"context"
	"strconv"
	"time"

	"github.com/BradenHooton/loginguard/internal/classifier"
	"github.com/BradenHooton/loginguard/internal/ledger"
	"github.com/BradenHooton/loginguard/internal/models"
)

// MockClassifier implements ClassifierScorer for testing
type MockClassifier struct {
	ScoreFunc func(ctx context.Context, text string) (models.ClassifierResult, error)
	state     classifier.State
}

func (m *MockClassifier) Score(ctx context.Context, text string) (models.ClassifierResult, error) {
	if m.ScoreFunc != nil {
		return m.ScoreFunc(ctx, text)
	}
	return classifier.Fallback, models.ErrClassifierUnavailable
}

func (m *MockClassifier) State() classifier.State {
	return m.state
}

// Usable reports true unless the mock was put in the failed or unloaded state explicitly
func (m *MockClassifier) Usable() bool {
	return m.state != classifier.StateFailed
}

// MockEventRecorder implements EventRecorder for testing
type MockEventRecorder struct {
	RecordAttemptFunc func(ctx context.Context, rec models.AttemptRecord, detection *models.DetectionResult, failureReason string) models.SecurityEvent
	LoginStatsFunc    func(ctx context.Context, window time.Duration) models.LoginStats
	recorded          []models.AttemptRecord
	reasons           []string
}

func (m *MockEventRecorder) RecordAttempt(ctx context.Context, rec models.AttemptRecord, detection *models.DetectionResult, failureReason string) models.SecurityEvent {
	m.recorded = append(m.recorded, rec)
	m.reasons = append(m.reasons, failureReason)
	if m.RecordAttemptFunc != nil {
		return m.RecordAttemptFunc(ctx, rec, detection, failureReason)
	}
	ev := models.SecurityEvent{
		Timestamp:       rec.Timestamp,
		Email:           rec.Email,
		IPAddress:       rec.IPAddress,
		LoginSuccessful: rec.LoginSuccessful,
	}
	if detection != nil {
		ev.IsAttack = detection.IsAttack
		ev.Detection = models.SummaryOf(*detection)
	}
	return ev
}

func (m *MockEventRecorder) RecentEvents(ctx context.Context, n int) []models.SecurityEvent {
	return []models.SecurityEvent{}
}

func (m *MockEventRecorder) ClearRecent() int {
	n := len(m.recorded)
	m.recorded = nil
	return n
}

func (m *MockEventRecorder) LoginStats(ctx context.Context, window time.Duration) models.LoginStats {
	if m.LoginStatsFunc != nil {
		return m.LoginStatsFunc(ctx, window)
	}
	return models.LoginStats{}
}

// MockLedger implements ledger.Sink for testing
type MockLedger struct {
	RecordAttackFunc func(ctx context.Context, rec ledger.AttackRecord) (string, error)
	records          []ledger.AttackRecord
	count            int64
}

func (m *MockLedger) RecordAttack(ctx context.Context, rec ledger.AttackRecord) (string, error) {
	if m.RecordAttackFunc != nil {
		return m.RecordAttackFunc(ctx, rec)
	}
	m.records = append(m.records, rec)
	m.count++
	return "tx-" + strconv.Itoa(len(m.records)), nil
}

func (m *MockLedger) AttackCount(ctx context.Context) (int64, error) {
	return m.count, nil
}

func (m *MockLedger) Backend() string {
	return "mock"
}

// MockAlerter implements alert.Alerter for testing
type MockAlerter struct {
	AlertFunc func(ctx context.Context, subject, body string) error
	subjects  []string
}

func (m *MockAlerter) Alert(ctx context.Context, subject, body string) error {
	m.subjects = append(m.subjects, subject)
	if m.AlertFunc != nil {
		return m.AlertFunc(ctx, subject, body)
	}
	return nil
}
