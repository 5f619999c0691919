package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func sampleEvent(at time.Time) *models.SecurityEvent {
	reason := "invalid_password"
	return &models.SecurityEvent{
		ID:              uuid.New(),
		LogID:           "abcd1234abcd1234",
		SessionToken:    "feedfacefeedface",
		Timestamp:       at,
		Email:           "alice@example.com",
		AnonymizedUser:  "0123456789abcdef",
		IPAddress:       "203.0.113.10",
		Country:         "FR",
		Region:          "Ile-de-France",
		City:            "Paris",
		UserAgent:       "curl/8.4.0",
		Browser:         "curl 8.4.0",
		OS:              models.UnknownValue,
		DeviceType:      "unknown",
		LoginSuccessful: false,
		FailureReason:   &reason,
		IsAttack:        true,
		Detection: &models.DetectionSummary{
			IsAttack:   true,
			Confidence: 0.72,
			AttackType: models.AttackTypeBehavioralAnomaly,
		},
		Anomalies: []string{models.AnomalySuspiciousUA, models.AnomalyHighFrequency},
	}
}

// MockSink implements EventSink for testing
type MockSink struct {
	NameValue string
	WriteFunc func(ctx context.Context, ev *models.SecurityEvent) error
	writes    int
}

func (m *MockSink) Name() string { return m.NameValue }

func (m *MockSink) Write(ctx context.Context, ev *models.SecurityEvent) error {
	m.writes++
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, ev)
	}
	return nil
}

func TestFileSink_WritesJSONAndCSV(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, testLogger())
	require.NoError(t, err)

	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Write(context.Background(), sampleEvent(now)))
	require.NoError(t, sink.Write(context.Background(), sampleEvent(now.Add(time.Minute))))

	events, err := sink.ReadSince(context.Background(), now.Add(30*time.Second))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "alice@example.com", events[0].Email)
	assert.Equal(t, models.AttackTypeBehavioralAnomaly, events[0].AttackType())
	assert.True(t, events[0].HasAnomaly(models.AnomalyHighFrequency))

	f, err := os.Open(filepath.Join(dir, CSVFileName))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "header is written once")
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "curl/8.4.0", rows[1][9])
	assert.Equal(t, "0.7200", rows[1][17])
	assert.Equal(t, "SUSPICIOUS_UA;HIGH_FREQUENCY", rows[1][20])
}

func TestFileSink_ReadSinceMissingFile(t *testing.T) {
	sink, err := NewFileSink(t.TempDir(), testLogger())
	require.NoError(t, err)

	events, err := sink.ReadSince(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFileSink_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, testLogger())
	require.NoError(t, err)
	require.NoError(t, sink.Write(context.Background(), sampleEvent(time.Now())))

	f, err := os.OpenFile(filepath.Join(dir, JSONFileName), os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	f.Close()

	events, err := sink.ReadSince(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestNewFileSink_EmptyDir(t *testing.T) {
	_, err := NewFileSink("", testLogger())
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}

func TestMultiSink_WritesAllAndJoinsFailures(t *testing.T) {
	ok := &MockSink{NameValue: "file"}
	bad := &MockSink{NameValue: "postgres", WriteFunc: func(ctx context.Context, ev *models.SecurityEvent) error {
		return errors.New("connection refused")
	}}
	after := &MockSink{NameValue: "other"}

	m := NewMultiSink(ok, nil, bad, after)
	err := m.Write(context.Background(), sampleEvent(time.Now()))

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStorageWrite)
	assert.Equal(t, []string{"postgres"}, FailedSinks(err))
	assert.Equal(t, 1, ok.writes)
	assert.Equal(t, 1, after.writes, "a failing sink must not short-circuit the rest")
	assert.Equal(t, 3, m.Len())
}

func TestMultiSink_NoFailures(t *testing.T) {
	m := NewMultiSink(&MockSink{NameValue: "a"})
	assert.NoError(t, m.Write(context.Background(), sampleEvent(time.Now())))
	assert.Nil(t, FailedSinks(nil))
}
