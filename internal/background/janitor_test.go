package background

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/tracker"
	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// MockSweeper implements Sweeper for testing
type MockSweeper struct {
	SweepFunc func(now time.Time, window time.Duration) tracker.SweepResult
	calls     atomic.Int32
}

func (m *MockSweeper) Sweep(now time.Time, window time.Duration) tracker.SweepResult {
	m.calls.Add(1)
	if m.SweepFunc != nil {
		return m.SweepFunc(now, window)
	}
	return tracker.SweepResult{}
}

func TestJanitor_RunOnceRecoversFromPanic(t *testing.T) {
	s := &MockSweeper{SweepFunc: func(now time.Time, window time.Duration) tracker.SweepResult {
		panic("corrupted history")
	}}
	j := NewJanitor(s, nil, testLogger(), time.Minute, time.Minute)

	assert.NotPanics(t, j.RunOnce)
	assert.NotPanics(t, j.RunOnce)
	assert.Equal(t, int32(2), s.calls.Load())
}

func TestJanitor_SweepsWithConfiguredWindow(t *testing.T) {
	tr := tracker.New()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tr.Record(models.AttemptRecord{UserID: "1", IPAddress: "192.0.2.1", Timestamp: now.Add(-3 * time.Minute)})
	tr.Record(models.AttemptRecord{UserID: "2", IPAddress: "192.0.2.2", Timestamp: now.Add(-time.Minute)})

	j := NewJanitor(tr, nil, testLogger(), 0, 0)
	j.now = func() time.Time { return now }

	j.RunOnce()

	assert.Equal(t, 1, tr.ActiveUsers())
	assert.Equal(t, 1, tr.ActiveOrigins())
	assert.Len(t, tr.Query("2", tracker.ScopeUser), 1)
}

func TestJanitor_StartRunsImmediatelyAndStops(t *testing.T) {
	s := &MockSweeper{}
	j := NewJanitor(s, nil, testLogger(), time.Hour, time.Minute)

	done := make(chan struct{})
	go func() {
		j.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool { return s.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	j.Stop()
	j.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestJanitor_KeepsRunningAfterFailure(t *testing.T) {
	s := &MockSweeper{SweepFunc: func(now time.Time, window time.Duration) tracker.SweepResult {
		panic("boom")
	}}
	j := NewJanitor(s, nil, testLogger(), 10*time.Millisecond, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return s.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
