package background

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/loginguard/internal/metrics"
	"github.com/BradenHooton/loginguard/internal/tracker"
)

// Sweeper evicts history entries older than window relative to now
type Sweeper interface {
	Sweep(now time.Time, window time.Duration) tracker.SweepResult
}

// Janitor periodically evicts expired activity from the tracker
type Janitor struct {
	sweeper  Sweeper
	metrics  *metrics.Metrics
	logger   *slog.Logger
	interval time.Duration
	window   time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewJanitor creates a new janitor
func NewJanitor(
	sweeper Sweeper,
	m *metrics.Metrics,
	logger *slog.Logger,
	interval time.Duration,
	window time.Duration,
) *Janitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 2 * time.Minute
	}
	return &Janitor{
		sweeper:  sweeper,
		metrics:  m,
		logger:   logger,
		interval: interval,
		window:   window,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the periodic sweep until Stop is called or ctx is cancelled
func (j *Janitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run immediately on startup
	j.RunOnce()

	for {
		select {
		case <-ticker.C:
			j.RunOnce()
		case <-j.stopCh:
			j.logger.Info("janitor stopped")
			return
		case <-ctx.Done():
			j.logger.Info("janitor context cancelled")
			return
		}
	}
}

// RunOnce performs one sweep. A failing sweep is logged and never stops the janitor.
func (j *Janitor) RunOnce() {
	res, err := j.sweep()
	if err != nil {
		j.metrics.JanitorSweep(0, 0, true)
		j.logger.Error("janitor sweep failed", slog.Any("error", err))
		return
	}

	j.metrics.JanitorSweep(res.UserKeysRemoved, res.OriginKeysRemoved, false)
	if res.EntriesDropped > 0 {
		j.logger.Info("janitor sweep completed",
			slog.Int("entries_dropped", res.EntriesDropped),
			slog.Int("user_keys_removed", res.UserKeysRemoved),
			slog.Int("origin_keys_removed", res.OriginKeysRemoved),
			slog.Int("active_users", res.UserKeysRemaining),
			slog.Int("active_origins", res.OriginKeysRemaining),
		)
	}
}

func (j *Janitor) sweep() (res tracker.SweepResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panicked: %v", r)
		}
	}()
	return j.sweeper.Sweep(j.now(), j.window), nil
}

// Stop signals the janitor to stop. It is safe to call more than once.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() {
		close(j.stopCh)
	})
}
