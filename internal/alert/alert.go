package alert

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Alerter raises an operational alert
type Alerter interface {
	Alert(ctx context.Context, subject, body string) error
}

// LogAlerter writes alerts to the structured log at error level
type LogAlerter struct {
	logger *slog.Logger
}

// NewLogAlerter creates a LogAlerter
func NewLogAlerter(logger *slog.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

// Alert implements Alerter
func (a *LogAlerter) Alert(ctx context.Context, subject, body string) error {
	a.logger.ErrorContext(ctx, "operational alert",
		slog.String("audit_type", "alert"),
		slog.String("subject", subject),
		slog.String("body", body))
	return nil
}

// Fanout sends every alert to all of its alerters
type Fanout []Alerter

// Alert implements Alerter
func (f Fanout) Alert(ctx context.Context, subject, body string) error {
	var errs []error
	for _, a := range f {
		if a == nil {
			continue
		}
		if err := a.Alert(ctx, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Throttled forwards at most one alert per subject per interval
type Throttled struct {
	next     Alerter
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewThrottled wraps next; a non-positive interval defaults to one minute
func NewThrottled(next Alerter, interval time.Duration) *Throttled {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Throttled{
		next:     next,
		interval: interval,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

// Alert implements Alerter. Suppressed alerts return nil.
func (t *Throttled) Alert(ctx context.Context, subject, body string) error {
	now := t.now()

	t.mu.Lock()
	if last, ok := t.last[subject]; ok && now.Sub(last) < t.interval {
		t.mu.Unlock()
		return nil
	}
	for s, at := range t.last {
		if now.Sub(at) >= t.interval {
			delete(t.last, s)
		}
	}
	t.last[subject] = now
	t.mu.Unlock()

	return t.next.Alert(ctx, subject, body)
}
