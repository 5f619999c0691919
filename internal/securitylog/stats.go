package securitylog

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
)

// DefaultStatsWindow is the lookback used when LoginStats is asked for a non-positive window
const DefaultStatsWindow = 24 * time.Hour

// LoginStats summarizes the events recorded in the last window. Results are cached
// for the configured freshness period per window. When the window starts before
// the recent buffer's coverage the durable
// history is read instead, falling back to the buffer if that read fails.
func (l *Logger) LoginStats(ctx context.Context, window time.Duration) models.LoginStats {
	if window <= 0 {
		window = DefaultStatsWindow
	}
	now := l.now()

	l.statsMu.Lock()
	if l.statsCache != nil && l.statsWindow == window && now.Sub(l.statsAt) < l.config.StatsFreshness {
		cached := *l.statsCache
		l.statsMu.Unlock()
		return cached
	}
	l.statsMu.Unlock()

	since := now.Add(-window)
	events, covered := l.eventsSince(since)
	if !covered && l.deps.History != nil {
		loaded, err := l.deps.History.ReadSince(ctx, since)
		if err != nil {
			l.logger.Warn("failed to load security event history", slog.Any("error", err))
		} else {
			events = loaded
		}
	}

	stats := CalculateStats(events)
	stats.LastUpdate = now
	if l.deps.Archive != nil {
		stored, err := l.deps.Archive.CountAttacks(ctx)
		if err != nil {
			l.logger.Warn("failed to count stored attacks", slog.Any("error", err))
		} else {
			stats.StoredAttacks = stored
		}
	}

	l.statsMu.Lock()
	l.statsCache = &stats
	l.statsWindow = window
	l.statsAt = now
	l.statsMu.Unlock()

	return stats
}

// eventsSince returns the buffered events at or after since and whether the
// buffer is known to hold every event of that range
func (l *Logger) eventsSince(since time.Time) ([]models.SecurityEvent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []models.SecurityEvent
	for i := 0; i < l.recent.Len(); i++ {
		ev := l.recent.At(i)
		if !ev.Timestamp.Before(since) {
			out = append(out, *ev)
		}
	}
	return out, !since.Before(l.coveredFrom)
}

func (l *Logger) invalidateLoginStats() {
	l.statsMu.Lock()
	l.statsCache = nil
	l.statsMu.Unlock()
}

// CalculateStats aggregates a set of events. Rates are fractions in [0, 1].
func CalculateStats(events []models.SecurityEvent) models.LoginStats {
	ips := make(map[string]struct{})
	users := make(map[string]struct{})
	countries := make(map[string]struct{})

	var stats models.LoginStats
	for i := range events {
		ev := &events[i]
		stats.TotalAttempts++
		if ev.LoginSuccessful {
			stats.SuccessfulLogins++
		}
		if len(ev.Anomalies) > 0 {
			stats.SuspiciousAttempts++
		}
		if ev.IsAttack {
			stats.DetectedAttacks++
		}
		ips[ev.IPAddress] = struct{}{}
		if ev.AnonymizedUser != "" {
			users[ev.AnonymizedUser] = struct{}{}
		}
		if ev.Country != "" && ev.Country != models.UnknownValue {
			countries[ev.Country] = struct{}{}
		}
	}

	stats.FailedLogins = stats.TotalAttempts - stats.SuccessfulLogins
	stats.UniqueIPs = len(ips)
	stats.UniqueUsers = len(users)
	stats.Countries = make([]string, 0, len(countries))
	for c := range countries {
		stats.Countries = append(stats.Countries, c)
	}
	sort.Strings(stats.Countries)
	stats.CountryCount = len(stats.Countries)

	denom := float64(max(1, stats.TotalAttempts))
	stats.AttackRate = float64(stats.DetectedAttacks) / denom
	stats.SuccessRate = float64(stats.SuccessfulLogins) / denom
	return stats
}
