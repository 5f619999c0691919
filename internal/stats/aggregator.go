package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/pkg/ring"
)

const (
	// DefaultFreshness is how long a computed view is served before it may be recomputed
	DefaultFreshness = 5 * time.Second

	// RecentCapacity bounds the recent-results buffer
	RecentCapacity = 100

	// a clean view is still recomputed after this many freshness windows so
	// active-key counts changed by the janitor eventually show up
	maxStaleWindows = 12

	// AttemptsWindow is the lookback of the attempts_last_hour figure
	AttemptsWindow = time.Hour
)

// ActivitySource reports how many keys the activity tracker holds and how
// many attempts its global history saw recently
type ActivitySource interface {
	ActiveUsers() int
	ActiveOrigins() int
	AttemptsSince(since time.Time) int
}

// ClassifierStatus reports whether a live classifier is loaded
type ClassifierStatus interface {
	Usable() bool
}

// Aggregator keeps monotonic counters over processed attempts and serves a
// cached derived view of them.
type Aggregator struct {
	total          atomic.Int64
	attacks        atomic.Int64
	classifierUsed atomic.Int64
	fallbackUsed   atomic.Int64
	successful     atomic.Int64

	activity   ActivitySource
	classifier ClassifierStatus
	freshness  time.Duration
	now        func() time.Time

	recentMu sync.Mutex
	recent   *ring.Buffer[models.DetectionSnapshot]

	cacheMu   sync.Mutex
	cached    *models.AggregateStats
	dirty     bool
	lastReset time.Time
}

// NewAggregator creates an Aggregator. activity and classifier may be nil.
func NewAggregator(activity ActivitySource, classifier ClassifierStatus, freshness time.Duration) *Aggregator {
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	a := &Aggregator{
		activity:   activity,
		classifier: classifier,
		freshness:  freshness,
		now:        time.Now,
		recent:     ring.New[models.DetectionSnapshot](RecentCapacity),
	}
	a.lastReset = a.now()
	return a
}

// Observe updates the counters for one processed attempt
func (a *Aggregator) Observe(snap models.DetectionSnapshot) {
	a.total.Add(1)
	if snap.IsAttack {
		a.attacks.Add(1)
	}
	if snap.ClassifierUsed {
		a.classifierUsed.Add(1)
	} else {
		a.fallbackUsed.Add(1)
	}
	if snap.LoginSuccessful {
		a.successful.Add(1)
	}

	a.recentMu.Lock()
	a.recent.Push(snap)
	a.recentMu.Unlock()
}

// Invalidate marks the cached view as out of date. It is still served until
// the freshness window elapses.
func (a *Aggregator) Invalidate() {
	a.cacheMu.Lock()
	a.dirty = true
	a.cacheMu.Unlock()
}

// CurrentStats returns the derived view, recomputing it only when the cached
// one is older than the freshness window and has been invalidated.
func (a *Aggregator) CurrentStats() models.AggregateStats {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()

	now := a.now()
	if a.cached != nil {
		age := now.Sub(a.cached.ComputedAt)
		if age < a.freshness || (!a.dirty && age < a.freshness*maxStaleWindows) {
			return *a.cached
		}
	}

	s := a.compute(now)
	a.cached = &s
	a.dirty = false
	return s
}

func (a *Aggregator) compute(now time.Time) models.AggregateStats {
	s := models.AggregateStats{
		TotalAttempts:      a.total.Load(),
		DetectedAttacks:    a.attacks.Load(),
		ClassifierPredicts: a.classifierUsed.Load(),
		FallbackPredicts:   a.fallbackUsed.Load(),
		SuccessfulLogins:   a.successful.Load(),
		LastReset:          a.lastReset,
		ComputedAt:         now,
	}
	if a.activity != nil {
		s.ActiveUsers = a.activity.ActiveUsers()
		s.ActiveOrigins = a.activity.ActiveOrigins()
		s.AttemptsLastHour = a.activity.AttemptsSince(now.Add(-AttemptsWindow))
	}
	if a.classifier != nil {
		s.ClassifierAvailable = a.classifier.Usable()
	}

	s.AttackRate = ratio(s.DetectedAttacks, s.TotalAttempts)
	s.ClassifierUsageRate = ratio(s.ClassifierPredicts, s.TotalAttempts)
	s.SuccessRate = ratio(s.SuccessfulLogins, s.TotalAttempts)

	a.recentMu.Lock()
	s.RecentResults = a.recent.Len()
	for i := 0; i < a.recent.Len(); i++ {
		if a.recent.At(i).IsAttack {
			s.RecentAttackCount++
		}
	}
	a.recentMu.Unlock()

	return s
}

// DashboardStats formats CurrentStats for display
func (a *Aggregator) DashboardStats() models.DashboardStats {
	s := a.CurrentStats()
	return models.DashboardStats{
		TotalRequests:       s.TotalAttempts,
		DetectedAttacks:     s.DetectedAttacks,
		AttackRate:          Percent(s.AttackRate),
		ClassifierAvailable: s.ClassifierAvailable,
		ActiveUsers:         s.ActiveUsers,
		ActiveOrigins:       s.ActiveOrigins,
		AttemptsLastHour:    s.AttemptsLastHour,
		ClassifierUsage:     Percent(s.ClassifierUsageRate),
		RecentAttacks:       s.RecentAttackCount,
		LastUpdate:          s.ComputedAt.Format(time.TimeOnly),
	}
}

// RecentAttacks returns up to limit of the most recent attack results, oldest first
func (a *Aggregator) RecentAttacks(limit int) []models.DetectionSnapshot {
	a.recentMu.Lock()
	defer a.recentMu.Unlock()

	attacks := make([]models.DetectionSnapshot, 0)
	for i := 0; i < a.recent.Len(); i++ {
		if snap := a.recent.At(i); snap.IsAttack {
			attacks = append(attacks, snap)
		}
	}
	if limit > 0 && len(attacks) > limit {
		attacks = attacks[len(attacks)-limit:]
	}
	return attacks
}

// Reset zeroes the counters and the recent-results buffer
func (a *Aggregator) Reset() {
	a.total.Store(0)
	a.attacks.Store(0)
	a.classifierUsed.Store(0)
	a.fallbackUsed.Store(0)
	a.successful.Store(0)

	a.recentMu.Lock()
	a.recent.Clear()
	a.recentMu.Unlock()

	a.cacheMu.Lock()
	a.cached = nil
	a.dirty = false
	a.lastReset = a.now()
	a.cacheMu.Unlock()
}

// Percent formats a fraction as a percentage with two decimals
func Percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func ratio(n, d int64) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d)
}
