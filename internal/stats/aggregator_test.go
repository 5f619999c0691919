package stats

import (
	"testing"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActivity struct {
	users, origins int
	attempts       []time.Time
}

func (f *fakeActivity) ActiveUsers() int   { return f.users }
func (f *fakeActivity) ActiveOrigins() int { return f.origins }

func (f *fakeActivity) AttemptsSince(since time.Time) int {
	n := 0
	for _, at := range f.attempts {
		if !at.Before(since) {
			n++
		}
	}
	return n
}

type fakeClassifier struct{ usable bool }

func (f fakeClassifier) Usable() bool { return f.usable }

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestAggregator(act ActivitySource) (*Aggregator, *clock) {
	c := &clock{t: time.Date(2026, 5, 4, 10, 30, 15, 0, time.UTC)}
	a := NewAggregator(act, fakeClassifier{usable: true}, 0)
	a.now = c.now
	return a, c
}

func observe(a *Aggregator, attack, classifierUsed, success bool) {
	a.Observe(models.DetectionSnapshot{
		DetectionResult: models.DetectionResult{IsAttack: attack, ClassifierUsed: classifierUsed},
		LoginSuccessful: success,
	})
	a.Invalidate()
}

func TestAggregator_DerivedRates(t *testing.T) {
	a, _ := newTestAggregator(&fakeActivity{users: 3, origins: 2})

	observe(a, true, true, false)
	observe(a, false, true, true)
	observe(a, false, false, true)
	observe(a, true, false, false)

	s := a.CurrentStats()
	assert.Equal(t, int64(4), s.TotalAttempts)
	assert.Equal(t, int64(2), s.DetectedAttacks)
	assert.Equal(t, int64(2), s.ClassifierPredicts)
	assert.Equal(t, int64(2), s.FallbackPredicts)
	assert.Equal(t, 0.5, s.AttackRate)
	assert.Equal(t, 0.5, s.ClassifierUsageRate)
	assert.Equal(t, 0.5, s.SuccessRate)
	assert.Equal(t, 3, s.ActiveUsers)
	assert.Equal(t, 2, s.ActiveOrigins)
	assert.True(t, s.ClassifierAvailable)
	assert.Equal(t, 2, s.RecentAttackCount)
	assert.Equal(t, 4, s.RecentResults)
}

func TestAggregator_NoAttemptsHasZeroRates(t *testing.T) {
	a, _ := newTestAggregator(nil)

	s := a.CurrentStats()

	assert.Equal(t, 0.0, s.AttackRate)
	assert.Equal(t, 0.0, s.SuccessRate)
}

func TestAggregator_CacheServedWithinFreshnessWindow(t *testing.T) {
	a, c := newTestAggregator(nil)
	observe(a, true, false, false)

	first := a.CurrentStats()

	observe(a, false, false, true)
	observe(a, false, false, true)
	c.advance(4 * time.Second)

	second := a.CurrentStats()
	assert.Equal(t, first, second)

	c.advance(2 * time.Second)
	third := a.CurrentStats()
	assert.Equal(t, int64(3), third.TotalAttempts)
	assert.InDelta(t, 1.0/3.0, third.AttackRate, 1e-9)
}

func TestAggregator_CleanViewServedUntilMaxStale(t *testing.T) {
	act := &fakeActivity{users: 1}
	a, c := newTestAggregator(act)

	first := a.CurrentStats()
	act.users = 5

	c.advance(10 * time.Second)
	assert.Equal(t, first, a.CurrentStats(), "no invalidation, view is reused")

	c.advance(time.Minute)
	assert.Equal(t, 5, a.CurrentStats().ActiveUsers)
}

func TestAggregator_DashboardStats(t *testing.T) {
	start := time.Date(2026, 5, 4, 10, 30, 15, 0, time.UTC)
	a, _ := newTestAggregator(&fakeActivity{users: 2, origins: 1, attempts: []time.Time{
		start.Add(-90 * time.Minute),
		start.Add(-30 * time.Minute),
		start.Add(-time.Minute),
	}})
	observe(a, true, true, false)
	for i := 0; i < 7; i++ {
		observe(a, false, true, true)
	}

	d := a.DashboardStats()

	assert.Equal(t, int64(8), d.TotalRequests)
	assert.Equal(t, "12.50%", d.AttackRate)
	assert.Equal(t, "100.00%", d.ClassifierUsage)
	assert.Equal(t, 1, d.RecentAttacks)
	assert.Equal(t, 2, d.AttemptsLastHour)
	assert.Equal(t, "10:30:15", d.LastUpdate)
}

func TestAggregator_RecentAttacks(t *testing.T) {
	a, _ := newTestAggregator(nil)
	for i := 0; i < RecentCapacity+20; i++ {
		a.Observe(models.DetectionSnapshot{
			DetectionResult: models.DetectionResult{IsAttack: i%2 == 0},
			Email:           string(rune('a' + i%26)),
		})
	}

	all := a.RecentAttacks(0)
	assert.Len(t, all, RecentCapacity/2)

	last := a.RecentAttacks(3)
	require.Len(t, last, 3)
	assert.Equal(t, all[len(all)-1], last[2])
}

func TestAggregator_Reset(t *testing.T) {
	a, c := newTestAggregator(nil)
	observe(a, true, true, true)
	a.CurrentStats()

	c.advance(time.Hour)
	a.Reset()

	s := a.CurrentStats()
	assert.Equal(t, int64(0), s.TotalAttempts)
	assert.Equal(t, 0, s.RecentResults)
	assert.Equal(t, c.t, s.LastReset)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "0.00%", Percent(0))
	assert.Equal(t, "33.33%", Percent(1.0/3.0))
}
