package tracker

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attempt(userID, ip string, at time.Time) models.AttemptRecord {
	return models.AttemptRecord{
		Email:     "user" + userID + "@example.com",
		UserID:    userID,
		IPAddress: ip,
		Timestamp: at,
	}
}

func TestTracker_UserHistoryIsFIFOCapped(t *testing.T) {
	tr := New()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < UserCapacity+1; i++ {
		tr.Record(attempt("7", fmt.Sprintf("10.0.%d.%d", i/256, i%256), base.Add(time.Duration(i)*time.Second)))
	}

	events := tr.Query("7", ScopeUser)
	require.Len(t, events, UserCapacity)
	assert.Equal(t, base.Add(time.Second), events[0].Timestamp, "oldest entry must be evicted first")
	assert.Equal(t, base.Add(UserCapacity*time.Second), events[len(events)-1].Timestamp)
}

func TestTracker_OriginHistoryIsFIFOCapped(t *testing.T) {
	tr := New()
	base := time.Now()

	for i := 0; i < OriginCapacity+5; i++ {
		tr.Record(attempt(fmt.Sprint(i), "198.51.100.1", base.Add(time.Duration(i)*time.Millisecond)))
	}

	events := tr.Query("198.51.100.1", ScopeOrigin)
	require.Len(t, events, OriginCapacity)
	assert.Equal(t, base.Add(5*time.Millisecond), events[0].Timestamp)
}

func TestTracker_AnonymousAttemptKeyedByEmail(t *testing.T) {
	tr := New()
	rec := models.AttemptRecord{Email: "ghost@example.com", IPAddress: "203.0.113.9", Timestamp: time.Now()}

	tr.Record(rec)

	assert.Len(t, tr.Query("ghost@example.com", ScopeUser), 1)
	assert.Equal(t, 1, tr.ActiveUsers())
	assert.Equal(t, 1, tr.ActiveOrigins())
	assert.Len(t, tr.Global(), 1)
}

func TestTracker_QueryReturnsCopy(t *testing.T) {
	tr := New()
	tr.Record(attempt("1", "203.0.113.1", time.Now()))

	events := tr.Query("1", ScopeUser)
	events[0].Email = "mutated"

	assert.NotEqual(t, "mutated", tr.Query("1", ScopeUser)[0].Email)
	assert.Empty(t, tr.Query("missing", ScopeOrigin))
}

func TestTracker_SweepDropsExpiredAndEmptyKeys(t *testing.T) {
	tr := New()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	window := 2 * time.Minute

	// stale key: all entries older than the window
	tr.Record(attempt("old", "192.0.2.1", now.Add(-5*time.Minute)))
	tr.Record(attempt("old", "192.0.2.1", now.Add(-3*time.Minute)))
	// mixed key
	tr.Record(attempt("mixed", "192.0.2.2", now.Add(-4*time.Minute)))
	tr.Record(attempt("mixed", "192.0.2.2", now.Add(-30*time.Second)))

	res := tr.Sweep(now, window)

	assert.Equal(t, 1, res.UserKeysRemoved)
	assert.Equal(t, 1, res.OriginKeysRemoved)
	assert.Equal(t, 6, res.EntriesDropped)
	assert.Equal(t, 1, tr.ActiveUsers())
	assert.Equal(t, 1, tr.ActiveOrigins())
	assert.Empty(t, tr.Query("old", ScopeUser))

	for _, scope := range []Scope{ScopeUser, ScopeOrigin} {
		for _, key := range []string{"mixed", "192.0.2.2"} {
			for _, ev := range tr.Query(key, scope) {
				assert.LessOrEqual(t, now.Sub(ev.Timestamp), window)
			}
		}
	}
	assert.Len(t, tr.Global(), 4, "global history is only capacity bounded")
}

func TestTracker_CountSince(t *testing.T) {
	tr := New()
	now := time.Now()
	for i := 0; i < 5; i++ {
		tr.Record(attempt("1", "203.0.113.5", now.Add(-time.Duration(i)*time.Minute)))
	}

	assert.Equal(t, 3, tr.CountSince("203.0.113.5", ScopeOrigin, now.Add(-2*time.Minute)))
}

func TestTracker_AttemptsSinceReadsGlobalHistory(t *testing.T) {
	tr := New()
	now := time.Now()
	tr.Record(attempt("1", "203.0.113.5", now.Add(-2*time.Hour)))
	tr.Record(attempt("2", "203.0.113.6", now.Add(-10*time.Minute)))
	tr.Record(attempt("", "203.0.113.7", now))

	// swept keys do not affect the global count
	tr.Sweep(now, 5*time.Minute)

	assert.Equal(t, 2, tr.AttemptsSince(now.Add(-time.Hour)))
	assert.Equal(t, 3, tr.AttemptsSince(now.Add(-3*time.Hour)))
}

func TestTracker_ConcurrentRecordAndSweep(t *testing.T) {
	tr := New()
	now := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				tr.Record(attempt(fmt.Sprint(w), fmt.Sprintf("10.0.0.%d", i%20), now))
			}
		}(w)
	}

	stop := make(chan struct{})
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		for {
			select {
			case <-stop:
				return
			default:
				tr.Sweep(now, time.Minute)
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-sweeperDone

	assert.Equal(t, 8, tr.ActiveUsers())
	assert.Equal(t, 20, tr.ActiveOrigins())
	for w := 0; w < 8; w++ {
		assert.Len(t, tr.Query(fmt.Sprint(w), ScopeUser), UserCapacity)
	}
}
