package tracker

import (
	"sync"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/pkg/ring"
)

// Scope selects which keyed history a query reads
type Scope int

const (
	ScopeUser Scope = iota
	ScopeOrigin
)

func (s Scope) String() string {
	if s == ScopeOrigin {
		return "origin"
	}
	return "user"
}

// History capacities
const (
	UserCapacity   = 50
	OriginCapacity = 100
	GlobalCapacity = 10000
)

type history struct {
	mu     sync.Mutex
	events *ring.Buffer[models.ActivityEvent]
}

func newHistory(capacity int) *history {
	return &history{events: ring.New[models.ActivityEvent](capacity)}
}

func (h *history) push(ev models.ActivityEvent) {
	h.mu.Lock()
	h.events.Push(ev)
	h.mu.Unlock()
}

func (h *history) snapshot() []models.ActivityEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events.Items()
}

// evictBefore drops entries older than cutoff and reports whether the history is now empty
func (h *history) evictBefore(cutoff time.Time) (dropped int, empty bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	dropped = h.events.Retain(func(ev models.ActivityEvent) bool {
		return !ev.Timestamp.Before(cutoff)
	})
	return dropped, h.events.Len() == 0
}

func (h *history) empty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events.Len() == 0
}

// SweepResult summarizes one time-window sweep
type SweepResult struct {
	EntriesDropped      int
	UserKeysRemoved     int
	OriginKeysRemoved   int
	UserKeysRemaining   int
	OriginKeysRemaining int
}

// Tracker keeps bounded activity histories per identity, per origin and globally.
// The key maps are guarded by mu; each history serializes its own mutations, so
// appends to different keys do not contend. A key is only deleted under the
// exclusive map lock after re-checking that its history is still empty.
type Tracker struct {
	mu      sync.RWMutex
	users   map[string]*history
	origins map[string]*history
	global  *history
}

// New creates an empty Tracker
func New() *Tracker {
	return &Tracker{
		users:   make(map[string]*history),
		origins: make(map[string]*history),
		global:  newHistory(GlobalCapacity),
	}
}

// IdentityKey returns the per-user key for an attempt: the user id when known, else the email
func IdentityKey(rec models.AttemptRecord) string {
	if rec.UserID != "" {
		return rec.UserID
	}
	return rec.Email
}

// Record appends the attempt to the identity, origin and global histories
func (t *Tracker) Record(rec models.AttemptRecord) {
	ev := rec.ActivityEvent()
	t.append(t.users, IdentityKey(rec), UserCapacity, ev)
	t.append(t.origins, rec.IPAddress, OriginCapacity, ev)
	t.global.push(ev)
}

func (t *Tracker) append(m map[string]*history, key string, capacity int, ev models.ActivityEvent) {
	if key == "" {
		return
	}

	// the read lock is held across the push so a sweep cannot delete the key mid-append
	t.mu.RLock()
	if h, ok := m[key]; ok {
		h.push(ev)
		t.mu.RUnlock()
		return
	}
	t.mu.RUnlock()

	t.mu.Lock()
	h, ok := m[key]
	if !ok {
		h = newHistory(capacity)
		m[key] = h
	}
	h.push(ev)
	t.mu.Unlock()
}

// Query returns a copy of the history for key in the given scope, oldest first
func (t *Tracker) Query(key string, scope Scope) []models.ActivityEvent {
	t.mu.RLock()
	h, ok := t.mapFor(scope)[key]
	t.mu.RUnlock()
	if !ok {
		return []models.ActivityEvent{}
	}
	return h.snapshot()
}

// CountSince counts entries for key recorded at or after since
func (t *Tracker) CountSince(key string, scope Scope, since time.Time) int {
	return countSince(t.Query(key, scope), since)
}

func countSince(events []models.ActivityEvent, since time.Time) int {
	n := 0
	for _, ev := range events {
		if !ev.Timestamp.Before(since) {
			n++
		}
	}
	return n
}

// Global returns a copy of the unscoped recent history, oldest first
func (t *Tracker) Global() []models.ActivityEvent {
	return t.global.snapshot()
}

// AttemptsSince counts global history entries recorded at or after since.
// The global history is capacity bounded, so the count saturates at GlobalCapacity.
func (t *Tracker) AttemptsSince(since time.Time) int {
	return countSince(t.Global(), since)
}

// ActiveUsers returns the number of identity keys currently tracked
func (t *Tracker) ActiveUsers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.users)
}

// ActiveOrigins returns the number of origin keys currently tracked
func (t *Tracker) ActiveOrigins() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.origins)
}

// Sweep drops entries older than now-window from the identity and origin
// histories and removes keys left empty.
func (t *Tracker) Sweep(now time.Time, window time.Duration) SweepResult {
	cutoff := now.Add(-window)
	var res SweepResult

	droppedUsers, emptyUsers := t.evict(t.users, cutoff)
	droppedOrigins, emptyOrigins := t.evict(t.origins, cutoff)
	res.EntriesDropped = droppedUsers + droppedOrigins

	t.mu.Lock()
	res.UserKeysRemoved = removeEmpty(t.users, emptyUsers)
	res.OriginKeysRemoved = removeEmpty(t.origins, emptyOrigins)
	res.UserKeysRemaining = len(t.users)
	res.OriginKeysRemaining = len(t.origins)
	t.mu.Unlock()

	return res
}

func (t *Tracker) evict(m map[string]*history, cutoff time.Time) (int, []string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	dropped := 0
	var empty []string
	for key, h := range m {
		n, isEmpty := h.evictBefore(cutoff)
		dropped += n
		if isEmpty {
			empty = append(empty, key)
		}
	}
	return dropped, empty
}

// removeEmpty must be called with the write lock held
func removeEmpty(m map[string]*history, keys []string) int {
	removed := 0
	for _, key := range keys {
		if h, ok := m[key]; ok && h.empty() {
			delete(m, key)
			removed++
		}
	}
	return removed
}

func (t *Tracker) mapFor(scope Scope) map[string]*history {
	if scope == ScopeOrigin {
		return t.origins
	}
	return t.users
}
