package ledger

import (
	"sync"

	"github.com/BradenHooton/loginguard/pkg/ring"
)

const dedupCapacity = 10000

// dedup remembers the transaction ids of the most recent record keys
type dedup struct {
	mu    sync.Mutex
	byKey map[string]string
	order *ring.Buffer[string]
}

func newDedup(capacity int) *dedup {
	return &dedup{
		byKey: make(map[string]string, capacity),
		order: ring.New[string](capacity),
	}
}

func (d *dedup) get(key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tx, ok := d.byKey[key]
	return tx, ok
}

func (d *dedup) put(key, tx string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byKey[key]; ok {
		return
	}
	if d.order.Len() == d.order.Cap() {
		delete(d.byKey, d.order.At(0))
	}
	d.order.Push(key)
	d.byKey[key] = tx
}
