package calendar

import (
	"sync"
	"time"

	"companion/internal/model"
)

// MonthCache keeps fetched month views keyed by "YYYY-MM". Writes to the
// underlying events or tasks must Invalidate the affected key.
//
// Each key carries a generation that moves on Invalidate and Clear. A load
// that started before an invalidation stores its result with PutIfCurrent,
// so it cannot overwrite what a later load fetched.
type MonthCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]monthEntry
	gens    map[string]uint64
	epoch   uint64
}

type monthEntry struct {
	view      model.MonthView
	updatedAt time.Time
}

// NewMonthCache creates a cache. A zero ttl keeps entries until they are
// invalidated.
func NewMonthCache(ttl time.Duration) *MonthCache {
	return &MonthCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]monthEntry),
		gens:    make(map[string]uint64),
	}
}

// Get returns a fresh entry for key.
func (c *MonthCache) Get(key string) (model.MonthView, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return model.MonthView{}, false
	}
	if c.ttl > 0 && c.now().Sub(e.updatedAt) >= c.ttl {
		return model.MonthView{}, false
	}
	return e.view, true
}

func (c *MonthCache) Put(key string, view model.MonthView) {
	c.mu.Lock()
	c.entries[key] = monthEntry{view: view, updatedAt: c.now()}
	c.mu.Unlock()
}

// Generation returns the current generation of key. Pass it to PutIfCurrent
// once the fetch it guards has finished.
func (c *MonthCache) Generation(key string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch + c.gens[key]
}

// PutIfCurrent stores view unless key was invalidated after gen was taken.
func (c *MonthCache) PutIfCurrent(key string, view model.MonthView, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch+c.gens[key] != gen {
		return false
	}
	c.entries[key] = monthEntry{view: view, updatedAt: c.now()}
	return true
}

// Invalidate drops key so the next load goes to the network.
func (c *MonthCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.gens[key]++
	c.mu.Unlock()
}

func (c *MonthCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]monthEntry)
	c.epoch++
	c.mu.Unlock()
}

// Views returns every cached month, fresh or not.
func (c *MonthCache) Views() []model.MonthView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.MonthView, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.view)
	}
	return out
}

func (c *MonthCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
