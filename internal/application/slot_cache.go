package application

import (
	"sync"
	"time"

	"github.com/example/portal-scheduler/internal/scheduler"
)

// slotCache stores recently generated slot lists per date so repeated
// date-picker queries do not reload the policy and the day's meetings while
// nothing has changed. It is cleared whenever a refresh is published or the
// policy is saved.
type slotCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]slotCacheEntry
}

type slotCacheEntry struct {
	list      SlotList
	expiresAt time.Time
}

func newSlotCache(ttl time.Duration, maxEntries int, now func() time.Time) *slotCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 128
	}
	if now == nil {
		now = time.Now
	}
	return &slotCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]slotCacheEntry),
	}
}

func (c *slotCache) Get(key string) (SlotList, bool) {
	if c == nil {
		return SlotList{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return SlotList{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return SlotList{}, false
	}
	return cloneSlotList(entry.list), true
}

func (c *slotCache) Store(key string, list SlotList) {
	if c == nil {
		return
	}
	cloned := cloneSlotList(list)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = slotCacheEntry{list: cloned, expiresAt: expiry}
}

func (c *slotCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]slotCacheEntry)
	c.mu.Unlock()
}

func (c *slotCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *slotCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *slotCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}

func cloneSlotList(list SlotList) SlotList {
	out := list
	if len(list.Slots) == 0 {
		out.Slots = nil
		return out
	}
	out.Slots = make([]scheduler.TimeSlot, len(list.Slots))
	copy(out.Slots, list.Slots)
	return out
}
