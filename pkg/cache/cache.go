package cache

import (
	"sort"
	"sync"
	"time"

	"msgledger/pkg/models"
	"msgledger/pkg/telemetry"
)

// entry wraps a record with its insertion sequence number. StoredAt has
// millisecond resolution, so a burst of inserts can share a timestamp;
// the sequence breaks those ties deterministically.
type entry struct {
	rec models.ActiveMessage
	seq uint64
}

// olderThan orders entries by StoredAt, then by insertion sequence.
func (e entry) olderThan(o entry) bool {
	if e.rec.StoredAt != o.rec.StoredAt {
		return e.rec.StoredAt < o.rec.StoredAt
	}
	return e.seq < o.seq
}

// Cache is the bounded, TTL-evicting store of in-flight message records,
// keyed by message id. It is inherently ephemeral: it never persists and
// is always empty at startup.
type Cache struct {
	mu       sync.RWMutex
	m        map[string]entry
	seq      uint64
	capacity int
	ttl      time.Duration
}

func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{m: make(map[string]entry), capacity: capacity, ttl: ttl}
}

// Put inserts or replaces a record. An insert never fails: when the cache
// is at capacity, room is made first by evicting the oldest records. The
// common case evicts at most one entry; a burst pays one sort of the
// current entries by age.
func (c *Cache) Put(rec models.ActiveMessage) {
	if rec.ID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.makeRoom(rec.ID)
	c.seq++
	c.m[rec.ID] = entry{rec: rec, seq: c.seq}
	telemetry.CacheSize.Set(float64(len(c.m)))
}

// PutIfAbsent inserts only when no record exists for the id. Snapshot
// seeding uses this so a snapshot-sourced record never overwrites a
// live-sourced one. Reports whether the record was inserted.
func (c *Cache) PutIfAbsent(rec models.ActiveMessage) bool {
	if rec.ID == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[rec.ID]; ok {
		return false
	}
	c.makeRoom(rec.ID)
	c.seq++
	c.m[rec.ID] = entry{rec: rec, seq: c.seq}
	telemetry.CacheSize.Set(float64(len(c.m)))
	return true
}

// Get returns a copy of the record for id, if present.
func (c *Cache) Get(id string) (models.ActiveMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.m[id]
	return e.rec, ok
}

// Delete removes the record for id. Removal due to an observed deletion
// event, distinct from eviction.
func (c *Cache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, id)
	telemetry.CacheSize.Set(float64(len(c.m)))
}

// EvictExpired removes every record older than TTL relative to now,
// regardless of capacity, and returns the number evicted. Run on a fixed
// period; idempotent and safe to skip or overlap.
func (c *Cache) EvictExpired(now time.Time) int {
	cutoff := now.Add(-c.ttl).UnixMilli()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.m {
		if e.rec.StoredAt < cutoff {
			delete(c.m, id)
			n++
		}
	}
	if n > 0 {
		telemetry.CacheEvictions.WithLabelValues("ttl").Add(float64(n))
		telemetry.CacheSize.Set(float64(len(c.m)))
	}
	return n
}

// makeRoom evicts the oldest entries until one more record fits. Caller
// holds the write lock. Replacing an existing id needs no room.
func (c *Cache) makeRoom(id string) {
	if _, ok := c.m[id]; ok {
		return
	}
	need := len(c.m) - c.capacity + 1
	if need <= 0 {
		return
	}
	if need == 1 {
		// common case: single linear scan for the oldest entry
		oldest := ""
		var oldestE entry
		for k, e := range c.m {
			if oldest == "" || e.olderThan(oldestE) {
				oldest = k
				oldestE = e
			}
		}
		if oldest != "" {
			delete(c.m, oldest)
			telemetry.CacheEvictions.WithLabelValues("capacity").Inc()
		}
		return
	}
	// burst: sort current entries by age and drop the oldest `need`
	type aged struct {
		id string
		e  entry
	}
	all := make([]aged, 0, len(c.m))
	for k, e := range c.m {
		all = append(all, aged{k, e})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].e.olderThan(all[j].e) })
	for i := 0; i < need && i < len(all); i++ {
		delete(c.m, all[i].id)
		telemetry.CacheEvictions.WithLabelValues("capacity").Inc()
	}
}

// Len returns the current record count.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// Snapshot returns a copy of all resident records, newest first. Records
// stored in the same millisecond order by insertion, newest first.
func (c *Cache) Snapshot() []models.ActiveMessage {
	c.mu.RLock()
	all := make([]entry, 0, len(c.m))
	for _, e := range c.m {
		all = append(all, e)
	}
	c.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[j].olderThan(all[i]) })
	out := make([]models.ActiveMessage, 0, len(all))
	for _, e := range all {
		out = append(out, e.rec)
	}
	return out
}
