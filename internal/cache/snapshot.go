package cache

import (
	"context"
	"sync"
	"time"

	"github.com/soundlens/go-spotify-soundlens/internal/db"
)

// DefaultSnapshotTTL bounds how stale a served top list can be between
// syncs.
const DefaultSnapshotTTL = 15 * time.Minute

type snapshotKey struct {
	userID    string
	kind      db.EntityKind
	timeRange db.TimeRange
}

type snapshotEntry struct {
	entities []db.TopEntity
	expires  time.Time
}

// SnapshotCache is an explicit TTL cache for top-entity snapshot reads,
// keyed by (user, kind, time range). All state lives on the struct; there
// are no package-level caches.
type SnapshotCache struct {
	mu      sync.RWMutex
	entries map[snapshotKey]snapshotEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewSnapshotCache creates a cache with the given TTL. A non-positive TTL
// falls back to DefaultSnapshotTTL.
func NewSnapshotCache(ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &SnapshotCache{
		entries: make(map[snapshotKey]snapshotEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached snapshot, or ok=false on a miss or expired entry.
func (c *SnapshotCache) Get(userID string, kind db.EntityKind, tr db.TimeRange) ([]db.TopEntity, bool) {
	key := snapshotKey{userID: userID, kind: kind, timeRange: tr}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expires) {
		return nil, false
	}
	return entry.entities, true
}

// Set stores a snapshot under the cache TTL.
func (c *SnapshotCache) Set(userID string, kind db.EntityKind, tr db.TimeRange, entities []db.TopEntity) {
	key := snapshotKey{userID: userID, kind: kind, timeRange: tr}

	c.mu.Lock()
	c.entries[key] = snapshotEntry{entities: entities, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// InvalidateUser drops every cached snapshot for a user.
func (c *SnapshotCache) InvalidateUser(userID string) {
	c.mu.Lock()
	for key := range c.entries {
		if key.userID == userID {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// Notify implements Invalidator, so the local cache can sit alongside the
// webhook in a Multi.
func (c *SnapshotCache) Notify(_ context.Context, userID string) error {
	c.InvalidateUser(userID)
	return nil
}
