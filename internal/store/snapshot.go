package store

import (
	"errors"
	"sync"
	"time"

	"github.com/agresearch/field-dashboard/internal/series"
)

var (
	// ErrNotFound is returned when no data has been cached for a key.
	ErrNotFound = errors.New("no cached data for key")
)

// snapshotEntry pairs cached sensor data with its fetch time.
type snapshotEntry struct {
	data      series.SensorData
	fetchedAt time.Time
}

// SnapshotCache is a concurrency-safe TTL cache for per-device sensor data.
// Stale entries are kept past their TTL so callers can fall back to the last
// good payload when the upstream API is rate limited or down.
type SnapshotCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]snapshotEntry
}

// NewSnapshotCache creates a cache whose entries are considered fresh for ttl.
func NewSnapshotCache(ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		ttl:     ttl,
		entries: make(map[string]snapshotEntry),
	}
}

// Put stores data for key, replacing any previous entry.
func (c *SnapshotCache) Put(key string, data series.SensorData) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = snapshotEntry{data: data, fetchedAt: time.Now()}
}

// Get returns the cached data for key and whether it is still within its TTL.
// Stale entries are returned with fresh=false rather than dropped.
func (c *SnapshotCache) Get(key string) (data series.SensorData, fresh bool, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, ErrNotFound
	}
	return e.data, time.Since(e.fetchedAt) < c.ttl, nil
}
