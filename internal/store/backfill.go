package store

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/agresearch/field-dashboard/internal/series"
)

// BackfillStore is a small persisted date→values cache backing the
// forecast-to-history backfill. It is the only cross-session state the
// service keeps; writes are last-write-wins and flushed to a JSON file.
// Entries older than the retention window are evicted on save.
type BackfillStore struct {
	mu        sync.Mutex
	path      string
	retention int // days; <= 0 means keep everything
	entries   map[string]series.BackfillEntry
}

const dateLayout = "2006-01-02"

// NewBackfillStore loads the store from path, starting empty if the file does
// not exist or cannot be parsed.
func NewBackfillStore(path string, retentionDays int) *BackfillStore {
	s := &BackfillStore{
		path:      path,
		retention: retentionDays,
		entries:   make(map[string]series.BackfillEntry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("backfill store: cannot read %s, starting empty: %v", path, err)
		}
		return s
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		log.Printf("backfill store: cannot parse %s, starting empty: %v", path, err)
		s.entries = make(map[string]series.BackfillEntry)
	}
	return s
}

// Get returns the entry stored for a date.
func (s *BackfillStore) Get(date string) (series.BackfillEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[date]
	return e, ok
}

// Put merges the non-nil fields of e into the entry for date and persists.
// Merging keeps a previously observed variable when a later poll only carried
// a subset of variables for the same date.
func (s *BackfillStore) Put(date string, e series.BackfillEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.entries[date]
	if e.EtoMm != nil {
		cur.EtoMm = e.EtoMm
	}
	if e.PrecipMm != nil {
		cur.PrecipMm = e.PrecipMm
	}
	if e.TempMaxC != nil {
		cur.TempMaxC = e.TempMaxC
	}
	if e.TempMinC != nil {
		cur.TempMinC = e.TempMinC
	}
	s.entries[date] = cur

	s.evictLocked(time.Now().UTC())
	s.saveLocked()
}

// Len returns the number of retained entries.
func (s *BackfillStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// evictLocked drops entries older than the retention window, and any keys
// that fail to parse as dates.
func (s *BackfillStore) evictLocked(now time.Time) {
	if s.retention <= 0 {
		return
	}
	cutoff := now.AddDate(0, 0, -s.retention).Format(dateLayout)
	for date := range s.entries {
		if _, err := time.Parse(dateLayout, date); err != nil {
			delete(s.entries, date)
			continue
		}
		if date < cutoff {
			delete(s.entries, date)
		}
	}
}

// saveLocked writes the store atomically. A failed write is logged and
// ignored; serving data matters more than persisting the cache.
func (s *BackfillStore) saveLocked() {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		log.Printf("backfill store: marshal failed: %v", err)
		return
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		log.Printf("backfill store: mkdir failed: %v", err)
		return
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Printf("backfill store: write failed: %v", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		log.Printf("backfill store: rename failed: %v", err)
	}
}

// Dates returns the retained dates in ascending order, mainly for tests and
// diagnostics.
func (s *BackfillStore) Dates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	dates := make([]string, 0, len(s.entries))
	for d := range s.entries {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}
