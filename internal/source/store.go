package source

import (
	"sync"
	"time"

	"evcal/internal/model"
)

// Store holds the current merged event snapshot in memory. The web layer
// reads snapshots; the refresh loop replaces them wholesale. Version
// increases on every replace so responses can be cached per
// (version, view, date) without TTL guessing.
type Store struct {
	mu       sync.RWMutex
	events   []model.Event
	skipped  int
	version  uint64
	loadedAt time.Time
}

// Snapshot is an immutable view of the store contents.
type Snapshot struct {
	Events   []model.Event
	Skipped  int
	Version  uint64
	LoadedAt time.Time
}

// NewStore returns an empty store at version 0.
func NewStore() *Store {
	return &Store{}
}

// Replace swaps in a new event list. skipped is the number of records the
// ingestion pass dropped as malformed; it is surfaced alongside every
// snapshot so callers can show a partial-data warning.
func (s *Store) Replace(events []model.Event, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = events
	s.skipped = skipped
	s.version++
	s.loadedAt = time.Now()
}

// Snapshot returns the current contents. The returned slice is shared;
// callers must treat it as read-only.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Events:   s.events,
		Skipped:  s.skipped,
		Version:  s.version,
		LoadedAt: s.loadedAt,
	}
}

// Find returns the event with the given ID from the current snapshot.
func (s *Store) Find(id string) (model.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.events {
		if ev.ID == id {
			return ev, true
		}
	}
	return model.Event{}, false
}
