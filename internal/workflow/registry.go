package workflow

import (
	"sort"
	"sync"
	"time"
)

const timedOutHistory = 50

// WatchEntry tracks a relocated record whose processed artifact is awaited.
type WatchEntry struct {
	RecordID      int64     `json:"record_id"`
	ExternalKey   string    `json:"external_key"`
	SubIdentifier string    `json:"sub_identifier"`
	ExpectedPath  string    `json:"expected_path"`
	RegisteredAt  time.Time `json:"registered_at"`
	Rejections    int       `json:"rejections"`
}

// Registry holds at most one watch entry per record id. Registering an id
// again replaces the previous entry.
type Registry struct {
	mu       sync.Mutex
	entries  map[int64]WatchEntry
	timedOut []WatchEntry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int64]WatchEntry)}
}

// Register adds or replaces the entry for entry.RecordID.
func (r *Registry) Register(entry WatchEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.RecordID] = entry
}

// Get returns the entry for id.
func (r *Registry) Get(id int64) (WatchEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	return entry, ok
}

// Remove drops the entry for id only if it is still the registration that
// was observed (same RegisteredAt), so a concurrent re-registration survives.
func (r *Registry) Remove(entry WatchEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.entries[entry.RecordID]
	if !ok || !current.RegisteredAt.Equal(entry.RegisteredAt) {
		return false
	}
	delete(r.entries, entry.RecordID)
	return true
}

// Expire removes entry like Remove and remembers it as timed out.
func (r *Registry) Expire(entry WatchEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.entries[entry.RecordID]
	if !ok || !current.RegisteredAt.Equal(entry.RegisteredAt) {
		return false
	}
	delete(r.entries, entry.RecordID)
	r.timedOut = append(r.timedOut, current)
	if len(r.timedOut) > timedOutHistory {
		r.timedOut = r.timedOut[len(r.timedOut)-timedOutHistory:]
	}
	return true
}

// noteRejection increments the rejection count and returns the new value.
func (r *Registry) noteRejection(id int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return 0
	}
	entry.Rejections++
	r.entries[id] = entry
	return entry.Rejections
}

// Snapshot returns the current entries ordered by registration time.
func (r *Registry) Snapshot() []WatchEntry {
	r.mu.Lock()
	out := make([]WatchEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RecordID < out[j].RecordID
		}
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out
}

// TimedOut returns recently expired entries, newest last.
func (r *Registry) TimedOut() []WatchEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]WatchEntry(nil), r.timedOut...)
}

// Len returns the number of awaited artifacts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
