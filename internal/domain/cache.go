package domain

import "encoding/json"

// CacheEntry is one row of the fingerprint cache. A nil Coords is a confirmed
// negative: resolution was attempted and failed, and it is never retried.
type CacheEntry struct {
	Key      string
	Coords   *Coordinates
	Provider string
	Raw      json.RawMessage
}

// CoordinateUpdate writes a resolved pair back to an address row.
type CoordinateUpdate struct {
	ID  int64   `json:"id"`
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// CacheSnapshot is the in-memory view of the fingerprint cache owned by a
// single run. Record updates the view and stages the entry for the final
// upsert; nothing reaches durable storage until the run commits.
type CacheSnapshot struct {
	entries map[string]*Coordinates
	staged  map[string]int
	order   []CacheEntry
}

// NewCacheSnapshot wraps a bulk-loaded key → coordinates mapping. Keys with
// nil values are negative entries.
func NewCacheSnapshot(entries map[string]*Coordinates) *CacheSnapshot {
	if entries == nil {
		entries = make(map[string]*Coordinates)
	}
	return &CacheSnapshot{
		entries: entries,
		staged:  make(map[string]int),
	}
}

// Lookup returns the cached coordinates for key. ok is false when the key was
// never attempted; ok with nil coords is a negative entry.
func (s *CacheSnapshot) Lookup(key string) (coords *Coordinates, ok bool) {
	coords, ok = s.entries[key]
	return coords, ok
}

// Len returns the number of keys in the snapshot.
func (s *CacheSnapshot) Len() int {
	return len(s.entries)
}

// Record stores the outcome for key and stages it for upsert. A later Record
// for the same key replaces the staged entry in place.
func (s *CacheSnapshot) Record(key, provider string, res Resolution) {
	s.entries[key] = res.Coords

	entry := CacheEntry{
		Key:      key,
		Coords:   res.Coords,
		Provider: provider,
		Raw:      res.Raw,
	}
	if i, ok := s.staged[key]; ok {
		s.order[i] = entry
		return
	}
	s.staged[key] = len(s.order)
	s.order = append(s.order, entry)
}

// Staged returns the entries recorded during the run, unique per key, in
// first-recorded order.
func (s *CacheSnapshot) Staged() []CacheEntry {
	return s.order
}
