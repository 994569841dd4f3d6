// Package aoa holds the angle-of-arrival core: the per-anchor reading store,
// the +UUDF report parser and the two-anchor triangulation engine.
package aoa

import (
	"encoding/json"
	"sync"
	"time"
)

// AnchorReading is the latest angle pair reported by one anchor.
// It is replaced wholesale on every accepted report.
type AnchorReading struct {
	AzimuthDeg   float64
	ElevationDeg float64
	Timestamp    time.Time
}

type anchorReadingJSON struct {
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
	Timestamp float64 `json:"timestamp"` // unix seconds
}

// MarshalJSON encodes the reading with the timestamp as fractional unix seconds.
func (r AnchorReading) MarshalJSON() ([]byte, error) {
	return json.Marshal(anchorReadingJSON{
		Azimuth:   r.AzimuthDeg,
		Elevation: r.ElevationDeg,
		Timestamp: float64(r.Timestamp.UnixNano()) / 1e9,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *AnchorReading) UnmarshalJSON(b []byte) error {
	var v anchorReadingJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	r.AzimuthDeg = v.Azimuth
	r.ElevationDeg = v.Elevation
	r.Timestamp = time.Unix(0, int64(v.Timestamp*1e9))
	return nil
}

// Snapshot is a point-in-time copy of the store keyed by anchor id.
type Snapshot map[string]AnchorReading

// Store keeps exactly one reading per anchor id. It does not validate ids
// against the configured anchor pair; that is the caller's business.
type Store struct {
	mu       sync.RWMutex
	readings map[string]AnchorReading
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{readings: make(map[string]AnchorReading)}
}

// Update replaces the reading held for anchorID.
func (s *Store) Update(anchorID string, azimuthDeg, elevationDeg float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[anchorID] = AnchorReading{
		AzimuthDeg:   azimuthDeg,
		ElevationDeg: elevationDeg,
		Timestamp:    ts,
	}
}

// Get returns the reading for anchorID, if one has been received.
func (s *Store) Get(anchorID string) (AnchorReading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.readings[anchorID]
	return r, ok
}

// Snapshot returns a copy of every stored reading. The returned map is owned
// by the caller.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Snapshot, len(s.readings))
	for id, r := range s.readings {
		out[id] = r
	}
	return out
}

// Pair returns the readings for two anchors under a single read lock so both
// come from the same instant.
func (s *Store) Pair(id1, id2 string) (r1 AnchorReading, ok1 bool, r2 AnchorReading, ok2 bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r1, ok1 = s.readings[id1]
	r2, ok2 = s.readings[id2]
	return
}

// Len returns the number of anchors with a stored reading.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}
