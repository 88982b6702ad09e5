package geo

import (
	"sort"
	"sync"
	"time"

	"booking/internal/domain/entities"
)

// Nearby pairs a driver position with its distance from a search point.
type Nearby struct {
	entities.DriverLocation
	DistanceKm float64 `json:"distance_km"`
}

// SpatialIndex keeps the last known position of each driver bucketed by
// geohash cell, so a radius query only has to look at the cells covering the
// circle instead of every driver in the system.
//
// Go Learning Note (sync.RWMutex):
// RWMutex provides read-write locking. Multiple goroutines can hold a read
// lock simultaneously (RLock), but a write lock (Lock) is exclusive. The index
// is queried on every ride request but only written on location pings, so
// readers should not serialize behind each other.
//
// Go Learning Note (Nested Maps):
// cells is map[string]map[string]entities.DriverLocation: geohash → driverID
// → position. byDriver is the reverse index (driverID → geohash) so a moving
// driver is found in O(1) instead of by scanning every cell.
type SpatialIndex struct {
	mu        sync.RWMutex
	precision int
	cells     map[string]map[string]entities.DriverLocation
	byDriver  map[string]string
}

// NewSpatialIndex creates an empty spatial index with the given geohash precision.
func NewSpatialIndex(precision int) *SpatialIndex {
	return &SpatialIndex{
		precision: clampPrecision(precision),
		cells:     make(map[string]map[string]entities.DriverLocation),
		byDriver:  make(map[string]string),
	}
}

// Update records a driver's position, moving it between cells if needed.
//
// Go Learning Note (defer):
// `defer s.mu.Unlock()` runs the unlock however the function returns,
// including on panic. It is the idiomatic pairing for any acquire/release.
func (s *SpatialIndex) Update(driverID string, loc entities.Location, at time.Time) entities.DriverLocation {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := Encode(loc.Latitude, loc.Longitude, s.precision)
	s.removeLocked(driverID)

	dl := entities.NewDriverLocation(driverID, loc, hash, at)
	cell, exists := s.cells[hash]
	if !exists {
		cell = make(map[string]entities.DriverLocation)
		s.cells[hash] = cell
	}
	cell[driverID] = dl
	s.byDriver[driverID] = hash
	return dl
}

// Remove drops a driver, e.g. when it goes offline.
func (s *SpatialIndex) Remove(driverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(driverID)
}

func (s *SpatialIndex) removeLocked(driverID string) {
	hash, exists := s.byDriver[driverID]
	if !exists {
		return
	}
	delete(s.byDriver, driverID)
	cell := s.cells[hash]
	delete(cell, driverID)
	if len(cell) == 0 {
		delete(s.cells, hash)
	}
}

func (s *SpatialIndex) Get(driverID string) (entities.DriverLocation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hash, exists := s.byDriver[driverID]
	if !exists {
		return entities.DriverLocation{}, false
	}
	return s.cells[hash][driverID], true
}

// WithinRadius returns every indexed driver no further than radiusKm from
// `from`, nearest first. Equal distances are ordered by driver id so the
// result is deterministic.
//
// Strategy: coarse filter on the cells from Cover, then the exact haversine
// distance per candidate. When the circle is too large for Cover, every
// cell is scanned.
//
// Go Learning Note (sort.Slice):
// sort.Slice sorts in place with a less function over indices. It is not
// stable, which is why the comparison falls back to the driver id.
func (s *SpatialIndex) WithinRadius(from entities.Location, radiusKm float64) []Nearby {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Nearby{}
	if radiusKm < 0 {
		return out
	}
	collect := func(cell map[string]entities.DriverLocation) {
		for _, dl := range cell {
			if d := from.DistanceTo(dl.Location); d <= radiusKm {
				out = append(out, Nearby{DriverLocation: dl, DistanceKm: d})
			}
		}
	}

	if hashes, ok := Cover(from.Latitude, from.Longitude, radiusKm, s.precision); ok {
		for _, h := range hashes {
			collect(s.cells[h])
		}
	} else {
		for _, cell := range s.cells {
			collect(cell)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].DriverID < out[j].DriverID
	})
	return out
}

// Count returns the total number of drivers in the index.
func (s *SpatialIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byDriver)
}
