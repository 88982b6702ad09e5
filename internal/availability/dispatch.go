package availability

import (
	"context"

	"booking/internal/domain/entities"
	"booking/internal/repository"
)

// Candidate is a driver that could serve a pickup.
type Candidate struct {
	Driver     entities.Driver
	DistanceKm float64
}

// Dispatch finds drivers for pickups.
type Dispatch struct {
	drivers repository.DriverRepository
}

func NewDispatch(drivers repository.DriverRepository) *Dispatch {
	return &Dispatch{drivers: drivers}
}

// Nearest returns the closest available driver of the requested class that
// has reported a position. Available lists drivers in registration order and a
// candidate only replaces the current best when strictly closer, so among
// equally distant drivers the earliest registered wins. ok is false when
// nobody qualifies.
//
// Go Learning Note (Linear Scan vs Index):
// The geohash SpatialIndex answers "who is within r km" quickly, but the
// nearest driver may be outside any fixed radius, and the tie-break needs
// registration order. A single pass over the registry snapshot gives both
// guarantees; it is O(drivers), which is fine for one city's fleet.
func (d *Dispatch) Nearest(ctx context.Context, from entities.Location, class entities.VehicleClass) (Candidate, bool) {
	var (
		best  Candidate
		found bool
	)
	for _, drv := range d.drivers.Available(ctx, class) {
		if drv.Location == nil {
			continue
		}
		dist := from.DistanceTo(*drv.Location)
		if !found || dist < best.DistanceKm {
			best = Candidate{Driver: drv, DistanceKm: dist}
			found = true
		}
	}
	return best, found
}
