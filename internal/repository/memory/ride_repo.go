package memory

import (
	"context"

	"booking/internal/domain/entities"
	"booking/internal/repository"
)

// RideRepository stores rides in memory. It includes query methods for finding
// rides by rider or driver, and for checking if a rider has an active ride.
type RideRepository struct {
	*Registry[entities.Ride]
}

var _ repository.RideRepository = (*RideRepository)(nil)

func NewRideRepository() *RideRepository {
	return &RideRepository{Registry: NewRegistry[entities.Ride]("ride")}
}

// ByRider returns all rides for a given rider (history + active).
// This is an O(n) scan; an index by rider would replace it at scale.
func (r *RideRepository) ByRider(ctx context.Context, riderID string) []entities.Ride {
	return filter(ctx, r.Registry, func(ride entities.Ride) bool {
		return ride.RiderID == riderID
	})
}

func (r *RideRepository) ByDriver(ctx context.Context, driverID string) []entities.Ride {
	return filter(ctx, r.Registry, func(ride entities.Ride) bool {
		return ride.DriverID == driverID
	})
}

// ActiveByRider returns the rider's ride in a non-terminal state.
//
// Go Learning Note (Multiple Return Values):
// Returning (zero, false) means "no active ride, and that's not an error."
// Having no active ride is the normal case, so it is reported with the
// comma-ok form rather than with ErrNotFound.
func (r *RideRepository) ActiveByRider(ctx context.Context, riderID string) (entities.Ride, bool) {
	return first(ctx, r.Registry, func(ride entities.Ride) bool {
		return ride.RiderID == riderID && ride.IsActive()
	})
}
