package memory

import (
	"context"

	"booking/internal/domain/entities"
	"booking/internal/repository"
)

// DriverRepository keeps drivers in registration order, which is also the
// tie-break order used by nearest-driver matching.
type DriverRepository struct {
	*Registry[entities.Driver]
}

var _ repository.DriverRepository = (*DriverRepository)(nil)

func NewDriverRepository() *DriverRepository {
	return &DriverRepository{Registry: NewRegistry[entities.Driver]("driver")}
}

// Available returns the drivers that could take a ride of the given class
// right now. An empty class matches every class.
func (r *DriverRepository) Available(ctx context.Context, class entities.VehicleClass) []entities.Driver {
	return filter(ctx, r.Registry, func(d entities.Driver) bool {
		return d.IsAvailable() && (class == "" || d.Vehicle.Class == class)
	})
}
