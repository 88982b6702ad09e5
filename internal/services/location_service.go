package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"booking/internal/domain/entities"
	"booking/internal/geo"
	"booking/internal/repository"
	"booking/internal/repository/memory"
)

// LocationService owns driver positions. The registry copy of the driver is
// what matching reads; the spatial index is what radius searches read. Both
// are written under the driver's lock so they never disagree for long.
type LocationService struct {
	spatial *geo.SpatialIndex
	drivers repository.DriverRepository
	locks   repository.Locker
	now     func() time.Time
	log     *zap.Logger
}

func NewLocationService(
	spatial *geo.SpatialIndex,
	drivers repository.DriverRepository,
	locks repository.Locker,
	log *zap.Logger,
	opts ...Option,
) *LocationService {
	o := buildOptions(opts)
	return &LocationService{
		spatial: spatial,
		drivers: drivers,
		locks:   locks,
		now:     o.now,
		log:     log,
	}
}

// UpdateDriverLocation records a driver's position. Offline drivers are
// kept out of the spatial index; their last position is still remembered
// for when they come back online.
func (s *LocationService) UpdateDriverLocation(ctx context.Context, driverID string, loc entities.Location) (entities.DriverLocation, error) {
	if err := validateStruct(loc); err != nil {
		return entities.DriverLocation{}, err
	}
	unlock, err := s.locks.LockAll(ctx, memory.DriverKey(driverID))
	if err != nil {
		return entities.DriverLocation{}, err
	}
	defer unlock()

	driver, err := s.drivers.Get(ctx, driverID)
	if err != nil {
		return entities.DriverLocation{}, err
	}
	driver.MoveTo(loc, s.now())
	if err := s.drivers.Update(ctx, driver); err != nil {
		return entities.DriverLocation{}, err
	}
	return s.track(driver), nil
}

// track syncs the spatial index with a driver the caller holds the lock for.
// The position is stamped with the driver's last update.
func (s *LocationService) track(driver entities.Driver) entities.DriverLocation {
	if driver.Location == nil {
		s.untrack(driver.ID)
		return entities.DriverLocation{DriverID: driver.ID}
	}
	if driver.Status == entities.DriverStatusOffline {
		s.untrack(driver.ID)
		return positionOf(driver)
	}
	return s.spatial.Update(driver.ID, *driver.Location, driver.UpdatedAt)
}

func (s *LocationService) untrack(driverID string) {
	if _, tracked := s.spatial.Get(driverID); !tracked {
		return
	}
	s.spatial.Remove(driverID)
	s.log.Debug("driver untracked", zap.String("driver", driverID))
}

func positionOf(driver entities.Driver) entities.DriverLocation {
	loc := *driver.Location
	return entities.NewDriverLocation(driver.ID, loc,
		geo.Encode(loc.Latitude, loc.Longitude, geo.DefaultPrecision), driver.UpdatedAt)
}

// GetDriverLocation returns the driver's last reported position.
func (s *LocationService) GetDriverLocation(ctx context.Context, driverID string) (entities.DriverLocation, error) {
	if dl, ok := s.spatial.Get(driverID); ok {
		return dl, nil
	}
	driver, err := s.drivers.Get(ctx, driverID)
	if err != nil {
		return entities.DriverLocation{}, err
	}
	if driver.Location == nil {
		return entities.DriverLocation{}, errors.Wrapf(entities.ErrNotFound, "driver %s has no position", driverID)
	}
	return positionOf(driver), nil
}

// Nearby lists every tracked driver within radiusKm, nearest first.
func (s *LocationService) Nearby(from entities.Location, radiusKm float64) []geo.Nearby {
	return s.spatial.WithinRadius(from, radiusKm)
}
