package services

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"booking/internal/availability"
	"booking/internal/config"
	"booking/internal/domain/entities"
	"booking/internal/geo"
	"booking/internal/repository"
)

// DriverMatch is the candidate chosen for a pickup.
type DriverMatch struct {
	DriverID   string            `json:"driver_id"`
	DistanceKm float64           `json:"distance_km"`
	Location   entities.Location `json:"location"`
}

// MatchingService picks drivers for pickups. It never reserves the driver
// it picks: a match is a suggestion, and the driver still has to accept.
// When two riders are offered the same driver the acceptance check in
// RideService decides, and the loser gets ErrAlreadyBusy.
type MatchingService struct {
	dispatch  *availability.Dispatch
	drivers   repository.DriverRepository
	rides     repository.RideRepository
	locations *LocationService
	cfg       config.GeoConfig
	log       *zap.Logger
}

func NewMatchingService(
	cfg config.GeoConfig,
	drivers repository.DriverRepository,
	rides repository.RideRepository,
	locations *LocationService,
	log *zap.Logger,
) *MatchingService {
	return &MatchingService{
		dispatch:  availability.NewDispatch(drivers),
		drivers:   drivers,
		rides:     rides,
		locations: locations,
		cfg:       cfg,
		log:       log,
	}
}

// FindDriver returns the nearest available driver of the class. Ties go to
// the driver registered first.
func (s *MatchingService) FindDriver(ctx context.Context, pickup entities.Location, class entities.VehicleClass) (DriverMatch, error) {
	c, ok := s.dispatch.Nearest(ctx, pickup, class)
	if !ok {
		return DriverMatch{}, errors.Wrapf(entities.ErrNoDriverAvailable, "class %s near %.5f,%.5f",
			class, pickup.Latitude, pickup.Longitude)
	}
	s.log.Debug("driver matched",
		zap.String("driver", c.Driver.ID),
		zap.String("class", string(class)),
		zap.Float64("km", c.DistanceKm))
	return DriverMatch{
		DriverID:   c.Driver.ID,
		DistanceKm: c.DistanceKm,
		Location:   *c.Driver.Location,
	}, nil
}

// MatchRide re-runs matching for a ride still waiting for a driver.
func (s *MatchingService) MatchRide(ctx context.Context, rideID string) (DriverMatch, error) {
	ride, err := s.rides.Get(ctx, rideID)
	if err != nil {
		return DriverMatch{}, err
	}
	if ride.Status != entities.RideStatusRequested {
		return DriverMatch{}, errors.Wrapf(entities.ErrInvalidTransition, "ride %s is %s", rideID, ride.Status)
	}
	return s.FindDriver(ctx, ride.Pickup, ride.Class)
}

// NearbyDrivers lists available drivers within radiusKm of from, nearest
// first. A non-positive radius uses the configured search radius.
func (s *MatchingService) NearbyDrivers(ctx context.Context, from entities.Location, radiusKm float64) []geo.Nearby {
	if radiusKm <= 0 {
		radiusKm = s.cfg.SearchRadiusKm
	}
	out := []geo.Nearby{}
	for _, n := range s.locations.Nearby(from, radiusKm) {
		drv, err := s.drivers.Get(ctx, n.DriverID)
		if err != nil || !drv.IsAvailable() {
			continue
		}
		out = append(out, n)
	}
	return out
}
