package services

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"booking/internal/domain/entities"
	"booking/internal/ledger"
	"booking/internal/repository"
	"booking/internal/repository/memory"
	"booking/pkg/utils"
)

// RideService runs the ride lifecycle
//
//	requested → accepted → started → completed
//
// with cancellation allowed from any non-terminal state. A rider has at most
// one active ride and a driver serves at most one.
type RideService struct {
	drivers   repository.DriverRepository
	riders    repository.RiderRepository
	rides     repository.RideRepository
	matcher   *MatchingService
	locations *LocationService
	ledger    *ledger.Ledger
	locks     repository.Locker
	notifier  Notifier
	now       func() time.Time
	log       *zap.Logger
}

func NewRideService(
	drivers repository.DriverRepository,
	riders repository.RiderRepository,
	rides repository.RideRepository,
	matcher *MatchingService,
	locations *LocationService,
	ldg *ledger.Ledger,
	locks repository.Locker,
	notifier Notifier,
	log *zap.Logger,
	opts ...Option,
) *RideService {
	o := buildOptions(opts)
	return &RideService{
		drivers:   drivers,
		riders:    riders,
		rides:     rides,
		matcher:   matcher,
		locations: locations,
		ledger:    ldg,
		locks:     locks,
		notifier:  notifier,
		now:       o.now,
		log:       log,
	}
}

// RideRequest is a freshly requested ride plus the driver matching found
// for it. Candidate is nil when no driver of the class is available; the
// ride stays requested and can be matched again later.
type RideRequest struct {
	Ride      entities.Ride `json:"ride"`
	Candidate *DriverMatch  `json:"candidate,omitempty"`
}

// RideReceipt is what completing a ride produces.
type RideReceipt struct {
	Ride    entities.Ride  `json:"ride"`
	Fare    ledger.Fare    `json:"fare"`
	Payment ledger.Payment `json:"payment"`
}

func (s *RideService) RegisterDriver(ctx context.Context, id, name, email, phone string, vehicle entities.Vehicle) (entities.Driver, error) {
	d := entities.NewDriver(id, name, email, phone, vehicle, s.now())
	if err := validateStruct(d); err != nil {
		return entities.Driver{}, err
	}
	if err := s.drivers.Register(ctx, d); err != nil {
		return entities.Driver{}, err
	}
	return d, nil
}

func (s *RideService) RegisterRider(ctx context.Context, id, name, email, phone string) (entities.Rider, error) {
	r := entities.NewRider(id, name, email, phone, s.now())
	if err := validateStruct(r); err != nil {
		return entities.Rider{}, err
	}
	if err := s.riders.Register(ctx, r); err != nil {
		return entities.Rider{}, err
	}
	return r, nil
}

func (s *RideService) GetDriver(ctx context.Context, id string) (entities.Driver, error) {
	return s.drivers.Get(ctx, id)
}

func (s *RideService) GetRider(ctx context.Context, id string) (entities.Rider, error) {
	return s.riders.Get(ctx, id)
}

func (s *RideService) GetRide(ctx context.Context, id string) (entities.Ride, error) {
	return s.rides.Get(ctx, id)
}

func (s *RideService) RidesByRider(ctx context.Context, riderID string) []entities.Ride {
	return s.rides.ByRider(ctx, riderID)
}

func (s *RideService) RidesByDriver(ctx context.Context, driverID string) []entities.Ride {
	return s.rides.ByDriver(ctx, driverID)
}

// GoOnline makes a driver matchable. A busy driver is already online.
func (s *RideService) GoOnline(ctx context.Context, driverID string) (entities.Driver, error) {
	return s.setPresence(ctx, driverID, (*entities.Driver).GoOnline)
}

// GoOffline takes a driver out of matching. Not allowed mid-ride.
func (s *RideService) GoOffline(ctx context.Context, driverID string) (entities.Driver, error) {
	return s.setPresence(ctx, driverID, (*entities.Driver).GoOffline)
}

func (s *RideService) setPresence(ctx context.Context, driverID string, apply func(*entities.Driver, time.Time)) (entities.Driver, error) {
	unlock, err := s.locks.LockAll(ctx, memory.DriverKey(driverID))
	if err != nil {
		return entities.Driver{}, err
	}
	defer unlock()

	d, err := s.drivers.Get(ctx, driverID)
	if err != nil {
		return entities.Driver{}, err
	}
	if d.Status == entities.DriverStatusBusy {
		return entities.Driver{}, errors.Wrapf(entities.ErrAlreadyBusy, "driver %s is on ride %s", driverID, d.ActiveRideID)
	}
	apply(&d, s.now())
	if err := s.drivers.Update(ctx, d); err != nil {
		return entities.Driver{}, err
	}
	s.locations.track(d)
	s.log.Debug("driver presence", zap.String("driver", driverID), zap.String("status", string(d.Status)))
	return d, nil
}

// RequestRide opens a ride for the rider and looks for the nearest driver.
// The ride is created even when nobody is available.
func (s *RideService) RequestRide(ctx context.Context, riderID string, pickup, dropoff entities.Location, class string) (RideRequest, error) {
	unlock, err := s.locks.LockAll(ctx, memory.RiderKey(riderID))
	if err != nil {
		return RideRequest{}, err
	}
	defer unlock()

	rider, err := s.riders.Get(ctx, riderID)
	if err != nil {
		return RideRequest{}, err
	}
	if active, ok := s.rides.ActiveByRider(ctx, riderID); ok || rider.HasActiveRide() {
		if !ok {
			active.ID = rider.ActiveRideID
		}
		return RideRequest{}, errors.Wrapf(entities.ErrLimitExceeded, "rider %s already has ride %s", riderID, active.ID)
	}
	vc, err := entities.ParseVehicleClass(class)
	if err != nil {
		return RideRequest{}, err
	}
	if err := validateStruct(pickup); err != nil {
		return RideRequest{}, errors.Wrap(err, "pickup")
	}
	if err := validateStruct(dropoff); err != nil {
		return RideRequest{}, errors.Wrap(err, "dropoff")
	}

	now := s.now()
	ride := entities.NewRide(utils.GeneratePrefixedID("ride"), riderID, vc, pickup, dropoff, now)
	ride.EstimatedFare = s.ledger.Fares().Quote(ride.DistanceKm, vc)
	rider.ActiveRideID = ride.ID

	if err := s.rides.Register(ctx, ride); err != nil {
		return RideRequest{}, err
	}
	if err := s.riders.Update(ctx, rider); err != nil {
		return RideRequest{}, err
	}

	match, err := s.matcher.FindDriver(ctx, pickup, vc)
	return s.offer(ctx, ride, match, err, now)
}

// offer tells the matched driver about the ride. No available driver is not
// an error: the ride stays requested with a nil candidate.
func (s *RideService) offer(ctx context.Context, ride entities.Ride, match DriverMatch, matchErr error, now time.Time) (RideRequest, error) {
	req := RideRequest{Ride: ride}
	switch {
	case matchErr == nil:
		req.Candidate = &match
		s.notifier.Notify(ctx, NewEvent(EventRideRequested, match.DriverID, ride.ID, now,
			"rider_id", ride.RiderID,
			"class", string(ride.Class),
			"estimated_fare", ride.EstimatedFare.StringFixed(2)))
	case errors.Is(matchErr, entities.ErrNoDriverAvailable):
		s.log.Info("no driver available", zap.String("ride", ride.ID), zap.String("class", string(ride.Class)))
	default:
		return RideRequest{}, matchErr
	}
	return req, nil
}

// RematchRide looks again for a driver for one of the rider's rides that
// nobody has accepted yet.
func (s *RideService) RematchRide(ctx context.Context, rideID, riderID string) (RideRequest, error) {
	ride, unlock, err := s.lockRide(ctx, rideID)
	if err != nil {
		return RideRequest{}, err
	}
	defer unlock()

	if ride.RiderID != riderID {
		return RideRequest{}, errors.Wrapf(entities.ErrMemberMismatch, "ride %s belongs to another rider", rideID)
	}
	match, err := s.matcher.MatchRide(ctx, rideID)
	return s.offer(ctx, ride, match, err, s.now())
}

// lockRide locks a ride together with its rider, its driver if it has one
// and any extra keys, and returns a copy read under those locks. The
// driver is only known after a read, so if an accept slipped in between
// the read and the lock the keys are recomputed. DriverID is written once,
// so this retries at most once.
func (s *RideService) lockRide(ctx context.Context, rideID string, extra ...string) (entities.Ride, func(), error) {
	for {
		ride, err := s.rides.Get(ctx, rideID)
		if err != nil {
			return entities.Ride{}, nil, err
		}
		keys := append([]string{memory.RideKey(rideID), memory.RiderKey(ride.RiderID)}, extra...)
		if ride.DriverID != "" {
			keys = append(keys, memory.DriverKey(ride.DriverID))
		}
		unlock, err := s.locks.LockAll(ctx, keys...)
		if err != nil {
			return entities.Ride{}, nil, err
		}
		fresh, err := s.rides.Get(ctx, rideID)
		if err != nil {
			unlock()
			return entities.Ride{}, nil, err
		}
		if fresh.DriverID == ride.DriverID {
			return fresh, unlock, nil
		}
		unlock()
	}
}

// AcceptRide assigns the driver to the ride. When several drivers race for
// the same ride exactly one wins; the rest get ErrAlreadyBusy.
func (s *RideService) AcceptRide(ctx context.Context, rideID, driverID string) (entities.Ride, error) {
	ride, unlock, err := s.lockRide(ctx, rideID, memory.DriverKey(driverID))
	if err != nil {
		return entities.Ride{}, err
	}
	defer unlock()

	if ride.IsTerminal() {
		return entities.Ride{}, errors.Wrapf(entities.ErrInvalidTransition, "ride %s is %s", rideID, ride.Status)
	}
	driver, err := s.drivers.Get(ctx, driverID)
	if err != nil {
		return entities.Ride{}, err
	}
	switch {
	case driver.Status == entities.DriverStatusBusy:
		return entities.Ride{}, errors.Wrapf(entities.ErrAlreadyBusy, "driver %s is on ride %s", driverID, driver.ActiveRideID)
	case driver.Status == entities.DriverStatusOffline:
		return entities.Ride{}, errors.Wrapf(entities.ErrInvalidTransition, "driver %s is offline", driverID)
	case driver.Vehicle.Class != ride.Class:
		return entities.Ride{}, errors.Wrapf(entities.ErrInvalidTransition, "driver %s drives %s, ride wants %s",
			driverID, driver.Vehicle.Class, ride.Class)
	}
	if ride.Status != entities.RideStatusRequested {
		return entities.Ride{}, errors.Wrapf(entities.ErrAlreadyBusy, "ride %s already taken by %s", rideID, ride.DriverID)
	}

	now := s.now()
	if err := ride.Accept(driverID, now); err != nil {
		return entities.Ride{}, err
	}
	driver.AssignRide(rideID, now)
	if err := s.drivers.Update(ctx, driver); err != nil {
		return entities.Ride{}, err
	}
	if err := s.rides.Update(ctx, ride); err != nil {
		return entities.Ride{}, err
	}

	s.log.Debug("ride accepted", zap.String("ride", rideID), zap.String("driver", driverID))
	s.notifier.Notify(ctx, NewEvent(EventRideAccepted, ride.RiderID, rideID, now, "driver_id", driverID))
	return ride, nil
}

func checkDriver(ride entities.Ride, driverID string) error {
	if ride.DriverID != "" && ride.DriverID != driverID {
		return errors.Wrapf(entities.ErrMemberMismatch, "ride %s is assigned to another driver", ride.ID)
	}
	return nil
}

// StartRide records the pickup.
func (s *RideService) StartRide(ctx context.Context, rideID, driverID string) (entities.Ride, error) {
	ride, unlock, err := s.lockRide(ctx, rideID)
	if err != nil {
		return entities.Ride{}, err
	}
	defer unlock()

	if err := checkDriver(ride, driverID); err != nil {
		return entities.Ride{}, err
	}
	now := s.now()
	if err := ride.Start(now); err != nil {
		return entities.Ride{}, err
	}
	if err := s.rides.Update(ctx, ride); err != nil {
		return entities.Ride{}, err
	}
	s.notifier.Notify(ctx, NewEvent(EventRideStarted, ride.RiderID, rideID, now, "driver_id", ride.DriverID))
	return ride, nil
}

// CompleteRide records the drop-off, frees driver and rider, and charges
// the fare. The driver is left at the drop-off point.
func (s *RideService) CompleteRide(ctx context.Context, rideID, driverID string) (RideReceipt, error) {
	ride, unlock, err := s.lockRide(ctx, rideID)
	if err != nil {
		return RideReceipt{}, err
	}
	defer unlock()

	if err := checkDriver(ride, driverID); err != nil {
		return RideReceipt{}, err
	}
	now := s.now()
	if err := ride.Complete(now); err != nil {
		return RideReceipt{}, err
	}
	driver, err := s.drivers.Get(ctx, ride.DriverID)
	if err != nil {
		return RideReceipt{}, err
	}
	rider, err := s.riders.Get(ctx, ride.RiderID)
	if err != nil {
		return RideReceipt{}, err
	}

	ride.FareID = ledger.FareID(ride.ID)
	ride.PaymentID = ledger.PaymentID(ride.ID)
	driver.ReleaseRide(now)
	driver.MoveTo(ride.Dropoff, now)
	if rider.ActiveRideID == ride.ID {
		rider.ActiveRideID = ""
	}

	if err := s.rides.Update(ctx, ride); err != nil {
		return RideReceipt{}, err
	}
	if err := s.drivers.Update(ctx, driver); err != nil {
		return RideReceipt{}, err
	}
	if err := s.riders.Update(ctx, rider); err != nil {
		return RideReceipt{}, err
	}
	s.locations.track(driver)

	receipt := RideReceipt{Ride: ride}
	receipt.Fare, err = s.ledger.ChargeFare(ctx, ride)
	if err != nil {
		return receipt, err
	}
	receipt.Payment, err = s.ledger.ProcessPayment(ctx, receipt.Fare, ledger.PaymentMethodCard)
	if err != nil {
		s.log.Warn("ride payment failed", zap.String("ride", rideID), zap.Error(err))
		return receipt, err
	}

	s.log.Debug("ride completed",
		zap.String("ride", rideID),
		zap.String("driver", ride.DriverID),
		zap.String("fare", receipt.Fare.Total.StringFixed(2)))
	s.notifier.Notify(ctx, NewEvent(EventRideCompleted, ride.RiderID, rideID, now,
		"driver_id", ride.DriverID,
		"fare", receipt.Fare.Total.StringFixed(2),
		"payment_id", receipt.Payment.ID))
	return receipt, nil
}

// CancelRide cancels a ride that has not finished. actorID must be the
// rider or the assigned driver; an empty actor is a system cancellation.
func (s *RideService) CancelRide(ctx context.Context, rideID, actorID string) (entities.Ride, error) {
	ride, unlock, err := s.lockRide(ctx, rideID)
	if err != nil {
		return entities.Ride{}, err
	}
	defer unlock()

	if actorID != "" && actorID != ride.RiderID && actorID != ride.DriverID {
		return entities.Ride{}, errors.Wrapf(entities.ErrMemberMismatch, "%s is not part of ride %s", actorID, rideID)
	}
	now := s.now()
	if err := ride.Cancel(now); err != nil {
		return entities.Ride{}, err
	}

	var driver *entities.Driver
	if ride.DriverID != "" {
		d, err := s.drivers.Get(ctx, ride.DriverID)
		if err != nil {
			return entities.Ride{}, err
		}
		if d.ActiveRideID == rideID {
			d.ReleaseRide(now)
			driver = &d
		}
	}
	rider, err := s.riders.Get(ctx, ride.RiderID)
	if err != nil {
		return entities.Ride{}, err
	}
	if rider.ActiveRideID == rideID {
		rider.ActiveRideID = ""
	}

	if err := s.rides.Update(ctx, ride); err != nil {
		return entities.Ride{}, err
	}
	if err := s.riders.Update(ctx, rider); err != nil {
		return entities.Ride{}, err
	}
	if driver != nil {
		if err := s.drivers.Update(ctx, *driver); err != nil {
			return entities.Ride{}, err
		}
		s.locations.track(*driver)
	}

	s.notifier.Notify(ctx, NewEvent(EventRideCancelled, ride.RiderID, rideID, now, "by", actorID))
	if ride.DriverID != "" {
		s.notifier.Notify(ctx, NewEvent(EventRideCancelled, ride.DriverID, rideID, now, "by", actorID))
	}
	return ride, nil
}

// Receipt returns the fare and payment of a completed ride to its rider or
// driver.
func (s *RideService) Receipt(ctx context.Context, rideID, callerID string) (RideReceipt, error) {
	ride, err := s.rides.Get(ctx, rideID)
	if err != nil {
		return RideReceipt{}, err
	}
	if callerID == "" || (callerID != ride.RiderID && callerID != ride.DriverID) {
		return RideReceipt{}, errors.Wrapf(entities.ErrMemberMismatch, "%s is not part of ride %s", callerID, rideID)
	}
	if ride.Status != entities.RideStatusCompleted {
		return RideReceipt{}, errors.Wrapf(entities.ErrInvalidTransition, "ride %s is %s", rideID, ride.Status)
	}
	receipt := RideReceipt{Ride: ride}
	if receipt.Fare, err = s.ledger.Fare(ctx, rideID); err != nil {
		return RideReceipt{}, err
	}
	if receipt.Payment, err = s.ledger.Payment(ctx, rideID); err != nil {
		return RideReceipt{}, err
	}
	return receipt, nil
}

// RateDriver records the rider's score for the driver of a completed ride.
func (s *RideService) RateDriver(ctx context.Context, rideID, riderID string, score int) (entities.Ride, error) {
	return s.rate(ctx, rideID, riderID, score, true)
}

// RateRider records the driver's score for the rider of a completed ride.
func (s *RideService) RateRider(ctx context.Context, rideID, driverID string, score int) (entities.Ride, error) {
	return s.rate(ctx, rideID, driverID, score, false)
}

// rate scores the other side of a ride. Each side rates once; the score
// is folded into the rated party's running average.
func (s *RideService) rate(ctx context.Context, rideID, actorID string, score int, ofDriver bool) (entities.Ride, error) {
	if err := entities.ValidateScore(score); err != nil {
		return entities.Ride{}, err
	}
	ride, unlock, err := s.lockRide(ctx, rideID)
	if err != nil {
		return entities.Ride{}, err
	}
	defer unlock()

	rater, rated := ride.RiderID, ride.DriverID
	if !ofDriver {
		rater, rated = ride.DriverID, ride.RiderID
	}
	if actorID == "" || actorID != rater {
		return entities.Ride{}, errors.Wrapf(entities.ErrMemberMismatch, "%s cannot rate on ride %s", actorID, rideID)
	}

	now := s.now()
	if ofDriver {
		if err := ride.RateDriver(score, now); err != nil {
			return entities.Ride{}, err
		}
		driver, err := s.drivers.Get(ctx, rated)
		if err != nil {
			return entities.Ride{}, err
		}
		if err := driver.AddRating(score); err != nil {
			return entities.Ride{}, err
		}
		if err := s.drivers.Update(ctx, driver); err != nil {
			return entities.Ride{}, err
		}
	} else {
		if err := ride.RateRider(score, now); err != nil {
			return entities.Ride{}, err
		}
		rider, err := s.riders.Get(ctx, rated)
		if err != nil {
			return entities.Ride{}, err
		}
		if err := rider.AddRating(score); err != nil {
			return entities.Ride{}, err
		}
		if err := s.riders.Update(ctx, rider); err != nil {
			return entities.Ride{}, err
		}
	}
	if err := s.rides.Update(ctx, ride); err != nil {
		return entities.Ride{}, err
	}

	s.notifier.Notify(ctx, NewEvent(EventRatingReceived, rated, rideID, now,
		"score", strconv.Itoa(score), "by", actorID))
	return ride, nil
}
