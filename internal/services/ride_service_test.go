package services_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"booking/internal/domain/entities"
	"booking/internal/ledger"
	"booking/internal/services"
	"booking/pkg/utils"
)

var sf = entities.NewLocation(37.7749, -122.4194)

func north(km float64) entities.Location {
	lat, lon := utils.OffsetKm(sf.Latitude, sf.Longitude, km, 0)
	return entities.NewLocation(lat, lon)
}

func TestRide_NearestDriverIsOffered(t *testing.T) {
	f := newFixture(t)
	f.onlineDriver(t, "D-far", entities.VehicleClassEconomy, sf, 5)
	f.onlineDriver(t, "D-near", entities.VehicleClassEconomy, sf, 2)
	f.onlineDriver(t, "D-black", entities.VehicleClassBlack, sf, 0.5)
	f.rider(t, "R1")

	req, err := f.rides.RequestRide(f.ctx, "R1", sf, north(10), "economy")
	require.NoError(t, err)
	require.NotNil(t, req.Candidate)
	assert.Equal(t, "D-near", req.Candidate.DriverID)
	assert.InDelta(t, 2.0, req.Candidate.DistanceKm, 0.01)
	assert.Equal(t, entities.RideStatusRequested, req.Ride.Status)
	assert.Equal(t, "23.00", req.Ride.EstimatedFare.StringFixed(2), "10 km at 30 km/h is 20 minutes")

	offered := f.events.ofType(services.EventRideRequested)
	require.Len(t, offered, 1)
	assert.Equal(t, "D-near", offered[0].Recipient)
	assert.Equal(t, req.Ride.ID, offered[0].Subject)
}

func TestRide_EqualDistanceGoesToFirstRegistered(t *testing.T) {
	f := newFixture(t)
	f.onlineDriver(t, "D-b", entities.VehicleClassXL, sf, 3)
	f.onlineDriver(t, "D-a", entities.VehicleClassXL, sf, 3)

	m, err := f.match.FindDriver(f.ctx, sf, entities.VehicleClassXL)
	require.NoError(t, err)
	assert.Equal(t, "D-b", m.DriverID)

	_, err = f.match.FindDriver(f.ctx, sf, entities.VehicleClassPool)
	assert.True(t, errors.Is(err, entities.ErrNoDriverAvailable))
}

func TestRide_FullLifecycle(t *testing.T) {
	f := newFixture(t)
	f.onlineDriver(t, "D1", entities.VehicleClassEconomy, sf, 1)
	f.rider(t, "R1")
	dropoff := north(10)

	req, err := f.rides.RequestRide(f.ctx, "R1", sf, dropoff, "economy")
	require.NoError(t, err)
	rideID := req.Ride.ID

	_, err = f.rides.RequestRide(f.ctx, "R1", sf, dropoff, "economy")
	assert.True(t, errors.Is(err, entities.ErrLimitExceeded), "one active ride per rider")

	ride, err := f.rides.AcceptRide(f.ctx, rideID, "D1")
	require.NoError(t, err)
	assert.Equal(t, entities.RideStatusAccepted, ride.Status)
	d, _ := f.rides.GetDriver(f.ctx, "D1")
	assert.Equal(t, entities.DriverStatusBusy, d.Status)
	assert.Equal(t, rideID, d.ActiveRideID)

	_, err = f.rides.GoOffline(f.ctx, "D1")
	assert.True(t, errors.Is(err, entities.ErrAlreadyBusy))
	_, err = f.rides.StartRide(f.ctx, rideID, "D2")
	assert.True(t, errors.Is(err, entities.ErrMemberMismatch))
	_, err = f.rides.CompleteRide(f.ctx, rideID, "D1")
	assert.True(t, errors.Is(err, entities.ErrInvalidTransition), "cannot complete before start")

	_, err = f.rides.StartRide(f.ctx, rideID, "D1")
	require.NoError(t, err)
	f.clock.Advance(20 * time.Minute)

	receipt, err := f.rides.CompleteRide(f.ctx, rideID, "D1")
	require.NoError(t, err)
	assert.Equal(t, entities.RideStatusCompleted, receipt.Ride.Status)
	assert.Equal(t, "23.00", receipt.Fare.Total.StringFixed(2))
	assert.False(t, receipt.Fare.DurationEstimated)
	assert.Equal(t, ledger.PaymentStatusCompleted, receipt.Payment.Status)
	assert.Equal(t, receipt.Fare.ID, receipt.Ride.FareID)
	assert.Equal(t, receipt.Payment.ID, receipt.Ride.PaymentID)

	d, _ = f.rides.GetDriver(f.ctx, "D1")
	assert.Equal(t, entities.DriverStatusAvailable, d.Status)
	assert.Empty(t, d.ActiveRideID)
	require.NotNil(t, d.Location)
	assert.Equal(t, dropoff, *d.Location)
	dl, err := f.locs.GetDriverLocation(f.ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, dropoff, dl.Location)

	r, _ := f.rides.GetRider(f.ctx, "R1")
	assert.False(t, r.HasActiveRide())
	assert.Len(t, f.rides.RidesByRider(f.ctx, "R1"), 1)
	assert.Len(t, f.rides.RidesByDriver(f.ctx, "D1"), 1)

	for _, typ := range []services.EventType{services.EventRideAccepted, services.EventRideStarted, services.EventRideCompleted} {
		evs := f.events.ofType(typ)
		require.Len(t, evs, 1, typ)
		assert.Equal(t, "R1", evs[0].Recipient)
	}

	_, err = f.rides.CancelRide(f.ctx, rideID, "R1")
	assert.True(t, errors.Is(err, entities.ErrInvalidTransition), "completed rides are final")
}

func TestRide_NoDriverKeepsRideRequested(t *testing.T) {
	f := newFixture(t)
	f.rider(t, "R1")

	req, err := f.rides.RequestRide(f.ctx, "R1", sf, north(3), "black")
	require.NoError(t, err)
	assert.Nil(t, req.Candidate)
	assert.Equal(t, entities.RideStatusRequested, req.Ride.Status)
	assert.Empty(t, f.events.ofType(services.EventRideRequested))

	f.onlineDriver(t, "D1", entities.VehicleClassBlack, sf, 1)
	m, err := f.match.MatchRide(f.ctx, req.Ride.ID)
	require.NoError(t, err)
	assert.Equal(t, "D1", m.DriverID)
}

func TestRide_RequestValidation(t *testing.T) {
	f := newFixture(t)
	f.rider(t, "R1")

	_, err := f.rides.RequestRide(f.ctx, "R404", sf, north(1), "economy")
	assert.True(t, errors.Is(err, entities.ErrNotFound))
	_, err = f.rides.RequestRide(f.ctx, "R1", sf, north(1), "helicopter")
	assert.True(t, errors.Is(err, entities.ErrInvalidArgument))
	_, err = f.rides.RequestRide(f.ctx, "R1", entities.NewLocation(91, 0), north(1), "economy")
	assert.True(t, errors.Is(err, entities.ErrInvalidArgument))
	assert.Empty(t, f.rides.RidesByRider(f.ctx, "R1"))
}

func TestRide_AcceptRejections(t *testing.T) {
	f := newFixture(t)
	f.onlineDriver(t, "D-eco", entities.VehicleClassEconomy, sf, 1)
	f.onlineDriver(t, "D-eco2", entities.VehicleClassEconomy, sf, 2)
	f.onlineDriver(t, "D-xl", entities.VehicleClassXL, sf, 1)
	f.onlineDriver(t, "D-off", entities.VehicleClassEconomy, sf, 1)
	_, err := f.rides.GoOffline(f.ctx, "D-off")
	require.NoError(t, err)
	f.rider(t, "R1")
	f.rider(t, "R2")

	req, err := f.rides.RequestRide(f.ctx, "R1", sf, north(5), "economy")
	require.NoError(t, err)

	_, err = f.rides.AcceptRide(f.ctx, req.Ride.ID, "D-xl")
	assert.True(t, errors.Is(err, entities.ErrInvalidTransition), "wrong class: %v", err)
	_, err = f.rides.AcceptRide(f.ctx, req.Ride.ID, "D-off")
	assert.True(t, errors.Is(err, entities.ErrInvalidTransition), "offline: %v", err)

	_, err = f.rides.AcceptRide(f.ctx, req.Ride.ID, "D-eco")
	require.NoError(t, err)
	_, err = f.rides.AcceptRide(f.ctx, req.Ride.ID, "D-eco2")
	assert.True(t, errors.Is(err, entities.ErrAlreadyBusy), "ride taken: %v", err)

	other, err := f.rides.RequestRide(f.ctx, "R2", sf, north(5), "economy")
	require.NoError(t, err)
	assert.Equal(t, "D-eco2", other.Candidate.DriverID, "busy drivers are not offered")
	_, err = f.rides.AcceptRide(f.ctx, other.Ride.ID, "D-eco")
	assert.True(t, errors.Is(err, entities.ErrAlreadyBusy), "driver busy: %v", err)

	_, err = f.rides.CancelRide(f.ctx, other.Ride.ID, "R2")
	require.NoError(t, err)
	_, err = f.rides.AcceptRide(f.ctx, other.Ride.ID, "D-eco2")
	assert.True(t, errors.Is(err, entities.ErrInvalidTransition), "cancelled: %v", err)
}

func TestRide_CancelFreesDriver(t *testing.T) {
	f := newFixture(t)
	f.onlineDriver(t, "D1", entities.VehicleClassEconomy, sf, 1)
	f.rider(t, "R1")

	req, err := f.rides.RequestRide(f.ctx, "R1", sf, north(4), "economy")
	require.NoError(t, err)
	_, err = f.rides.AcceptRide(f.ctx, req.Ride.ID, "D1")
	require.NoError(t, err)

	_, err = f.rides.CancelRide(f.ctx, req.Ride.ID, "someone-else")
	assert.True(t, errors.Is(err, entities.ErrMemberMismatch))

	ride, err := f.rides.CancelRide(f.ctx, req.Ride.ID, "D1")
	require.NoError(t, err)
	assert.Equal(t, entities.RideStatusCancelled, ride.Status)
	require.NotNil(t, ride.CancelledAt)

	d, _ := f.rides.GetDriver(f.ctx, "D1")
	assert.Equal(t, entities.DriverStatusAvailable, d.Status)
	r, _ := f.rides.GetRider(f.ctx, "R1")
	assert.False(t, r.HasActiveRide())
	assert.Len(t, f.events.ofType(services.EventRideCancelled), 2, "rider and driver are told")

	_, err = f.rides.RequestRide(f.ctx, "R1", sf, north(4), "economy")
	assert.NoError(t, err, "rider can book again after a cancellation")
}

func TestRide_NearbyDrivers(t *testing.T) {
	f := newFixture(t)
	f.onlineDriver(t, "D1", entities.VehicleClassEconomy, sf, 1)
	f.onlineDriver(t, "D2", entities.VehicleClassXL, sf, 3)
	f.onlineDriver(t, "D3", entities.VehicleClassEconomy, sf, 20)
	f.rider(t, "R1")

	near := f.match.NearbyDrivers(f.ctx, sf, 0)
	require.Len(t, near, 2)
	assert.Equal(t, "D1", near[0].DriverID)
	assert.Equal(t, "D2", near[1].DriverID)

	req, err := f.rides.RequestRide(f.ctx, "R1", sf, north(2), "economy")
	require.NoError(t, err)
	_, err = f.rides.AcceptRide(f.ctx, req.Ride.ID, "D1")
	require.NoError(t, err)
	near = f.match.NearbyDrivers(f.ctx, sf, 0)
	require.Len(t, near, 1)
	assert.Equal(t, "D2", near[0].DriverID)

	_, err = f.rides.GoOffline(f.ctx, "D2")
	require.NoError(t, err)
	assert.Empty(t, f.match.NearbyDrivers(f.ctx, sf, 10))
	assert.Len(t, f.locs.Nearby(sf, 50), 2, "busy drivers stay tracked, offline ones do not")
}

// Many drivers accept the same ride at once: exactly one wins.
func TestRide_ConcurrentAcceptSingleWinner(t *testing.T) {
	f := newFixture(t)
	const n = 16
	for i := 0; i < n; i++ {
		f.onlineDriver(t, fmt.Sprintf("D%02d", i), entities.VehicleClassEconomy, sf, float64(i+1)/10)
	}
	f.rider(t, "R1")
	req, err := f.rides.RequestRide(f.ctx, "R1", sf, north(3), "economy")
	require.NoError(t, err)

	results := make([]error, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			_, results[i] = f.rides.AcceptRide(f.ctx, req.Ride.ID, fmt.Sprintf("D%02d", i))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var winner string
	for i, err := range results {
		if err == nil {
			require.Empty(t, winner, "second winner D%02d", i)
			winner = fmt.Sprintf("D%02d", i)
			continue
		}
		assert.True(t, errors.Is(err, entities.ErrAlreadyBusy), "got %v", err)
	}
	require.NotEmpty(t, winner)

	busy := 0
	for i := 0; i < n; i++ {
		d, _ := f.rides.GetDriver(f.ctx, fmt.Sprintf("D%02d", i))
		if d.Status == entities.DriverStatusBusy {
			busy++
		}
	}
	assert.Equal(t, 1, busy)
	ride, _ := f.rides.GetRide(f.ctx, req.Ride.ID)
	assert.Equal(t, winner, ride.DriverID)
}

// completedRide runs R1 with D1 from sf to 10 km north.
func completedRide(t *testing.T, f *fixture) string {
	t.Helper()
	f.onlineDriver(t, "D1", entities.VehicleClassEconomy, sf, 1)
	f.rider(t, "R1")
	req, err := f.rides.RequestRide(f.ctx, "R1", sf, north(10), "economy")
	require.NoError(t, err)
	_, err = f.rides.AcceptRide(f.ctx, req.Ride.ID, "D1")
	require.NoError(t, err)
	_, err = f.rides.StartRide(f.ctx, req.Ride.ID, "D1")
	require.NoError(t, err)
	f.clock.Advance(20 * time.Minute)
	_, err = f.rides.CompleteRide(f.ctx, req.Ride.ID, "D1")
	require.NoError(t, err)
	return req.Ride.ID
}

func TestRide_Ratings(t *testing.T) {
	f := newFixture(t)
	rideID := completedRide(t, f)

	_, err := f.rides.RateDriver(f.ctx, rideID, "R1", 6)
	assert.True(t, errors.Is(err, entities.ErrInvalidArgument), "got %v", err)
	_, err = f.rides.RateDriver(f.ctx, rideID, "D1", 4)
	assert.True(t, errors.Is(err, entities.ErrMemberMismatch), "drivers rate riders")
	_, err = f.rides.RateDriver(f.ctx, rideID, "R9", 4)
	assert.True(t, errors.Is(err, entities.ErrMemberMismatch), "got %v", err)

	ride, err := f.rides.RateDriver(f.ctx, rideID, "R1", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, ride.DriverScore)
	d, _ := f.rides.GetDriver(f.ctx, "D1")
	assert.Equal(t, "4", d.Rating.String())
	assert.Equal(t, 1, d.TotalRatings)

	_, err = f.rides.RateDriver(f.ctx, rideID, "R1", 5)
	assert.True(t, errors.Is(err, entities.ErrInvalidTransition), "one rating per side")
	d, _ = f.rides.GetDriver(f.ctx, "D1")
	assert.Equal(t, 1, d.TotalRatings)

	r, _ := f.rides.GetRider(f.ctx, "R1")
	assert.Equal(t, "5", r.Rating.String())
	assert.Zero(t, r.TotalRatings)
	_, err = f.rides.RateRider(f.ctx, rideID, "D1", 3)
	require.NoError(t, err)
	r, _ = f.rides.GetRider(f.ctx, "R1")
	assert.Equal(t, "3", r.Rating.String())
	assert.Equal(t, 1, r.TotalRatings)

	rated := f.events.ofType(services.EventRatingReceived)
	require.Len(t, rated, 2)
	assert.Equal(t, "D1", rated[0].Recipient)
	assert.Equal(t, "4", rated[0].Data["score"])
	assert.Equal(t, "R1", rated[1].Recipient)
}

func TestRide_OnlyCompletedRidesAreRated(t *testing.T) {
	f := newFixture(t)
	f.onlineDriver(t, "D1", entities.VehicleClassEconomy, sf, 1)
	f.rider(t, "R1")
	req, err := f.rides.RequestRide(f.ctx, "R1", sf, north(2), "economy")
	require.NoError(t, err)
	_, err = f.rides.AcceptRide(f.ctx, req.Ride.ID, "D1")
	require.NoError(t, err)

	_, err = f.rides.RateDriver(f.ctx, req.Ride.ID, "R1", 5)
	assert.True(t, errors.Is(err, entities.ErrInvalidTransition), "got %v", err)
	_, err = f.rides.RateRider(f.ctx, req.Ride.ID, "D1", 5)
	assert.True(t, errors.Is(err, entities.ErrInvalidTransition), "got %v", err)
	assert.Empty(t, f.events.ofType(services.EventRatingReceived))
}

func TestRide_Receipt(t *testing.T) {
	f := newFixture(t)
	f.onlineDriver(t, "D1", entities.VehicleClassEconomy, sf, 1)
	f.rider(t, "R1")
	req, err := f.rides.RequestRide(f.ctx, "R1", sf, north(10), "economy")
	require.NoError(t, err)

	_, err = f.rides.Receipt(f.ctx, req.Ride.ID, "R1")
	assert.True(t, errors.Is(err, entities.ErrInvalidTransition), "got %v", err)

	_, err = f.rides.AcceptRide(f.ctx, req.Ride.ID, "D1")
	require.NoError(t, err)
	_, err = f.rides.StartRide(f.ctx, req.Ride.ID, "D1")
	require.NoError(t, err)
	f.clock.Advance(20 * time.Minute)
	done, err := f.rides.CompleteRide(f.ctx, req.Ride.ID, "D1")
	require.NoError(t, err)

	for _, caller := range []string{"R1", "D1"} {
		receipt, err := f.rides.Receipt(f.ctx, req.Ride.ID, caller)
		require.NoError(t, err, caller)
		assert.Equal(t, "23.00", receipt.Fare.Total.StringFixed(2))
		assert.Equal(t, done.Payment.ID, receipt.Payment.ID)
		assert.Equal(t, ledger.PaymentStatusCompleted, receipt.Payment.Status)
	}
	_, err = f.rides.Receipt(f.ctx, req.Ride.ID, "R9")
	assert.True(t, errors.Is(err, entities.ErrMemberMismatch), "got %v", err)
}

func TestRide_RematchOffersNewDriver(t *testing.T) {
	f := newFixture(t)
	f.rider(t, "R1")
	f.rider(t, "R2")

	req, err := f.rides.RequestRide(f.ctx, "R1", sf, north(3), "xl")
	require.NoError(t, err)
	require.Nil(t, req.Candidate)

	again, err := f.rides.RematchRide(f.ctx, req.Ride.ID, "R1")
	require.NoError(t, err)
	assert.Nil(t, again.Candidate, "still nobody online")

	f.onlineDriver(t, "D1", entities.VehicleClassXL, sf, 1)
	_, err = f.rides.RematchRide(f.ctx, req.Ride.ID, "R2")
	assert.True(t, errors.Is(err, entities.ErrMemberMismatch), "got %v", err)

	again, err = f.rides.RematchRide(f.ctx, req.Ride.ID, "R1")
	require.NoError(t, err)
	require.NotNil(t, again.Candidate)
	assert.Equal(t, "D1", again.Candidate.DriverID)
	offered := f.events.ofType(services.EventRideRequested)
	require.Len(t, offered, 1)
	assert.Equal(t, "D1", offered[0].Recipient)

	_, err = f.rides.AcceptRide(f.ctx, req.Ride.ID, "D1")
	require.NoError(t, err)
	_, err = f.rides.RematchRide(f.ctx, req.Ride.ID, "R1")
	assert.True(t, errors.Is(err, entities.ErrInvalidTransition), "accepted rides are not rematched")
}

func TestRide_TimestampsFollowClock(t *testing.T) {
	f := newFixture(t)
	f.onlineDriver(t, "D1", entities.VehicleClassEconomy, sf, 1)

	f.clock.Advance(time.Hour)
	_, err := f.locs.UpdateDriverLocation(f.ctx, "D1", north(2))
	require.NoError(t, err)

	d, _ := f.rides.GetDriver(f.ctx, "D1")
	assert.True(t, d.CreatedAt.Equal(t0), "driver created at %v", d.CreatedAt)
	assert.True(t, d.UpdatedAt.Equal(t0.Add(time.Hour)), "driver updated at %v", d.UpdatedAt)
	dl, err := f.locs.GetDriverLocation(f.ctx, "D1")
	require.NoError(t, err)
	assert.True(t, dl.UpdatedAt.Equal(t0.Add(time.Hour)), "location updated at %v", dl.UpdatedAt)
}
