package main

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"booking/internal/app"
	"booking/internal/config"
	"booking/internal/domain/entities"
	"booking/internal/services"
	"booking/pkg/utils"
)

// demoClock lets the demo return a book two weeks later without waiting.
type demoClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *demoClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *demoClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func runDemo(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	clock := &demoClock{now: time.Now().UTC().Truncate(time.Hour)}
	a, err := app.New(cfg, log, app.WithClock(clock.Now), app.WithSinks(services.NewLogSink(log.Named("events"))))
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = a.Close(closeCtx)
	}()

	steps := []struct {
		name string
		run  func(context.Context, *app.App, *demoClock, *zap.Logger) error
	}{
		{"checkout and return", demoCheckoutReturn},
		{"reference-only copy", demoReferenceOnly},
		{"nearest driver", demoNearestDriver},
		{"overdue fine", demoOverdueFine},
	}
	for _, s := range steps {
		l := log.With(zap.String("scenario", s.name))
		if err := s.run(ctx, a, clock, l); err != nil {
			l.Error("scenario failed", zap.Error(err))
			return errors.Wrap(err, s.name)
		}
		l.Info("scenario passed")
	}
	return nil
}

func demoCheckoutReturn(ctx context.Context, a *app.App, _ *demoClock, log *zap.Logger) error {
	if _, err := a.Library.RegisterBook(ctx, entities.NewBook("TB001", "The Go Programming Language", []string{"Donovan", "Kernighan"}, false)); err != nil {
		return err
	}
	if _, err := a.Library.RegisterMember(ctx, "M001", "Ada", "ada@example.com", ""); err != nil {
		return err
	}
	lending, err := a.Library.Checkout(ctx, "TB001", "M001")
	if err != nil {
		return err
	}
	log.Info("checked out", zap.String("lending", lending.ID), zap.Time("due", lending.DueAt))

	res, err := a.Library.Return(ctx, "TB001", "M001")
	if err != nil {
		return err
	}
	book, _ := a.Library.GetBook(ctx, "TB001")
	log.Info("returned", zap.String("status", string(book.Status)), zap.Bool("fined", res.Fine != nil))
	return nil
}

func demoReferenceOnly(ctx context.Context, a *app.App, _ *demoClock, log *zap.Logger) error {
	if _, err := a.Library.RegisterBook(ctx, entities.NewBook("RB001", "Oxford English Dictionary", []string{"Oxford"}, true)); err != nil {
		return err
	}
	_, err := a.Library.Checkout(ctx, "RB001", "M001")
	if !errors.Is(err, entities.ErrNotCirculable) {
		return errors.Errorf("expected a not-circulable rejection, got %v", err)
	}
	log.Info("checkout rejected", zap.Error(err))
	return nil
}

func demoNearestDriver(ctx context.Context, a *app.App, _ *demoClock, log *zap.Logger) error {
	pickup := entities.NewLocation(37.7749, -122.4194)
	for _, d := range []struct {
		id string
		km float64
	}{{"D-5km", 5}, {"D-2km", 2}} {
		vehicle := entities.Vehicle{Plate: d.id, Model: "Sedan", Class: entities.VehicleClassEconomy, Capacity: 4}
		if _, err := a.Rides.RegisterDriver(ctx, d.id, d.id, "", "", vehicle); err != nil {
			return err
		}
		lat, lon := utils.OffsetKm(pickup.Latitude, pickup.Longitude, d.km, 0)
		if _, err := a.Locations.UpdateDriverLocation(ctx, d.id, entities.NewLocation(lat, lon)); err != nil {
			return err
		}
		if _, err := a.Rides.GoOnline(ctx, d.id); err != nil {
			return err
		}
	}
	if _, err := a.Rides.RegisterRider(ctx, "R001", "Grace", "", ""); err != nil {
		return err
	}
	lat, lon := utils.OffsetKm(pickup.Latitude, pickup.Longitude, 0, 8)
	req, err := a.Rides.RequestRide(ctx, "R001", pickup, entities.NewLocation(lat, lon), "economy")
	if err != nil {
		return err
	}
	if req.Candidate == nil || req.Candidate.DriverID != "D-2km" {
		return errors.Errorf("expected D-2km, got %+v", req.Candidate)
	}
	log.Info("matched",
		zap.String("ride", req.Ride.ID),
		zap.String("driver", req.Candidate.DriverID),
		zap.Float64("km", req.Candidate.DistanceKm),
		zap.String("estimate", req.Ride.EstimatedFare.StringFixed(2)))
	return nil
}

func demoOverdueFine(ctx context.Context, a *app.App, clock *demoClock, log *zap.Logger) error {
	if _, err := a.Library.Checkout(ctx, "TB001", "M001"); err != nil {
		return err
	}
	clock.Advance(15 * 24 * time.Hour)
	res, err := a.Library.Return(ctx, "TB001", "M001")
	if err != nil {
		return err
	}
	if res.Fine == nil {
		return errors.New("expected a fine")
	}
	log.Info("fined",
		zap.Int("days", res.Fine.DaysOverdue),
		zap.String("amount", res.Fine.Amount.StringFixed(2)))
	return nil
}
