// Package app assembles the engine: repositories, services, the notifier
// and the HTTP router, all built from one Config.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"booking/internal/api"
	"booking/internal/api/handlers"
	"booking/internal/config"
	"booking/internal/geo"
	"booking/internal/ledger"
	"booking/internal/repository/memory"
	"booking/internal/services"
)

// App holds the wired services. Everything lives in memory and is lost
// when the process exits.
type App struct {
	Config        *config.Config
	Log           *zap.Logger
	Ledger        *ledger.Ledger
	Library       *services.LibraryService
	Rides         *services.RideService
	Matching      *services.MatchingService
	Locations     *services.LocationService
	Notifications *services.NotificationService
	Engine        *gin.Engine
}

type options struct {
	now   func() time.Time
	sinks []services.Sink
}

type Option func(*options)

// WithClock drives every service and the ledger from now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSinks replaces the sinks chosen from the Notify config.
func WithSinks(sinks ...services.Sink) Option {
	return func(o *options) { o.sinks = sinks }
}

func New(cfg *config.Config, log *zap.Logger, opts ...Option) (*App, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	sinks := o.sinks
	if sinks == nil {
		var err error
		if sinks, err = configuredSinks(cfg.Notify, log); err != nil {
			return nil, err
		}
	}
	notifications := services.NewNotificationService(cfg.Notify.BufferSize, log.Named("notify"), sinks...)

	ldg := ledger.New(
		ledger.NewFineCalculator(cfg.Library.FinePerDay),
		ledger.NewFareCalculator(cfg.Pricing),
		log.Named("ledger"),
		ledger.WithClock(o.now),
	)
	locks := memory.NewLockManager()
	clock := services.WithClock(o.now)

	library := services.NewLibraryService(cfg.Library,
		memory.NewBookRepository(),
		memory.NewMemberRepository(),
		memory.NewLendingRepository(),
		memory.NewReservationRepository(),
		ldg, locks, notifications, log.Named("library"), clock)

	drivers := memory.NewDriverRepository()
	rides := memory.NewRideRepository()
	locations := services.NewLocationService(geo.NewSpatialIndex(cfg.Geo.GeohashPrecision), drivers, locks, log.Named("location"), clock)
	matching := services.NewMatchingService(cfg.Geo, drivers, rides, locations, log.Named("matching"))
	rideSvc := services.NewRideService(drivers, memory.NewRiderRepository(), rides,
		matching, locations, ldg, locks, notifications, log.Named("rides"), clock)

	engine := gin.New()
	api.NewRouter(
		handlers.NewLibraryHandler(library),
		handlers.NewRideHandler(rideSvc),
		handlers.NewDriverHandler(rideSvc, matching),
		handlers.NewLocationHandler(locations),
		cfg.Server,
		log.Named("http"),
	).Setup(engine)

	return &App{
		Config:        cfg,
		Log:           log,
		Ledger:        ldg,
		Library:       library,
		Rides:         rideSvc,
		Matching:      matching,
		Locations:     locations,
		Notifications: notifications,
		Engine:        engine,
	}, nil
}

// configuredSinks publishes to Kafka when brokers are configured and to
// the log otherwise.
func configuredSinks(cfg config.NotifyConfig, log *zap.Logger) ([]services.Sink, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return []services.Sink{services.NewLogSink(log.Named("events"))}, nil
	}
	producer, err := services.NewKafkaProducer(cfg.KafkaBrokers)
	if err != nil {
		return nil, err
	}
	log.Info("publishing events to kafka",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopic))
	return []services.Sink{services.NewKafkaSink(producer, cfg.KafkaTopic)}, nil
}

// Run serves HTTP until ctx is cancelled, then shuts the server down and
// drains the notification queue within the shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         a.Config.Server.Port,
		Handler:      a.Engine,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()

		a.Log.Info("shutting down")
		err := srv.Shutdown(shutdownCtx)
		if cerr := a.Notifications.Close(shutdownCtx); cerr != nil && err == nil {
			err = cerr
		}
		return err
	})
	return g.Wait()
}

// Close drains pending notifications. Run does this itself; Close is for
// callers that never started the server.
func (a *App) Close(ctx context.Context) error {
	return a.Notifications.Close(ctx)
}
