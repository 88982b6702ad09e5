package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"booking/internal/config"
	"booking/internal/domain/entities"
	"booking/internal/geo"
	"booking/internal/ledger"
	"booking/internal/repository/memory"
	"booking/internal/services"
	"booking/internal/services/mocks"
	"booking/pkg/utils"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// testClock is a settable clock shared by the services and the ledger.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// events records what the services told the notifier.
type events struct {
	mu  sync.Mutex
	all []services.Event
}

func (e *events) record(_ context.Context, ev services.Event) {
	e.mu.Lock()
	e.all = append(e.all, ev)
	e.mu.Unlock()
}

func (e *events) ofType(typ services.EventType) []services.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []services.Event
	for _, ev := range e.all {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	ctx     context.Context
	cfg     *config.Config
	clock   *testClock
	events  *events
	ledger  *ledger.Ledger
	library *services.LibraryService
	rides   *services.RideService
	match   *services.MatchingService
	locs    *services.LocationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)

	f := &fixture{
		ctx:    context.Background(),
		cfg:    config.NewDefaultConfig(),
		clock:  &testClock{now: t0},
		events: &events{},
	}
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Do(f.events.record).AnyTimes()

	log := zap.NewNop()
	locks := memory.NewLockManager()
	clock := services.WithClock(f.clock.Now)

	f.ledger = ledger.New(
		ledger.NewFineCalculator(f.cfg.Library.FinePerDay),
		ledger.NewFareCalculator(f.cfg.Pricing),
		log,
		ledger.WithClock(f.clock.Now),
	)
	f.library = services.NewLibraryService(f.cfg.Library,
		memory.NewBookRepository(),
		memory.NewMemberRepository(),
		memory.NewLendingRepository(),
		memory.NewReservationRepository(),
		f.ledger, locks, notifier, log, clock)

	drivers := memory.NewDriverRepository()
	rides := memory.NewRideRepository()
	f.locs = services.NewLocationService(geo.NewSpatialIndex(f.cfg.Geo.GeohashPrecision), drivers, locks, log, clock)
	f.match = services.NewMatchingService(f.cfg.Geo, drivers, rides, f.locs, log)
	f.rides = services.NewRideService(drivers, memory.NewRiderRepository(), rides,
		f.match, f.locs, f.ledger, locks, notifier, log, clock)
	return f
}

func (f *fixture) book(t *testing.T, barcode string, referenceOnly bool) {
	t.Helper()
	_, err := f.library.RegisterBook(f.ctx, entities.NewBook(barcode, "Title "+barcode, []string{"Author"}, referenceOnly))
	require.NoError(t, err)
}

func (f *fixture) member(t *testing.T, id string) {
	t.Helper()
	_, err := f.library.RegisterMember(f.ctx, id, "Member "+id, "", "")
	require.NoError(t, err)
}

// onlineDriver registers a driver of the class, puts it northKm north of
// origin and brings it online.
func (f *fixture) onlineDriver(t *testing.T, id string, class entities.VehicleClass, origin entities.Location, northKm float64) {
	t.Helper()
	_, err := f.rides.RegisterDriver(f.ctx, id, "Driver "+id, "", "",
		entities.Vehicle{Plate: "P-" + id, Model: "Sedan", Class: class, Capacity: 4})
	require.NoError(t, err)
	lat, lon := utils.OffsetKm(origin.Latitude, origin.Longitude, northKm, 0)
	_, err = f.locs.UpdateDriverLocation(f.ctx, id, entities.NewLocation(lat, lon))
	require.NoError(t, err)
	_, err = f.rides.GoOnline(f.ctx, id)
	require.NoError(t, err)
}

func (f *fixture) rider(t *testing.T, id string) {
	t.Helper()
	_, err := f.rides.RegisterRider(f.ctx, id, "Rider "+id, "", "")
	require.NoError(t, err)
}
