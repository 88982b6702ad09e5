package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"booking/internal/domain/entities"
	"booking/internal/repository/memory"
)

// Ledger records fines, fares and payments. Entry ids are derived from the
// transaction they belong to, so recording the same lending or ride twice
// returns the first entry instead of creating a second one.
type Ledger struct {
	fines    *memory.Registry[Fine]
	fares    *memory.Registry[Fare]
	payments *memory.Registry[Payment]

	// mu serializes read-modify-write of stored entries.
	mu sync.Mutex

	fineCalc FineCalculator
	fareCalc *FareCalculator
	now      func() time.Time
	log      *zap.Logger
}

type Option func(*Ledger)

// WithClock replaces time.Now, which tests use to control CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(fineCalc FineCalculator, fareCalc *FareCalculator, log *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		fines:    memory.NewRegistry[Fine]("fine"),
		fares:    memory.NewRegistry[Fare]("fare"),
		payments: memory.NewRegistry[Payment]("payment"),
		fineCalc: fineCalc,
		fareCalc: fareCalc,
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func FineID(lendingID string) string { return "fine-" + lendingID }
func FareID(rideID string) string    { return "fare-" + rideID }
func PaymentID(rideID string) string { return "pay-" + rideID }

// Fares exposes the calculator so ride requests can be quoted up front.
func (l *Ledger) Fares() *FareCalculator { return l.fareCalc }

// AssessFine records the late fine of a returned lending. ok is false when
// the copy came back less than a whole day late and nothing is owed.
func (l *Ledger) AssessFine(ctx context.Context, lending entities.Lending) (fine Fine, ok bool, err error) {
	if lending.ReturnedAt == nil {
		return Fine{}, false, errors.Wrapf(entities.ErrInvalidTransition, "lending %s not returned", lending.ID)
	}
	if !lending.IsOverdueAt(*lending.ReturnedAt) {
		return Fine{}, false, nil
	}
	days := l.fineCalc.DaysOverdue(lending.DueAt, *lending.ReturnedAt)
	if days == 0 {
		return Fine{}, false, nil
	}

	fine = Fine{
		ID:          FineID(lending.ID),
		LendingID:   lending.ID,
		Barcode:     lending.Barcode,
		MemberID:    lending.MemberID,
		DaysOverdue: days,
		Rate:        l.fineCalc.PerDay,
		Amount:      l.fineCalc.Amount(days),
		CreatedAt:   l.now(),
	}
	if err := l.fines.Register(ctx, fine); err != nil {
		if errors.Is(err, entities.ErrDuplicateKey) {
			existing, getErr := l.fines.Get(ctx, fine.ID)
			return existing, getErr == nil, getErr
		}
		return Fine{}, false, err
	}
	l.log.Debug("fine assessed",
		zap.String("lending", lending.ID),
		zap.String("member", lending.MemberID),
		zap.Int("days", days),
		zap.String("amount", fine.Amount.StringFixed(2)))
	return fine, true, nil
}

// CollectFine marks a fine paid by the member it was charged to.
func (l *Ledger) CollectFine(ctx context.Context, fineID, memberID string) (Fine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fine, err := l.fines.Get(ctx, fineID)
	if err != nil {
		return Fine{}, err
	}
	if err := fine.Collect(memberID, l.now()); err != nil {
		return Fine{}, err
	}
	if err := l.fines.Update(ctx, fine); err != nil {
		return Fine{}, err
	}
	return fine, nil
}

func (l *Ledger) Fine(ctx context.Context, fineID string) (Fine, error) {
	return l.fines.Get(ctx, fineID)
}

func (l *Ledger) FinesByMember(ctx context.Context, memberID string) []Fine {
	out := []Fine{}
	l.fines.Scan(ctx, func(f Fine) bool {
		if f.MemberID == memberID {
			out = append(out, f)
		}
		return true
	})
	return out
}

// Outstanding sums the member's uncollected fines.
func (l *Ledger) Outstanding(ctx context.Context, memberID string) decimal.Decimal {
	total := decimal.Zero
	for _, f := range l.FinesByMember(ctx, memberID) {
		if !f.Collected {
			total = total.Add(f.Amount)
		}
	}
	return total
}

// ChargeFare records the fare of a completed ride.
func (l *Ledger) ChargeFare(ctx context.Context, ride entities.Ride) (Fare, error) {
	if ride.Status != entities.RideStatusCompleted {
		return Fare{}, errors.Wrapf(entities.ErrInvalidTransition, "ride %s is %s", ride.ID, ride.Status)
	}

	fare := l.fareCalc.ForRide(ride)
	fare.ID = FareID(ride.ID)
	fare.CreatedAt = l.now()
	if err := l.fares.Register(ctx, fare); err != nil {
		if errors.Is(err, entities.ErrDuplicateKey) {
			return l.fares.Get(ctx, fare.ID)
		}
		return Fare{}, err
	}
	l.log.Debug("fare charged",
		zap.String("ride", ride.ID),
		zap.String("class", string(ride.Class)),
		zap.Float64("km", fare.DistanceKm),
		zap.Float64("mins", fare.DurationMins),
		zap.String("total", fare.Total.StringFixed(2)))
	return fare, nil
}

func (l *Ledger) Fare(ctx context.Context, rideID string) (Fare, error) {
	return l.fares.Get(ctx, FareID(rideID))
}

// ProcessPayment creates and settles the payment for a fare. Calling it
// again for the same ride returns the existing payment.
func (l *Ledger) ProcessPayment(ctx context.Context, fare Fare, method PaymentMethod) (Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, err := l.payments.Get(ctx, PaymentID(fare.RideID)); err == nil {
		return existing, nil
	}
	if method == "" {
		method = PaymentMethodCard
	}

	at := l.now()
	p := Payment{
		ID:        PaymentID(fare.RideID),
		RideID:    fare.RideID,
		FareID:    fare.ID,
		RiderID:   fare.RiderID,
		Amount:    fare.Total,
		Method:    method,
		Status:    PaymentStatusPending,
		CreatedAt: at,
	}
	procErr := p.Process(at)
	if err := l.payments.Register(ctx, p); err != nil {
		return Payment{}, err
	}
	if procErr != nil {
		l.log.Warn("payment failed", zap.String("ride", fare.RideID), zap.Error(procErr))
		return p, procErr
	}
	return p, nil
}

func (l *Ledger) Payment(ctx context.Context, rideID string) (Payment, error) {
	return l.payments.Get(ctx, PaymentID(rideID))
}
