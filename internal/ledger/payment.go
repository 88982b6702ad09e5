package ledger

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"booking/internal/domain/entities"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

type PaymentMethod string

// PaymentMethodCard is the only method rides are settled with.
const PaymentMethodCard PaymentMethod = "card"

// Payment settles a fare. Processing is simulated: nothing leaves the process.
type Payment struct {
	ID          string          `json:"id"`
	RideID      string          `json:"ride_id"`
	FareID      string          `json:"fare_id"`
	RiderID     string          `json:"rider_id"`
	Amount      decimal.Decimal `json:"amount"`
	Method      PaymentMethod   `json:"method"`
	Status      PaymentStatus   `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

func (p Payment) Key() string { return p.ID }

// Process settles a pending payment. A non-positive amount fails it.
func (p *Payment) Process(at time.Time) error {
	if p.Status != PaymentStatusPending {
		return errors.Wrapf(entities.ErrInvalidTransition, "payment %s is %s", p.ID, p.Status)
	}
	p.ProcessedAt = &at
	if !p.Amount.IsPositive() {
		p.Status = PaymentStatusFailed
		return errors.Wrapf(entities.ErrInvalidArgument, "payment %s amount %s", p.ID, p.Amount)
	}
	p.Status = PaymentStatusCompleted
	return nil
}
