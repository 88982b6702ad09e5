// Package ledger derives the charges that transactions leave behind: late
// fines for lendings, fares for completed rides and the (simulated)
// payments that settle them. Every amount is a pure function of stored
// timestamps, distances and configured rates, and each charge is recorded at
// most once per transaction.
//
// Go Learning Note (Money Types):
// Amounts are github.com/shopspring/decimal values, never float64. 0.1 + 0.2
// is not 0.3 in binary floating point; in decimal it is. Rounding is explicit
// (Round(2)) and happens where a charge is recorded.
package ledger

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"booking/internal/domain/entities"
)

// Fine is the late charge for one lending.
type Fine struct {
	ID          string          `json:"id"`
	LendingID   string          `json:"lending_id"`
	Barcode     string          `json:"barcode"`
	MemberID    string          `json:"member_id"`
	DaysOverdue int             `json:"days_overdue"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
	Collected   bool            `json:"collected"`
	CollectedAt *time.Time      `json:"collected_at,omitempty"`
}

func (f Fine) Key() string { return f.ID }

// Collect marks the fine paid by memberID.
func (f *Fine) Collect(memberID string, at time.Time) error {
	if f.MemberID != memberID {
		return errors.Wrapf(entities.ErrMemberMismatch, "fine %s belongs to %s, not %s", f.ID, f.MemberID, memberID)
	}
	if f.Collected {
		return errors.Wrapf(entities.ErrInvalidTransition, "fine %s already collected", f.ID)
	}
	f.Collected = true
	f.CollectedAt = &at
	return nil
}

// FineCalculator charges a flat rate per whole day past the due date.
type FineCalculator struct {
	PerDay decimal.Decimal
}

func NewFineCalculator(perDay float64) FineCalculator {
	return FineCalculator{PerDay: decimal.NewFromFloat(perDay)}
}

// DaysOverdue counts whole 24h periods between due and returned. Partial
// days are not charged and an early return is zero days.
func (c FineCalculator) DaysOverdue(due, returned time.Time) int {
	late := returned.Sub(due)
	if late <= 0 {
		return 0
	}
	return int(late / (24 * time.Hour))
}

func (c FineCalculator) Amount(days int) decimal.Decimal {
	if days <= 0 {
		return decimal.Zero
	}
	return c.PerDay.Mul(decimal.NewFromInt(int64(days))).Round(2)
}
