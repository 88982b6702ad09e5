package entities

import (
	"time"

	"github.com/pkg/errors"
)

type LendingStatus string

const (
	LendingStatusActive   LendingStatus = "active"
	LendingStatusReturned LendingStatus = "returned"
)

// Lending records one checkout of one copy by one member. It references
// both by key only; the registry keeps ownership of the book and member.
type Lending struct {
	ID         string        `json:"id"`
	Barcode    string        `json:"barcode"`
	MemberID   string        `json:"member_id"`
	Status     LendingStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	DueAt      time.Time     `json:"due_at"`
	ReturnedAt *time.Time    `json:"returned_at,omitempty"`
}

func (l Lending) Key() string { return l.ID }

// NewLending opens a lending at the given time, due after period.
func NewLending(id, barcode, memberID string, at time.Time, period time.Duration) Lending {
	return Lending{
		ID:        id,
		Barcode:   barcode,
		MemberID:  memberID,
		Status:    LendingStatusActive,
		CreatedAt: at,
		DueAt:     at.Add(period),
	}
}

func (l *Lending) IsOpen() bool {
	return l.Status == LendingStatusActive
}

// Close stamps the return time. A returned lending is immutable.
func (l *Lending) Close(at time.Time) error {
	if !l.IsOpen() {
		return errors.Wrapf(ErrInvalidTransition, "lending %s already %s", l.ID, l.Status)
	}
	l.Status = LendingStatusReturned
	l.ReturnedAt = &at
	return nil
}

// IsOverdueAt reports whether the copy is (or was) late at t.
func (l *Lending) IsOverdueAt(t time.Time) bool {
	return t.After(l.DueAt)
}
