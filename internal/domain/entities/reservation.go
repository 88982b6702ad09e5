package entities

import (
	"time"

	"github.com/pkg/errors"
)

// ReservationStatus tracks a hold placed on a copy that is out on loan.
//
//	Waiting → Pending   (copy returned, member notified, copy held)
//	Waiting|Pending → Completed (member checks the copy out)
//	Waiting|Pending → Cancelled
type ReservationStatus string

const (
	ReservationStatusWaiting   ReservationStatus = "waiting"
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusCompleted ReservationStatus = "completed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusWaiting:   {ReservationStatusPending, ReservationStatusCompleted, ReservationStatusCancelled},
	ReservationStatusPending:   {ReservationStatusCompleted, ReservationStatusCancelled},
	ReservationStatusCompleted: {},
	ReservationStatusCancelled: {},
}

type Reservation struct {
	ID        string            `json:"id"`
	Barcode   string            `json:"barcode"`
	MemberID  string            `json:"member_id"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (r Reservation) Key() string { return r.ID }

func NewReservation(id, barcode, memberID string, at time.Time) Reservation {
	return Reservation{
		ID:        id,
		Barcode:   barcode,
		MemberID:  memberID,
		Status:    ReservationStatusWaiting,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// IsOpen is true until the reservation reaches a terminal state.
func (r *Reservation) IsOpen() bool {
	return r.Status == ReservationStatusWaiting || r.Status == ReservationStatusPending
}

func (r *Reservation) CanTransitionTo(next ReservationStatus) bool {
	for _, s := range reservationTransitions[r.Status] {
		if s == next {
			return true
		}
	}
	return false
}

func (r *Reservation) TransitionTo(next ReservationStatus, at time.Time) error {
	if !r.CanTransitionTo(next) {
		return errors.Wrapf(ErrInvalidTransition, "reservation %s: %s to %s", r.ID, r.Status, next)
	}
	r.Status = next
	r.UpdatedAt = at
	return nil
}
