package entities

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// RideStatus represents the current lifecycle state of a ride.
//
// Go Learning Note (State Machines in Go):
// This file implements a finite state machine (FSM) using a map of valid
// transitions. The ride's lifecycle is:
//
//	Requested → Accepted → Started → Completed
//	(any non-terminal state can also transition to Cancelled)
type RideStatus string

const (
	RideStatusRequested RideStatus = "requested"
	RideStatusAccepted  RideStatus = "accepted"
	RideStatusStarted   RideStatus = "started"
	RideStatusCompleted RideStatus = "completed"
	RideStatusCancelled RideStatus = "cancelled"
)

// rideTransitions IS the state machine: CanTransitionTo looks up the
// current status and checks whether the target is listed. Terminal states
// have empty slices.
var rideTransitions = map[RideStatus][]RideStatus{
	RideStatusRequested: {RideStatusAccepted, RideStatusCancelled},
	RideStatusAccepted:  {RideStatusStarted, RideStatusCancelled},
	RideStatusStarted:   {RideStatusCompleted, RideStatusCancelled},
	RideStatusCompleted: {},
	RideStatusCancelled: {},
}

// Ride tracks one trip from request to completion. Timestamps are pointers
// so "not yet recorded" is distinguishable from the zero time; the fare
// computation depends on that distinction.
type Ride struct {
	ID            string          `json:"id"`
	RiderID       string          `json:"rider_id"`
	DriverID      string          `json:"driver_id,omitempty"`
	Class         VehicleClass    `json:"class"`
	Status        RideStatus      `json:"status"`
	Pickup        Location        `json:"pickup"`
	Dropoff       Location        `json:"dropoff"`
	DistanceKm    float64         `json:"distance_km"`
	EstimatedFare decimal.Decimal `json:"estimated_fare"`
	FareID        string          `json:"fare_id,omitempty"`
	PaymentID     string          `json:"payment_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	AcceptedAt    *time.Time      `json:"accepted_at,omitempty"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	EndedAt       *time.Time      `json:"ended_at,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`

	// DriverScore is what the rider gave the driver, RiderScore the other
	// way round. Zero means not rated yet.
	DriverScore int `json:"driver_score,omitempty"`
	RiderScore  int `json:"rider_score,omitempty"`
}

func (r Ride) Key() string { return r.ID }

// NewRide creates a Ride in the Requested state. The distance is the
// great-circle distance between pickup and drop-off.
func NewRide(id, riderID string, class VehicleClass, pickup, dropoff Location, at time.Time) Ride {
	return Ride{
		ID:         id,
		RiderID:    riderID,
		Class:      class,
		Status:     RideStatusRequested,
		Pickup:     pickup,
		Dropoff:    dropoff,
		DistanceKm: pickup.DistanceTo(dropoff),
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

// IsActive is true while the ride holds its rider (and possibly a driver).
func (r *Ride) IsActive() bool {
	switch r.Status {
	case RideStatusRequested, RideStatusAccepted, RideStatusStarted:
		return true
	}
	return false
}

func (r *Ride) IsTerminal() bool {
	return !r.IsActive()
}

// CanTransitionTo checks if moving to newStatus is a valid state change.
//
// Go Learning Note (Comma-ok Idiom):
// The pattern `value, exists := someMap[key]` is the "comma-ok" idiom. The
// second return value reports whether the key was present, so an unknown
// status is rejected instead of silently reading an empty slice.
func (r *Ride) CanTransitionTo(newStatus RideStatus) bool {
	allowed, exists := rideTransitions[r.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo moves the ride to newStatus at the given instant and records
// the milestone timestamp for that phase.
func (r *Ride) TransitionTo(newStatus RideStatus, at time.Time) error {
	if !r.CanTransitionTo(newStatus) {
		return errors.Wrapf(ErrInvalidTransition, "ride %s: %s to %s", r.ID, r.Status, newStatus)
	}
	r.Status = newStatus
	r.UpdatedAt = at

	switch newStatus {
	case RideStatusAccepted:
		r.AcceptedAt = &at
	case RideStatusStarted:
		r.StartedAt = &at
	case RideStatusCompleted:
		r.EndedAt = &at
	case RideStatusCancelled:
		r.CancelledAt = &at
	}
	return nil
}

// Accept assigns a driver and transitions to Accepted.
func (r *Ride) Accept(driverID string, at time.Time) error {
	if err := r.TransitionTo(RideStatusAccepted, at); err != nil {
		return err
	}
	r.DriverID = driverID
	return nil
}

func (r *Ride) Start(at time.Time) error {
	return r.TransitionTo(RideStatusStarted, at)
}

func (r *Ride) Complete(at time.Time) error {
	return r.TransitionTo(RideStatusCompleted, at)
}

func (r *Ride) Cancel(at time.Time) error {
	return r.TransitionTo(RideStatusCancelled, at)
}

// RateDriver records the rider's score for the driver. Only a completed
// ride can be rated, and only once.
func (r *Ride) RateDriver(score int, at time.Time) error {
	if err := r.checkRatable(r.DriverScore, score); err != nil {
		return err
	}
	r.DriverScore = score
	r.UpdatedAt = at
	return nil
}

// RateRider records the driver's score for the rider.
func (r *Ride) RateRider(score int, at time.Time) error {
	if err := r.checkRatable(r.RiderScore, score); err != nil {
		return err
	}
	r.RiderScore = score
	r.UpdatedAt = at
	return nil
}

func (r *Ride) checkRatable(current, score int) error {
	if err := ValidateScore(score); err != nil {
		return err
	}
	if r.Status != RideStatusCompleted {
		return errors.Wrapf(ErrInvalidTransition, "ride %s is %s, only completed rides are rated", r.ID, r.Status)
	}
	if current != 0 {
		return errors.Wrapf(ErrInvalidTransition, "ride %s already rated", r.ID)
	}
	return nil
}
