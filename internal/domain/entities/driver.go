package entities

import "time"

// DriverStatus is a typed string enum representing the driver's current state.
//
// Go Learning Note (Type Aliases for Enums):
// Go doesn't have a native enum keyword. The idiomatic pattern is to define a
// named type (usually based on string or int) and then declare constants of that
// type. String-based enums are preferred when the value will be serialized to
// JSON, because they're human-readable.
type DriverStatus string

const (
	DriverStatusAvailable DriverStatus = "available"
	DriverStatusBusy      DriverStatus = "busy"
	DriverStatusOffline   DriverStatus = "offline"
)

// Driver is both a registry entity (it is allocated to rides) and an actor
// capped at one active ride. Location is nil until the first position
// update; drivers without a position are never matched.
type Driver struct {
	Party
	Reputation
	Vehicle      Vehicle      `json:"vehicle"`
	Status       DriverStatus `json:"status"`
	Location     *Location    `json:"location,omitempty"`
	ActiveRideID string       `json:"active_ride_id,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (d Driver) Key() string { return d.ID }

// NewDriver creates a Driver with initial status set to Offline.
// Drivers must explicitly go online before they can be matched.
func NewDriver(id, name, email, phone string, vehicle Vehicle, at time.Time) Driver {
	return Driver{
		Party:      NewParty(id, name, email, phone, at),
		Reputation: NewReputation(),
		Vehicle:    vehicle,
		Status:     DriverStatusOffline,
		UpdatedAt:  at,
	}
}

// IsAvailable checks whether the driver can accept new ride requests.
func (d *Driver) IsAvailable() bool {
	return d.Status == DriverStatusAvailable
}

// SetStatus updates the driver's status and records the change timestamp.
//
// Go Learning Note (Methods with Pointer Receivers):
// The (d *Driver) receiver means this method can mutate the Driver. The
// registry hands out copies, so a service mutates its copy through these
// methods and then writes it back with Update.
func (d *Driver) SetStatus(status DriverStatus, at time.Time) {
	d.Status = status
	d.UpdatedAt = at
}

func (d *Driver) GoOnline(at time.Time) {
	d.SetStatus(DriverStatusAvailable, at)
}

func (d *Driver) GoOffline(at time.Time) {
	d.SetStatus(DriverStatusOffline, at)
}

// AssignRide marks the driver busy with rideID.
func (d *Driver) AssignRide(rideID string, at time.Time) {
	d.ActiveRideID = rideID
	d.SetStatus(DriverStatusBusy, at)
}

// ReleaseRide frees the driver after a ride completes or is cancelled.
func (d *Driver) ReleaseRide(at time.Time) {
	d.ActiveRideID = ""
	d.SetStatus(DriverStatusAvailable, at)
}

func (d *Driver) MoveTo(loc Location, at time.Time) {
	d.Location = &loc
	d.UpdatedAt = at
}
