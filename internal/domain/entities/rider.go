package entities

import "time"

// Rider requests rides. ActiveRideID is set while a ride is requested,
// accepted or started, which caps riders at one active ride.
type Rider struct {
	Party
	Reputation
	ActiveRideID string `json:"active_ride_id,omitempty"`
}

func (r Rider) Key() string { return r.ID }

func NewRider(id, name, email, phone string, at time.Time) Rider {
	return Rider{
		Party:      NewParty(id, name, email, phone, at),
		Reputation: NewReputation(),
	}
}

func (r *Rider) HasActiveRide() bool {
	return r.ActiveRideID != ""
}
