// Package entities defines the core domain models of the booking engine:
// the registry-owned items (books, drivers), the actors that transact on
// them (members, riders, drivers) and the transactions themselves
// (lendings, reservations, rides). They have no dependencies on storage,
// HTTP or the notification sinks.
//
// Go Learning Note (Composition Instead of Inheritance):
// Members, riders and drivers all share identity and contact fields. Rather
// than a Person base class with subclasses, each actor embeds Party. The
// embedded fields are promoted, so member.Name works exactly as if Name were
// declared on Member, while the role-specific fields stay on the outer
// struct. There is no "is-a" relationship to get wrong.
package entities

import "time"

// Party holds the identity and contact details every actor carries.
type Party struct {
	ID        string    `json:"id" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	Email     string    `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewParty creates an identity registered at the given instant.
func NewParty(id, name, email, phone string, at time.Time) Party {
	return Party{
		ID:        id,
		Name:      name,
		Email:     email,
		Phone:     phone,
		CreatedAt: at,
	}
}
