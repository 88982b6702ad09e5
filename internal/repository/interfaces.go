// Package repository declares the storage contracts the services depend on.
// The only implementation is the in-memory one under memory/; the
// interfaces keep the services testable and free of storage details.
package repository

import (
	"context"

	"booking/internal/domain/entities"
)

// Keyed is implemented by everything a registry can hold.
type Keyed interface {
	Key() string
}

// Registry is a keyed collection that remembers registration order.
//
// Go Learning Note (Generic Interfaces):
// Since Go 1.18 an interface can take type parameters. Registry[T] describes
// the same five operations for books, drivers and rides alike, and the typed
// repositories below embed an instantiation (Registry[entities.Book]) and
// add their own secondary queries on top.
type Registry[T Keyed] interface {
	Register(ctx context.Context, v T) error
	Get(ctx context.Context, key string) (T, error)
	Update(ctx context.Context, v T) error
	Remove(ctx context.Context, key string) error
	List(ctx context.Context) []T
	Scan(ctx context.Context, fn func(T) bool)
	Len() int
}

type BookRepository interface {
	Registry[entities.Book]
}

type MemberRepository interface {
	Registry[entities.Member]
}

type DriverRepository interface {
	Registry[entities.Driver]
	Available(ctx context.Context, class entities.VehicleClass) []entities.Driver
}

type RiderRepository interface {
	Registry[entities.Rider]
}

type RideRepository interface {
	Registry[entities.Ride]
	ByRider(ctx context.Context, riderID string) []entities.Ride
	ByDriver(ctx context.Context, driverID string) []entities.Ride
	ActiveByRider(ctx context.Context, riderID string) (entities.Ride, bool)
}

type LendingRepository interface {
	Registry[entities.Lending]
	OpenByBarcode(ctx context.Context, barcode string) (entities.Lending, bool)
	ByMember(ctx context.Context, memberID string) []entities.Lending
}

type ReservationRepository interface {
	Registry[entities.Reservation]
	OpenByBarcode(ctx context.Context, barcode string) (entities.Reservation, bool)
	ByMember(ctx context.Context, memberID string) []entities.Reservation
}

// Locker serializes transitions that touch the same entities. LockAll
// acquires every key or none and returns the function that releases them.
type Locker interface {
	LockAll(ctx context.Context, keys ...string) (unlock func(), err error)
}
