package memory

import (
	"context"

	"booking/internal/domain/entities"
	"booking/internal/repository"
)

type ReservationRepository struct {
	*Registry[entities.Reservation]
}

var _ repository.ReservationRepository = (*ReservationRepository)(nil)

func NewReservationRepository() *ReservationRepository {
	return &ReservationRepository{Registry: NewRegistry[entities.Reservation]("reservation")}
}

// OpenByBarcode returns the waiting or pending reservation on a copy.
func (r *ReservationRepository) OpenByBarcode(ctx context.Context, barcode string) (entities.Reservation, bool) {
	return first(ctx, r.Registry, func(res entities.Reservation) bool {
		return res.Barcode == barcode && res.IsOpen()
	})
}

func (r *ReservationRepository) ByMember(ctx context.Context, memberID string) []entities.Reservation {
	return filter(ctx, r.Registry, func(res entities.Reservation) bool {
		return res.MemberID == memberID
	})
}
