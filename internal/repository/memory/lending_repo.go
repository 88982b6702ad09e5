package memory

import (
	"context"

	"booking/internal/domain/entities"
	"booking/internal/repository"
)

type LendingRepository struct {
	*Registry[entities.Lending]
}

var _ repository.LendingRepository = (*LendingRepository)(nil)

func NewLendingRepository() *LendingRepository {
	return &LendingRepository{Registry: NewRegistry[entities.Lending]("lending")}
}

// OpenByBarcode finds the lending currently holding a copy. There is at most
// one while the library service is the only writer.
func (r *LendingRepository) OpenByBarcode(ctx context.Context, barcode string) (entities.Lending, bool) {
	return first(ctx, r.Registry, func(l entities.Lending) bool {
		return l.Barcode == barcode && l.IsOpen()
	})
}

func (r *LendingRepository) ByMember(ctx context.Context, memberID string) []entities.Lending {
	return filter(ctx, r.Registry, func(l entities.Lending) bool {
		return l.MemberID == memberID
	})
}
