package memory

import (
	"booking/internal/domain/entities"
	"booking/internal/repository"
)

type RiderRepository struct {
	*Registry[entities.Rider]
}

var _ repository.RiderRepository = (*RiderRepository)(nil)

func NewRiderRepository() *RiderRepository {
	return &RiderRepository{Registry: NewRegistry[entities.Rider]("rider")}
}
