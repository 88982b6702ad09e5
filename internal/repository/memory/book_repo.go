package memory

import (
	"booking/internal/domain/entities"
	"booking/internal/repository"
)

// BookRepository is the catalog registry, keyed by barcode.
type BookRepository struct {
	*Registry[entities.Book]
}

var _ repository.BookRepository = (*BookRepository)(nil)

func NewBookRepository() *BookRepository {
	return &BookRepository{Registry: NewRegistry[entities.Book]("book")}
}
