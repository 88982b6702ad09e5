// Package availability answers "what can be booked right now" without
// changing anything: catalog searches over books and the nearest-driver scan
// used by matching. Both read registry snapshots, so they run concurrently
// with transitions and never observe a half-applied one.
package availability

import (
	"context"
	"strings"

	"booking/internal/domain/entities"
	"booking/internal/repository"
)

// Catalog searches the book registry. Results keep registration order and
// are never nil.
type Catalog struct {
	books repository.BookRepository
}

func NewCatalog(books repository.BookRepository) *Catalog {
	return &Catalog{books: books}
}

// Search returns every book matching keep.
func (c *Catalog) Search(ctx context.Context, keep func(entities.Book) bool) []entities.Book {
	out := []entities.Book{}
	c.books.Scan(ctx, func(b entities.Book) bool {
		if keep(b) {
			out = append(out, b)
		}
		return true
	})
	return out
}

// SearchByTitle is a case-insensitive substring match on the title.
func (c *Catalog) SearchByTitle(ctx context.Context, query string) []entities.Book {
	q := normalize(query)
	return c.Search(ctx, func(b entities.Book) bool {
		return strings.Contains(normalize(b.Title), q)
	})
}

// SearchByAuthor matches when any author contains the query.
func (c *Catalog) SearchByAuthor(ctx context.Context, query string) []entities.Book {
	q := normalize(query)
	return c.Search(ctx, func(b entities.Book) bool {
		for _, a := range b.Authors {
			if strings.Contains(normalize(a), q) {
				return true
			}
		}
		return false
	})
}

func (c *Catalog) SearchBySubject(ctx context.Context, query string) []entities.Book {
	q := normalize(query)
	return c.Search(ctx, func(b entities.Book) bool {
		return strings.Contains(normalize(b.Subject), q)
	})
}

// Available lists the copies that can be checked out by anyone right now.
// Reference-only copies never circulate and are left out.
func (c *Catalog) Available(ctx context.Context) []entities.Book {
	return c.Search(ctx, func(b entities.Book) bool {
		return b.IsAvailable() && !b.ReferenceOnly
	})
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
