package entities

import "time"

// BookStatus is the circulation state of a single physical copy.
type BookStatus string

const (
	BookStatusAvailable BookStatus = "available"
	BookStatusReserved  BookStatus = "reserved"
	BookStatusLoaned    BookStatus = "loaned"
	BookStatusLost      BookStatus = "lost"
)

type BookFormat string

const (
	BookFormatHardcover BookFormat = "hardcover"
	BookFormatPaperback BookFormat = "paperback"
	BookFormatAudioBook BookFormat = "audiobook"
	BookFormatEbook     BookFormat = "ebook"
	BookFormatNewspaper BookFormat = "newspaper"
	BookFormatMagazine  BookFormat = "magazine"
	BookFormatJournal   BookFormat = "journal"
)

// Book is one physical copy identified by its barcode. Several copies may
// share an ISBN; the registry is keyed on the barcode.
type Book struct {
	Barcode       string     `json:"barcode" validate:"required"`
	ISBN          string     `json:"isbn,omitempty"`
	Title         string     `json:"title" validate:"required"`
	Authors       []string   `json:"authors" validate:"min=1,dive,required"`
	Subject       string     `json:"subject,omitempty"`
	Publisher     string     `json:"publisher,omitempty"`
	Language      string     `json:"language,omitempty"`
	Pages         int        `json:"pages,omitempty" validate:"gte=0"`
	Format        BookFormat `json:"format,omitempty"`
	Price         float64    `json:"price,omitempty" validate:"gte=0"`
	RackLocation  string     `json:"rack_location,omitempty"`
	ReferenceOnly bool       `json:"reference_only"`
	Status        BookStatus `json:"status"`
	AddedAt       time.Time  `json:"added_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Key implements the registry key contract.
func (b Book) Key() string { return b.Barcode }

// NewBook creates an available copy. Formats default to paperback. The
// timestamps are stamped when the copy is registered.
func NewBook(barcode, title string, authors []string, referenceOnly bool) Book {
	return Book{
		Barcode:       barcode,
		Title:         title,
		Authors:       authors,
		Format:        BookFormatPaperback,
		ReferenceOnly: referenceOnly,
		Status:        BookStatusAvailable,
	}
}

func (b *Book) IsAvailable() bool {
	return b.Status == BookStatusAvailable
}

func (b *Book) SetStatus(status BookStatus, at time.Time) {
	b.Status = status
	b.UpdatedAt = at
}
