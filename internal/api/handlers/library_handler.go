package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"booking/internal/api/middleware"
	"booking/internal/domain/entities"
	"booking/internal/services"
)

// LibraryHandler exposes the catalog to everyone, the desk operations to
// librarians and the lending operations to members.
type LibraryHandler struct {
	library *services.LibraryService
}

func NewLibraryHandler(library *services.LibraryService) *LibraryHandler {
	return &LibraryHandler{library: library}
}

type RegisterBookRequest struct {
	Barcode       string              `json:"barcode" binding:"required"`
	ISBN          string              `json:"isbn"`
	Title         string              `json:"title" binding:"required"`
	Authors       []string            `json:"authors" binding:"required,min=1"`
	Subject       string              `json:"subject"`
	Publisher     string              `json:"publisher"`
	Language      string              `json:"language"`
	Pages         int                 `json:"pages" binding:"gte=0"`
	Format        entities.BookFormat `json:"format"`
	Price         float64             `json:"price" binding:"gte=0"`
	RackLocation  string              `json:"rack_location"`
	ReferenceOnly bool                `json:"reference_only"`
}

// RegisterBook handles POST /books
func (h *LibraryHandler) RegisterBook(c *gin.Context) {
	var req RegisterBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	book := entities.NewBook(req.Barcode, req.Title, req.Authors, req.ReferenceOnly)
	book.ISBN = req.ISBN
	book.Subject = req.Subject
	book.Publisher = req.Publisher
	book.Language = req.Language
	book.Pages = req.Pages
	book.Price = req.Price
	book.RackLocation = req.RackLocation
	if req.Format != "" {
		book.Format = req.Format
	}

	book, err := h.library.RegisterBook(c.Request.Context(), book)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

// RemoveBook handles DELETE /books/:barcode
func (h *LibraryHandler) RemoveBook(c *gin.Context) {
	if err := h.library.RemoveBook(c.Request.Context(), c.Param("barcode")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkLost handles PATCH /books/:barcode/lost
func (h *LibraryHandler) MarkLost(c *gin.Context) {
	book, err := h.library.MarkLost(c.Request.Context(), c.Param("barcode"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

// GetBook handles GET /books/:barcode
func (h *LibraryHandler) GetBook(c *gin.Context) {
	book, err := h.library.GetBook(c.Request.Context(), c.Param("barcode"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

// SearchBooks handles GET /books?title=|author=|subject=|available=true.
// With no filter it lists the available copies.
func (h *LibraryHandler) SearchBooks(c *gin.Context) {
	ctx := c.Request.Context()
	var books []entities.Book
	switch {
	case c.Query("title") != "":
		books = h.library.SearchByTitle(ctx, c.Query("title"))
	case c.Query("author") != "":
		books = h.library.SearchByAuthor(ctx, c.Query("author"))
	case c.Query("subject") != "":
		books = h.library.SearchBySubject(ctx, c.Query("subject"))
	default:
		books = h.library.AvailableBooks(ctx)
	}
	c.JSON(http.StatusOK, gin.H{"books": books, "count": len(books)})
}

type RegisterMemberRequest struct {
	ID    string `json:"id" binding:"required"`
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"omitempty,email"`
	Phone string `json:"phone"`
}

// RegisterMember handles POST /members
func (h *LibraryHandler) RegisterMember(c *gin.Context) {
	var req RegisterMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.library.RegisterMember(c.Request.Context(), req.ID, req.Name, req.Email, req.Phone)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// SetMemberStatus handles PATCH /members/:id/block and /members/:id/unblock
func (h *LibraryHandler) SetMemberStatus(c *gin.Context) {
	var (
		m   entities.Member
		err error
	)
	if strings.HasSuffix(c.FullPath(), "/unblock") {
		m, err = h.library.UnblockMember(c.Request.Context(), c.Param("id"))
	} else {
		m, err = h.library.BlockMember(c.Request.Context(), c.Param("id"))
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Checkout handles POST /books/:barcode/checkout
func (h *LibraryHandler) Checkout(c *gin.Context) {
	lending, err := h.library.Checkout(c.Request.Context(), c.Param("barcode"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, lending)
}

// Return handles POST /books/:barcode/return
func (h *LibraryHandler) Return(c *gin.Context) {
	res, err := h.library.Return(c.Request.Context(), c.Param("barcode"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Renew handles POST /books/:barcode/renew
func (h *LibraryHandler) Renew(c *gin.Context) {
	res, err := h.library.Renew(c.Request.Context(), c.Param("barcode"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Reserve handles POST /books/:barcode/reserve
func (h *LibraryHandler) Reserve(c *gin.Context) {
	res, err := h.library.Reserve(c.Request.Context(), c.Param("barcode"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// CancelReservation handles DELETE /reservations/:id
func (h *LibraryHandler) CancelReservation(c *gin.Context) {
	res, err := h.library.CancelReservation(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// MyAccount handles GET /members/me
func (h *LibraryHandler) MyAccount(c *gin.Context) {
	ctx := c.Request.Context()
	id := middleware.GetUserID(c)
	m, err := h.library.GetMember(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"member":       m,
		"lendings":     h.library.LendingsByMember(ctx, id),
		"reservations": h.library.ReservationsByMember(ctx, id),
		"fines":        h.library.FinesByMember(ctx, id),
	})
}

// GetFine handles GET /fines/:id
func (h *LibraryHandler) GetFine(c *gin.Context) {
	fine, err := h.library.GetFine(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fine)
}

// PayFine handles POST /fines/:id/pay
func (h *LibraryHandler) PayFine(c *gin.Context) {
	fine, err := h.library.CollectFine(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fine)
}
