package services_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"booking/internal/domain/entities"
	"booking/internal/ledger"
	"booking/internal/repository/memory"
	"booking/internal/services"
	"booking/internal/services/mocks"
)

func TestLibrary_CheckoutAndReturn(t *testing.T) {
	f := newFixture(t)
	f.book(t, "TB001", false)
	f.member(t, "M001")
	f.member(t, "M002")

	lending, err := f.library.Checkout(f.ctx, "TB001", "M001")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(10*24*time.Hour), lending.DueAt)

	book, _ := f.library.GetBook(f.ctx, "TB001")
	assert.Equal(t, entities.BookStatusLoaned, book.Status)
	m, _ := f.library.GetMember(f.ctx, "M001")
	assert.Equal(t, 1, m.ActiveLendings)

	_, err = f.library.Checkout(f.ctx, "TB001", "M002")
	assert.True(t, errors.Is(err, entities.ErrInvalidTransition), "got %v", err)

	_, err = f.library.Return(f.ctx, "TB001", "M002")
	assert.True(t, errors.Is(err, entities.ErrMemberMismatch), "got %v", err)

	f.clock.Advance(3 * 24 * time.Hour)
	res, err := f.library.Return(f.ctx, "TB001", "M001")
	require.NoError(t, err)
	assert.Nil(t, res.Fine)
	assert.Nil(t, res.Reservation)
	assert.Equal(t, entities.LendingStatusReturned, res.Lending.Status)

	book, _ = f.library.GetBook(f.ctx, "TB001")
	assert.Equal(t, entities.BookStatusAvailable, book.Status)
	m, _ = f.library.GetMember(f.ctx, "M001")
	assert.Equal(t, 0, m.ActiveLendings)

	assert.Len(t, f.events.ofType(services.EventBookCheckedOut), 1)
	assert.Len(t, f.events.ofType(services.EventBookReturned), 1)
	assert.Empty(t, f.events.ofType(services.EventFineAssessed))

	_, err = f.library.Return(f.ctx, "TB001", "M001")
	assert.True(t, errors.Is(err, entities.ErrNotFound))
}

func TestLibrary_ReferenceOnlyBookIsNotLent(t *testing.T) {
	f := newFixture(t)
	f.book(t, "RB001", true)
	f.member(t, "M001")

	_, err := f.library.Checkout(f.ctx, "RB001", "M001")
	assert.True(t, errors.Is(err, entities.ErrNotCirculable), "got %v", err)

	book, _ := f.library.GetBook(f.ctx, "RB001")
	assert.Equal(t, entities.BookStatusAvailable, book.Status)
	m, _ := f.library.GetMember(f.ctx, "M001")
	assert.Equal(t, 0, m.ActiveLendings)
	assert.Empty(t, f.library.LendingsByMember(f.ctx, "M001"))
	assert.Empty(t, f.library.AvailableBooks(f.ctx), "reference copies are never listed as available")
}

func TestLibrary_LendingCap(t *testing.T) {
	f := newFixture(t)
	f.member(t, "M001")
	limit := f.cfg.Library.MaxBooksPerMember
	for i := 0; i <= limit; i++ {
		f.book(t, fmt.Sprintf("B%03d", i), false)
	}
	for i := 0; i < limit; i++ {
		_, err := f.library.Checkout(f.ctx, fmt.Sprintf("B%03d", i), "M001")
		require.NoError(t, err)
	}

	over := fmt.Sprintf("B%03d", limit)
	_, err := f.library.Checkout(f.ctx, over, "M001")
	assert.True(t, errors.Is(err, entities.ErrLimitExceeded), "got %v", err)

	book, _ := f.library.GetBook(f.ctx, over)
	assert.Equal(t, entities.BookStatusAvailable, book.Status)
	m, _ := f.library.GetMember(f.ctx, "M001")
	assert.Equal(t, limit, m.ActiveLendings)
	assert.Len(t, f.library.LendingsByMember(f.ctx, "M001"), limit)
}

func TestLibrary_OverdueReturnIsFined(t *testing.T) {
	f := newFixture(t)
	f.book(t, "TB001", false)
	f.member(t, "M001")

	_, err := f.library.Checkout(f.ctx, "TB001", "M001")
	require.NoError(t, err)

	f.clock.Advance(15 * 24 * time.Hour)
	res, err := f.library.Return(f.ctx, "TB001", "M001")
	require.NoError(t, err)
	require.NotNil(t, res.Fine)
	assert.Equal(t, 5, res.Fine.DaysOverdue)
	assert.Equal(t, "5.00", res.Fine.Amount.StringFixed(2))

	fined := f.events.ofType(services.EventFineAssessed)
	require.Len(t, fined, 1)
	assert.Equal(t, "M001", fined[0].Recipient)
	assert.Equal(t, "5.00", fined[0].Data["amount"])

	fines := f.library.FinesByMember(f.ctx, "M001")
	require.Len(t, fines, 1)
	got, err := f.library.GetFine(f.ctx, fines[0].ID, "M001")
	require.NoError(t, err)
	assert.Equal(t, res.Fine.ID, got.ID)
	_, err = f.library.GetFine(f.ctx, fines[0].ID, "M002")
	assert.True(t, errors.Is(err, entities.ErrMemberMismatch), "got %v", err)
	_, err = f.library.CollectFine(f.ctx, fines[0].ID, "M001")
	require.NoError(t, err)
	assert.True(t, f.ledger.Outstanding(f.ctx, "M001").IsZero())
}

func TestLibrary_ReservationHandOver(t *testing.T) {
	f := newFixture(t)
	f.book(t, "TB001", false)
	for _, id := range []string{"M001", "M002", "M003"} {
		f.member(t, id)
	}

	_, err := f.library.Reserve(f.ctx, "TB001", "M002")
	assert.True(t, errors.Is(err, entities.ErrInvalidTransition), "available copies are checked out, not reserved")

	_, err = f.library.Checkout(f.ctx, "TB001", "M001")
	require.NoError(t, err)

	_, err = f.library.Reserve(f.ctx, "TB001", "M001")
	assert.True(t, errors.Is(err, entities.ErrInvalidTransition), "holder cannot reserve its own copy")

	res, err := f.library.Reserve(f.ctx, "TB001", "M002")
	require.NoError(t, err)
	assert.Equal(t, entities.ReservationStatusWaiting, res.Status)

	_, err = f.library.Reserve(f.ctx, "TB001", "M003")
	assert.True(t, errors.Is(err, entities.ErrReservedByOther))
	_, err = f.library.Reserve(f.ctx, "TB001", "M002")
	assert.True(t, errors.Is(err, entities.ErrInvalidTransition))

	_, err = f.library.Renew(f.ctx, "TB001", "M001")
	assert.True(t, errors.Is(err, entities.ErrReservedByOther), "got %v", err)

	ret, err := f.library.Return(f.ctx, "TB001", "M001")
	require.NoError(t, err)
	require.NotNil(t, ret.Reservation)
	assert.Equal(t, entities.ReservationStatusPending, ret.Reservation.Status)
	book, _ := f.library.GetBook(f.ctx, "TB001")
	assert.Equal(t, entities.BookStatusReserved, book.Status)

	avail := f.events.ofType(services.EventReservationAvailable)
	require.Len(t, avail, 1)
	assert.Equal(t, "M002", avail[0].Recipient)

	_, err = f.library.Checkout(f.ctx, "TB001", "M003")
	assert.True(t, errors.Is(err, entities.ErrReservedByOther), "got %v", err)

	_, err = f.library.Checkout(f.ctx, "TB001", "M002")
	require.NoError(t, err)
	reservations := f.library.ReservationsByMember(f.ctx, "M002")
	require.Len(t, reservations, 1)
	assert.Equal(t, entities.ReservationStatusCompleted, reservations[0].Status)
}

func TestLibrary_CancelHeldReservation(t *testing.T) {
	f := newFixture(t)
	f.book(t, "TB001", false)
	f.member(t, "M001")
	f.member(t, "M002")

	_, err := f.library.Checkout(f.ctx, "TB001", "M001")
	require.NoError(t, err)
	res, err := f.library.Reserve(f.ctx, "TB001", "M002")
	require.NoError(t, err)
	_, err = f.library.Return(f.ctx, "TB001", "M001")
	require.NoError(t, err)

	_, err = f.library.CancelReservation(f.ctx, res.ID, "M001")
	assert.True(t, errors.Is(err, entities.ErrMemberMismatch))

	cancelled, err := f.library.CancelReservation(f.ctx, res.ID, "M002")
	require.NoError(t, err)
	assert.Equal(t, entities.ReservationStatusCancelled, cancelled.Status)
	book, _ := f.library.GetBook(f.ctx, "TB001")
	assert.Equal(t, entities.BookStatusAvailable, book.Status)

	_, err = f.library.CancelReservation(f.ctx, res.ID, "M002")
	assert.True(t, errors.Is(err, entities.ErrInvalidTransition))
}

func TestLibrary_Renew(t *testing.T) {
	f := newFixture(t)
	f.book(t, "TB001", false)
	f.member(t, "M001")

	first, err := f.library.Checkout(f.ctx, "TB001", "M001")
	require.NoError(t, err)

	f.clock.Advance(12 * 24 * time.Hour)
	renewed, err := f.library.Renew(f.ctx, "TB001", "M001")
	require.NoError(t, err)
	assert.Equal(t, first.ID, renewed.Returned.ID)
	require.NotNil(t, renewed.Fine)
	assert.Equal(t, 2, renewed.Fine.DaysOverdue)
	assert.Equal(t, t0.Add(22*24*time.Hour), renewed.Lending.DueAt)

	m, _ := f.library.GetMember(f.ctx, "M001")
	assert.Equal(t, 1, m.ActiveLendings)
	book, _ := f.library.GetBook(f.ctx, "TB001")
	assert.Equal(t, entities.BookStatusLoaned, book.Status)
	assert.Len(t, f.library.LendingsByMember(f.ctx, "M001"), 2)
}

func TestLibrary_BlockedMember(t *testing.T) {
	f := newFixture(t)
	f.book(t, "TB001", false)
	f.book(t, "TB002", false)
	f.member(t, "M001")

	_, err := f.library.Checkout(f.ctx, "TB001", "M001")
	require.NoError(t, err)
	_, err = f.library.BlockMember(f.ctx, "M001")
	require.NoError(t, err)

	_, err = f.library.Checkout(f.ctx, "TB002", "M001")
	assert.True(t, errors.Is(err, entities.ErrAccountInactive))
	_, err = f.library.Renew(f.ctx, "TB001", "M001")
	assert.True(t, errors.Is(err, entities.ErrAccountInactive))
	_, err = f.library.Return(f.ctx, "TB001", "M001")
	assert.NoError(t, err, "blocked members can still bring books back")

	_, err = f.library.UnblockMember(f.ctx, "M001")
	require.NoError(t, err)
	_, err = f.library.Checkout(f.ctx, "TB002", "M001")
	assert.NoError(t, err)
}

func TestLibrary_RemoveAndLose(t *testing.T) {
	f := newFixture(t)
	f.book(t, "TB001", false)
	f.book(t, "TB002", false)
	f.member(t, "M001")

	_, err := f.library.RegisterBook(f.ctx, entities.NewBook("TB001", "Dup", []string{"A"}, false))
	assert.True(t, errors.Is(err, entities.ErrDuplicateKey))
	_, err = f.library.RegisterBook(f.ctx, entities.NewBook("TB003", "", []string{"A"}, false))
	assert.True(t, errors.Is(err, entities.ErrInvalidArgument))

	_, err = f.library.Checkout(f.ctx, "TB001", "M001")
	require.NoError(t, err)
	assert.True(t, errors.Is(f.library.RemoveBook(f.ctx, "TB001"), entities.ErrInvalidTransition))
	_, err = f.library.MarkLost(f.ctx, "TB001")
	assert.True(t, errors.Is(err, entities.ErrInvalidTransition))

	lost, err := f.library.MarkLost(f.ctx, "TB002")
	require.NoError(t, err)
	assert.Equal(t, entities.BookStatusLost, lost.Status)
	_, err = f.library.Checkout(f.ctx, "TB002", "M001")
	assert.True(t, errors.Is(err, entities.ErrInvalidTransition))
	_, err = f.library.Reserve(f.ctx, "TB002", "M001")
	assert.True(t, errors.Is(err, entities.ErrNotCirculable))

	require.NoError(t, f.library.RemoveBook(f.ctx, "TB002"))
	_, err = f.library.GetBook(f.ctx, "TB002")
	assert.True(t, errors.Is(err, entities.ErrNotFound))
}

func TestLibrary_Search(t *testing.T) {
	f := newFixture(t)
	_, err := f.library.RegisterBook(f.ctx, entities.NewBook("B1", "The Go Programming Language", []string{"Donovan", "Kernighan"}, false))
	require.NoError(t, err)
	_, err = f.library.RegisterBook(f.ctx, entities.NewBook("B2", "Concurrency in Go", []string{"Cox-Buday"}, false))
	require.NoError(t, err)

	assert.Len(t, f.library.SearchByTitle(f.ctx, "go"), 2)
	byAuthor := f.library.SearchByAuthor(f.ctx, "kernighan")
	require.Len(t, byAuthor, 1)
	assert.Equal(t, "B1", byAuthor[0].Barcode)
	assert.NotNil(t, f.library.SearchByTitle(f.ctx, "rust"))
	assert.Empty(t, f.library.SearchByTitle(f.ctx, "rust"))
}

// Many members race for one copy: exactly one lending, one loaned book.
func TestLibrary_ConcurrentCheckoutSingleWinner(t *testing.T) {
	f := newFixture(t)
	f.book(t, "TB001", false)
	const n = 32
	for i := 0; i < n; i++ {
		f.member(t, fmt.Sprintf("M%03d", i))
	}

	results := make([]error, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			_, results[i] = f.library.Checkout(f.ctx, "TB001", fmt.Sprintf("M%03d", i))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, entities.ErrInvalidTransition), "got %v", err)
	}
	assert.Equal(t, 1, wins)

	total := 0
	for i := 0; i < n; i++ {
		m, _ := f.library.GetMember(f.ctx, fmt.Sprintf("M%03d", i))
		total += m.ActiveLendings
	}
	assert.Equal(t, 1, total)
}

func TestLibrary_TimestampsFollowClock(t *testing.T) {
	f := newFixture(t)
	f.book(t, "TB001", false)
	f.member(t, "M001")

	m, _ := f.library.GetMember(f.ctx, "M001")
	assert.True(t, m.CreatedAt.Equal(t0), "member created at %v", m.CreatedAt)

	f.clock.Advance(2 * time.Hour)
	_, err := f.library.Checkout(f.ctx, "TB001", "M001")
	require.NoError(t, err)
	book, _ := f.library.GetBook(f.ctx, "TB001")
	assert.True(t, book.AddedAt.Equal(t0))
	assert.True(t, book.UpdatedAt.Equal(t0.Add(2*time.Hour)), "book updated at %v", book.UpdatedAt)

	f.clock.Advance(time.Hour)
	_, err = f.library.Return(f.ctx, "TB001", "M001")
	require.NoError(t, err)
	book, _ = f.library.GetBook(f.ctx, "TB001")
	assert.True(t, book.UpdatedAt.Equal(t0.Add(3*time.Hour)), "book updated at %v", book.UpdatedAt)
}

// brokenFines records nothing and fails every assessment.
type brokenFines struct {
	*ledger.Ledger
}

func (brokenFines) AssessFine(context.Context, entities.Lending) (ledger.Fine, bool, error) {
	return ledger.Fine{}, false, errors.New("ledger unavailable")
}

func TestLibrary_FineFailureKeepsTheReturn(t *testing.T) {
	f := newFixture(t)
	notifier := mocks.NewMockNotifier(gomock.NewController(t))
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).AnyTimes()
	core, logs := observer.New(zap.WarnLevel)

	library := services.NewLibraryService(f.cfg.Library,
		memory.NewBookRepository(),
		memory.NewMemberRepository(),
		memory.NewLendingRepository(),
		memory.NewReservationRepository(),
		brokenFines{Ledger: f.ledger}, memory.NewLockManager(), notifier, zap.New(core),
		services.WithClock(f.clock.Now))

	_, err := library.RegisterBook(f.ctx, entities.NewBook("TB001", "Title", []string{"Author"}, false))
	require.NoError(t, err)
	_, err = library.RegisterMember(f.ctx, "M001", "Ada", "", "")
	require.NoError(t, err)
	_, err = library.Checkout(f.ctx, "TB001", "M001")
	require.NoError(t, err)

	f.clock.Advance(15 * 24 * time.Hour)
	res, err := library.Return(f.ctx, "TB001", "M001")
	require.NoError(t, err)
	assert.Nil(t, res.Fine)
	assert.Equal(t, entities.LendingStatusReturned, res.Lending.Status)

	book, _ := library.GetBook(f.ctx, "TB001")
	assert.Equal(t, entities.BookStatusAvailable, book.Status)
	m, _ := library.GetMember(f.ctx, "M001")
	assert.Equal(t, 0, m.ActiveLendings)
	assert.Equal(t, 1, logs.FilterMessage("fine assessment failed").Len())
}
