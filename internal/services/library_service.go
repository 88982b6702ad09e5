package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"booking/internal/availability"
	"booking/internal/config"
	"booking/internal/domain/entities"
	"booking/internal/ledger"
	"booking/internal/repository"
	"booking/internal/repository/memory"
	"booking/pkg/utils"
)

// FineLedger is the part of the ledger the library records fines in.
type FineLedger interface {
	AssessFine(ctx context.Context, lending entities.Lending) (ledger.Fine, bool, error)
	CollectFine(ctx context.Context, fineID, memberID string) (ledger.Fine, error)
	Fine(ctx context.Context, fineID string) (ledger.Fine, error)
	FinesByMember(ctx context.Context, memberID string) []ledger.Fine
}

var _ FineLedger = (*ledger.Ledger)(nil)

// LibraryService runs the lending lifecycle: checkout, return, reservation,
// renewal and the fines they leave behind.
//
// Every transition follows the same shape:
//  1. lock the book and member keys
//  2. read fresh copies from the registries
//  3. run all checks, in a fixed order, before touching anything
//  4. write the changed copies back and notify
//
// Step 3 finishing before step 4 starts is what makes a rejected operation
// side-effect free.
type LibraryService struct {
	cfg          config.LibraryConfig
	books        repository.BookRepository
	members      repository.MemberRepository
	lendings     repository.LendingRepository
	reservations repository.ReservationRepository
	catalog      *availability.Catalog
	ledger       FineLedger
	locks        repository.Locker
	notifier     Notifier
	now          func() time.Time
	log          *zap.Logger
}

func NewLibraryService(
	cfg config.LibraryConfig,
	books repository.BookRepository,
	members repository.MemberRepository,
	lendings repository.LendingRepository,
	reservations repository.ReservationRepository,
	ldg FineLedger,
	locks repository.Locker,
	notifier Notifier,
	log *zap.Logger,
	opts ...Option,
) *LibraryService {
	o := buildOptions(opts)
	return &LibraryService{
		cfg:          cfg,
		books:        books,
		members:      members,
		lendings:     lendings,
		reservations: reservations,
		catalog:      availability.NewCatalog(books),
		ledger:       ldg,
		locks:        locks,
		notifier:     notifier,
		now:          o.now,
		log:          log,
	}
}

// ReturnResult is what a return leaves behind: the closed lending, the fine
// if the copy was late and the reservation now holding the copy, if any.
type ReturnResult struct {
	Lending     entities.Lending      `json:"lending"`
	Fine        *ledger.Fine          `json:"fine,omitempty"`
	Reservation *entities.Reservation `json:"reservation,omitempty"`
}

// RenewResult pairs the lending closed by a renewal with the one replacing it.
type RenewResult struct {
	Returned entities.Lending `json:"returned"`
	Fine     *ledger.Fine     `json:"fine,omitempty"`
	Lending  entities.Lending `json:"lending"`
}

func (s *LibraryService) lock(ctx context.Context, barcode, memberID string) (func(), error) {
	keys := []string{memory.BookKey(barcode)}
	if memberID != "" {
		keys = append(keys, memory.MemberKey(memberID))
	}
	return s.locks.LockAll(ctx, keys...)
}

// RegisterBook adds a copy to the catalog as available.
func (s *LibraryService) RegisterBook(ctx context.Context, book entities.Book) (entities.Book, error) {
	now := s.now()
	book.Status = entities.BookStatusAvailable
	book.AddedAt, book.UpdatedAt = now, now
	if book.Format == "" {
		book.Format = entities.BookFormatPaperback
	}
	if err := validateStruct(book); err != nil {
		return entities.Book{}, err
	}
	if err := s.books.Register(ctx, book); err != nil {
		return entities.Book{}, err
	}
	s.log.Debug("book registered", zap.String("barcode", book.Barcode))
	return book, nil
}

// RemoveBook withdraws a copy. A copy out on loan or held for a reservation
// cannot be removed.
func (s *LibraryService) RemoveBook(ctx context.Context, barcode string) error {
	unlock, err := s.lock(ctx, barcode, "")
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.books.Get(ctx, barcode); err != nil {
		return err
	}
	if _, open := s.lendings.OpenByBarcode(ctx, barcode); open {
		return errors.Wrapf(entities.ErrInvalidTransition, "book %s is on loan", barcode)
	}
	if _, open := s.reservations.OpenByBarcode(ctx, barcode); open {
		return errors.Wrapf(entities.ErrInvalidTransition, "book %s is reserved", barcode)
	}
	return s.books.Remove(ctx, barcode)
}

// MarkLost takes an available copy out of circulation for good.
func (s *LibraryService) MarkLost(ctx context.Context, barcode string) (entities.Book, error) {
	unlock, err := s.lock(ctx, barcode, "")
	if err != nil {
		return entities.Book{}, err
	}
	defer unlock()

	book, err := s.books.Get(ctx, barcode)
	if err != nil {
		return entities.Book{}, err
	}
	if book.Status != entities.BookStatusAvailable {
		return entities.Book{}, errors.Wrapf(entities.ErrInvalidTransition, "book %s is %s", barcode, book.Status)
	}
	book.SetStatus(entities.BookStatusLost, s.now())
	if err := s.books.Update(ctx, book); err != nil {
		return entities.Book{}, err
	}
	return book, nil
}

func (s *LibraryService) GetBook(ctx context.Context, barcode string) (entities.Book, error) {
	return s.books.Get(ctx, barcode)
}

func (s *LibraryService) RegisterMember(ctx context.Context, id, name, email, phone string) (entities.Member, error) {
	m := entities.NewMember(id, name, email, phone, s.now())
	if err := validateStruct(m); err != nil {
		return entities.Member{}, err
	}
	if err := s.members.Register(ctx, m); err != nil {
		return entities.Member{}, err
	}
	return m, nil
}

func (s *LibraryService) GetMember(ctx context.Context, id string) (entities.Member, error) {
	return s.members.Get(ctx, id)
}

// BlockMember blacklists an account. Its open lendings can still be
// returned, but it cannot check out, reserve or renew.
func (s *LibraryService) BlockMember(ctx context.Context, id string) (entities.Member, error) {
	return s.setMemberStatus(ctx, id, (*entities.Member).Block)
}

func (s *LibraryService) UnblockMember(ctx context.Context, id string) (entities.Member, error) {
	return s.setMemberStatus(ctx, id, (*entities.Member).Unblock)
}

func (s *LibraryService) setMemberStatus(ctx context.Context, id string, apply func(*entities.Member)) (entities.Member, error) {
	unlock, err := s.locks.LockAll(ctx, memory.MemberKey(id))
	if err != nil {
		return entities.Member{}, err
	}
	defer unlock()

	m, err := s.members.Get(ctx, id)
	if err != nil {
		return entities.Member{}, err
	}
	apply(&m)
	if err := s.members.Update(ctx, m); err != nil {
		return entities.Member{}, err
	}
	return m, nil
}

// Checkout lends a copy to a member.
//
// Checks, in order: the book and member exist, the account is active, the
// member is under the lending cap, no other member holds a reservation, the
// copy circulates, and the copy is available (or reserved for this member).
func (s *LibraryService) Checkout(ctx context.Context, barcode, memberID string) (entities.Lending, error) {
	unlock, err := s.lock(ctx, barcode, memberID)
	if err != nil {
		return entities.Lending{}, err
	}
	defer unlock()

	book, err := s.books.Get(ctx, barcode)
	if err != nil {
		return entities.Lending{}, err
	}
	member, err := s.members.Get(ctx, memberID)
	if err != nil {
		return entities.Lending{}, err
	}
	if !member.IsActive() {
		return entities.Lending{}, errors.Wrapf(entities.ErrAccountInactive, "member %s is %s", memberID, member.Status)
	}
	if member.ActiveLendings >= s.cfg.MaxBooksPerMember {
		return entities.Lending{}, errors.Wrapf(entities.ErrLimitExceeded, "member %s has %d of %d books",
			memberID, member.ActiveLendings, s.cfg.MaxBooksPerMember)
	}
	res, reserved := s.reservations.OpenByBarcode(ctx, barcode)
	if reserved && res.MemberID != memberID {
		return entities.Lending{}, errors.Wrapf(entities.ErrReservedByOther, "book %s", barcode)
	}
	if book.ReferenceOnly {
		return entities.Lending{}, errors.Wrapf(entities.ErrNotCirculable, "book %s is reference only", barcode)
	}
	heldForMember := reserved && book.Status == entities.BookStatusReserved
	if book.Status != entities.BookStatusAvailable && !heldForMember {
		return entities.Lending{}, errors.Wrapf(entities.ErrInvalidTransition, "book %s is %s", barcode, book.Status)
	}

	now := s.now()
	lending := entities.NewLending(utils.GeneratePrefixedID("lend"), barcode, memberID, now, s.cfg.LendingPeriod)
	if reserved {
		if err := res.TransitionTo(entities.ReservationStatusCompleted, now); err != nil {
			return entities.Lending{}, err
		}
	}
	book.SetStatus(entities.BookStatusLoaned, now)
	member.IncrementLendings()

	if err := s.lendings.Register(ctx, lending); err != nil {
		return entities.Lending{}, err
	}
	if err := s.books.Update(ctx, book); err != nil {
		return entities.Lending{}, err
	}
	if err := s.members.Update(ctx, member); err != nil {
		return entities.Lending{}, err
	}
	if reserved {
		if err := s.reservations.Update(ctx, res); err != nil {
			return entities.Lending{}, err
		}
	}

	s.log.Debug("checked out",
		zap.String("barcode", barcode),
		zap.String("member", memberID),
		zap.Time("due", lending.DueAt))
	s.notifier.Notify(ctx, NewEvent(EventBookCheckedOut, memberID, barcode, now,
		"lending_id", lending.ID, "due_at", lending.DueAt.Format(time.RFC3339)))
	return lending, nil
}

// Return closes the member's lending on a copy, assesses the late fine and
// hands the copy to the waiting reservation if there is one.
func (s *LibraryService) Return(ctx context.Context, barcode, memberID string) (ReturnResult, error) {
	unlock, err := s.lock(ctx, barcode, memberID)
	if err != nil {
		return ReturnResult{}, err
	}
	defer unlock()

	lending, open := s.lendings.OpenByBarcode(ctx, barcode)
	if !open {
		return ReturnResult{}, errors.Wrapf(entities.ErrNotFound, "no open lending for book %s", barcode)
	}
	if lending.MemberID != memberID {
		return ReturnResult{}, errors.Wrapf(entities.ErrMemberMismatch, "book %s is lent to another member", barcode)
	}
	book, err := s.books.Get(ctx, barcode)
	if err != nil {
		return ReturnResult{}, err
	}
	member, err := s.members.Get(ctx, memberID)
	if err != nil {
		return ReturnResult{}, err
	}

	now := s.now()
	if err := lending.Close(now); err != nil {
		return ReturnResult{}, err
	}
	member.DecrementLendings()

	result := ReturnResult{Lending: lending}
	res, reserved := s.reservations.OpenByBarcode(ctx, barcode)
	if reserved {
		if err := res.TransitionTo(entities.ReservationStatusPending, now); err != nil {
			return ReturnResult{}, err
		}
		book.SetStatus(entities.BookStatusReserved, now)
		result.Reservation = &res
	} else {
		book.SetStatus(entities.BookStatusAvailable, now)
	}

	if err := s.lendings.Update(ctx, lending); err != nil {
		return ReturnResult{}, err
	}
	if err := s.members.Update(ctx, member); err != nil {
		return ReturnResult{}, err
	}
	if err := s.books.Update(ctx, book); err != nil {
		return ReturnResult{}, err
	}
	if reserved {
		if err := s.reservations.Update(ctx, res); err != nil {
			return ReturnResult{}, err
		}
	}

	result.Fine = s.assessFine(ctx, lending, now)

	s.notifier.Notify(ctx, NewEvent(EventBookReturned, memberID, barcode, now, "lending_id", lending.ID))
	if reserved {
		s.notifier.Notify(ctx, NewEvent(EventReservationAvailable, res.MemberID, barcode, now, "reservation_id", res.ID))
	}
	return result, nil
}

// assessFine runs after the lending is closed and stored. A failure here is
// logged rather than returned: the return itself has already happened.
func (s *LibraryService) assessFine(ctx context.Context, lending entities.Lending, now time.Time) *ledger.Fine {
	fine, owed, err := s.ledger.AssessFine(ctx, lending)
	if err != nil {
		s.log.Warn("fine assessment failed",
			zap.String("lending", lending.ID),
			zap.String("member", lending.MemberID),
			zap.Error(err))
		return nil
	}
	if !owed {
		return nil
	}
	s.notifier.Notify(ctx, NewEvent(EventFineAssessed, lending.MemberID, lending.Barcode, now,
		"fine_id", fine.ID, "amount", fine.Amount.StringFixed(2)))
	return &fine
}

// Reserve queues a member for a copy that is currently out. One open
// reservation per copy.
func (s *LibraryService) Reserve(ctx context.Context, barcode, memberID string) (entities.Reservation, error) {
	unlock, err := s.lock(ctx, barcode, memberID)
	if err != nil {
		return entities.Reservation{}, err
	}
	defer unlock()

	book, err := s.books.Get(ctx, barcode)
	if err != nil {
		return entities.Reservation{}, err
	}
	member, err := s.members.Get(ctx, memberID)
	if err != nil {
		return entities.Reservation{}, err
	}
	if !member.IsActive() {
		return entities.Reservation{}, errors.Wrapf(entities.ErrAccountInactive, "member %s is %s", memberID, member.Status)
	}
	if book.ReferenceOnly || book.Status == entities.BookStatusLost {
		return entities.Reservation{}, errors.Wrapf(entities.ErrNotCirculable, "book %s", barcode)
	}
	if book.Status == entities.BookStatusAvailable {
		return entities.Reservation{}, errors.Wrapf(entities.ErrInvalidTransition, "book %s is available, check it out instead", barcode)
	}
	if lending, open := s.lendings.OpenByBarcode(ctx, barcode); open && lending.MemberID == memberID {
		return entities.Reservation{}, errors.Wrapf(entities.ErrInvalidTransition, "member %s already holds book %s", memberID, barcode)
	}
	if existing, open := s.reservations.OpenByBarcode(ctx, barcode); open {
		if existing.MemberID != memberID {
			return entities.Reservation{}, errors.Wrapf(entities.ErrReservedByOther, "book %s", barcode)
		}
		return entities.Reservation{}, errors.Wrapf(entities.ErrInvalidTransition, "member %s already reserved book %s", memberID, barcode)
	}

	res := entities.NewReservation(utils.GeneratePrefixedID("res"), barcode, memberID, s.now())
	if err := s.reservations.Register(ctx, res); err != nil {
		return entities.Reservation{}, err
	}
	return res, nil
}

// CancelReservation withdraws a member's reservation. A copy that was being
// held for it goes back on the shelf.
func (s *LibraryService) CancelReservation(ctx context.Context, reservationID, memberID string) (entities.Reservation, error) {
	res, err := s.reservations.Get(ctx, reservationID)
	if err != nil {
		return entities.Reservation{}, err
	}
	unlock, err := s.lock(ctx, res.Barcode, memberID)
	if err != nil {
		return entities.Reservation{}, err
	}
	defer unlock()

	// re-read under the lock; the barcode of a reservation never changes
	res, err = s.reservations.Get(ctx, reservationID)
	if err != nil {
		return entities.Reservation{}, err
	}
	if res.MemberID != memberID {
		return entities.Reservation{}, errors.Wrapf(entities.ErrMemberMismatch, "reservation %s", reservationID)
	}
	wasHeld := res.Status == entities.ReservationStatusPending
	now := s.now()
	if err := res.TransitionTo(entities.ReservationStatusCancelled, now); err != nil {
		return entities.Reservation{}, err
	}

	if wasHeld {
		book, err := s.books.Get(ctx, res.Barcode)
		if err != nil {
			return entities.Reservation{}, err
		}
		if book.Status == entities.BookStatusReserved {
			book.SetStatus(entities.BookStatusAvailable, now)
			if err := s.books.Update(ctx, book); err != nil {
				return entities.Reservation{}, err
			}
		}
	}
	if err := s.reservations.Update(ctx, res); err != nil {
		return entities.Reservation{}, err
	}
	return res, nil
}

// Renew extends a lending by returning it and lending the copy again in one
// step. It is refused when another member is waiting for the copy.
func (s *LibraryService) Renew(ctx context.Context, barcode, memberID string) (RenewResult, error) {
	unlock, err := s.lock(ctx, barcode, memberID)
	if err != nil {
		return RenewResult{}, err
	}
	defer unlock()

	current, open := s.lendings.OpenByBarcode(ctx, barcode)
	if !open {
		return RenewResult{}, errors.Wrapf(entities.ErrNotFound, "no open lending for book %s", barcode)
	}
	if current.MemberID != memberID {
		return RenewResult{}, errors.Wrapf(entities.ErrMemberMismatch, "book %s is lent to another member", barcode)
	}
	member, err := s.members.Get(ctx, memberID)
	if err != nil {
		return RenewResult{}, err
	}
	if !member.IsActive() {
		return RenewResult{}, errors.Wrapf(entities.ErrAccountInactive, "member %s is %s", memberID, member.Status)
	}
	if res, reserved := s.reservations.OpenByBarcode(ctx, barcode); reserved && res.MemberID != memberID {
		return RenewResult{}, errors.Wrapf(entities.ErrReservedByOther, "book %s", barcode)
	}

	now := s.now()
	if err := current.Close(now); err != nil {
		return RenewResult{}, err
	}
	next := entities.NewLending(utils.GeneratePrefixedID("lend"), barcode, memberID, now, s.cfg.LendingPeriod)
	if err := s.lendings.Update(ctx, current); err != nil {
		return RenewResult{}, err
	}
	if err := s.lendings.Register(ctx, next); err != nil {
		return RenewResult{}, err
	}

	fine := s.assessFine(ctx, current, now)
	s.notifier.Notify(ctx, NewEvent(EventBookCheckedOut, memberID, barcode, now,
		"lending_id", next.ID, "due_at", next.DueAt.Format(time.RFC3339), "renewal_of", current.ID))
	return RenewResult{Returned: current, Fine: fine, Lending: next}, nil
}

func (s *LibraryService) LendingsByMember(ctx context.Context, memberID string) []entities.Lending {
	return s.lendings.ByMember(ctx, memberID)
}

func (s *LibraryService) ReservationsByMember(ctx context.Context, memberID string) []entities.Reservation {
	return s.reservations.ByMember(ctx, memberID)
}

// CollectFine records payment of a fine by the member it was charged to.
func (s *LibraryService) CollectFine(ctx context.Context, fineID, memberID string) (ledger.Fine, error) {
	return s.ledger.CollectFine(ctx, fineID, memberID)
}

// GetFine returns one of the member's fines.
func (s *LibraryService) GetFine(ctx context.Context, fineID, memberID string) (ledger.Fine, error) {
	fine, err := s.ledger.Fine(ctx, fineID)
	if err != nil {
		return ledger.Fine{}, err
	}
	if fine.MemberID != memberID {
		return ledger.Fine{}, errors.Wrapf(entities.ErrMemberMismatch, "fine %s", fineID)
	}
	return fine, nil
}

func (s *LibraryService) FinesByMember(ctx context.Context, memberID string) []ledger.Fine {
	return s.ledger.FinesByMember(ctx, memberID)
}

func (s *LibraryService) SearchByTitle(ctx context.Context, query string) []entities.Book {
	return s.catalog.SearchByTitle(ctx, query)
}

func (s *LibraryService) SearchByAuthor(ctx context.Context, query string) []entities.Book {
	return s.catalog.SearchByAuthor(ctx, query)
}

func (s *LibraryService) SearchBySubject(ctx context.Context, query string) []entities.Book {
	return s.catalog.SearchBySubject(ctx, query)
}

func (s *LibraryService) AvailableBooks(ctx context.Context) []entities.Book {
	return s.catalog.Available(ctx)
}
