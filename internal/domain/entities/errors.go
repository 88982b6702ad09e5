package entities

import "errors"

// Error kinds returned by the engine. Callers classify failures with
// errors.Is; the messages carry no identifiers so they can be compared
// directly, and context (keys, states) is attached by wrapping.
var (
	ErrDuplicateKey      = errors.New("duplicate key")
	ErrNotFound          = errors.New("not found")
	ErrLimitExceeded     = errors.New("concurrent transaction limit exceeded")
	ErrReservedByOther   = errors.New("reserved by another member")
	ErrNotCirculable     = errors.New("item does not circulate")
	ErrAlreadyBusy       = errors.New("already busy")
	ErrNoDriverAvailable = errors.New("no driver available")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrMemberMismatch    = errors.New("actor does not own the transaction")
	ErrAccountInactive   = errors.New("account is not active")
	ErrInvalidArgument   = errors.New("invalid argument")
)
