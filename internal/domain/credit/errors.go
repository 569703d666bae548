package credit

import "errors"

var (
	// ErrInsufficientCredits is returned when a debit would drive the balance negative
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrInvalidAmount is returned when amount is <= 0
	ErrInvalidAmount = errors.New("invalid amount: must be greater than 0")

	// ErrUserNotFound is returned when the user doesn't exist
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateReference is returned internally on a unique-constraint hit
	ErrDuplicateReference = errors.New("duplicate transaction reference")

	// ErrReferenceConflict is returned when a replayed reference carries a
	// different amount than the recorded transaction
	ErrReferenceConflict = errors.New("transaction reference conflict")
)
