package errors

import "errors"

var (
	ErrEquipmentNotFound   = errors.New("equipment not found")
	ErrNotAvailable        = errors.New("equipment not available")
	ErrNotEquipmentSession = errors.New("session is not bound to equipment")
	ErrBookNotFound        = errors.New("book not found")
	ErrNoCopiesAvailable   = errors.New("no copies available")
	ErrAlreadyCheckedOut   = errors.New("book already checked out by person")
	ErrCheckoutNotFound    = errors.New("checkout not found")
	ErrAlreadyReturned     = errors.New("checkout already returned")
	ErrPersonNotFound      = errors.New("person not found")
	ErrInvalidDueDate      = errors.New("due date is not after checkout date")
	ErrCopiesOutOfSync     = errors.New("book available copies out of sync with loans")
)
