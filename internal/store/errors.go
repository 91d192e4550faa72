package store

import (
	"errors"
	"fmt"
)

// Base kinds. Callers map these to transport codes with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrForbidden    = errors.New("forbidden")
)

var (
	ErrInsufficientStock        = fmt.Errorf("%w: insufficient stock", ErrConflict)
	ErrInsufficientPoints       = fmt.Errorf("%w: insufficient points", ErrConflict)
	ErrExceedsRemainingQuantity = fmt.Errorf("%w: quantity exceeds remaining returnable quantity", ErrConflict)
	ErrDuplicate                = fmt.Errorf("%w: duplicate", ErrConflict)
	ErrNoRemainingQuantity      = fmt.Errorf("%w: no remaining quantity to return", ErrInvalidState)
	ErrPayrollAlreadyApproved   = fmt.Errorf("%w: payroll already approved", ErrInvalidState)
	ErrPayrollInfoMissing       = fmt.Errorf("%w: payroll info missing", ErrNotFound)
)

// Invalid wraps ErrValidation with a field-level message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
