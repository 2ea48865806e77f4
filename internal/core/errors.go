package core

import (
	"errors"
	"fmt"
)

var (
	ErrMissingDate        = errors.New("date is required")
	ErrInvalidDate        = errors.New("invalid date, expected YYYY-MM-DD")
	ErrMissingAmount      = errors.New("amount is required")
	ErrInvalidAmount      = errors.New("amount must be a number")
	ErrNegativeAmount     = errors.New("amount must not be negative")
	ErrNonPositiveAmount  = errors.New("amount must be greater than zero")
	ErrDescriptionTooLong = errors.New("description too long (max 500 characters)")
	ErrLabelNotAllowed    = errors.New("label is not an allowed category")
	ErrInvalidBudgetType  = errors.New("budget type must be weekly or monthly")
	ErrInvalidYear        = errors.New("year must be between 1 and 9999")
	ErrInvalidMonth       = errors.New("month must be between 1 and 12")
	ErrInvalidFieldType   = errors.New("field has the wrong type")
	ErrMalformedBody      = errors.New("malformed JSON body")
)

// ErrNotFound is returned by stores when no record matches an id.
var ErrNotFound = errors.New("not found")

// ValidationError reports a missing or wrongly typed input field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid builds a ValidationError for field.
func Invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StoreError wraps a failure of the underlying persistence layer.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// WrapStore wraps err as a StoreError unless it is nil or ErrNotFound.
func WrapStore(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
