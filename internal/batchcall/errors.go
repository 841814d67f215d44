package batchcall

import (
	"errors"
	"fmt"
)

// Validation failures. They never reach the network and are safe to show to
// the operator verbatim.
var (
	ErrMissingField       = errors.New("batchcall: missing field")
	ErrInvalidPhoneFormat = errors.New("batchcall: invalid phone format")
	ErrMalformedPayload   = errors.New("batchcall: malformed payload")
)

// MissingFieldError names the required field that was empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// InvalidPhoneFormatError carries the rejected number.
type InvalidPhoneFormatError struct {
	Field string
	Phone string
}

func (e *InvalidPhoneFormatError) Error() string {
	return fmt.Sprintf("%s %q must be in international format (+ followed by 2 to 15 digits, no leading zero)", e.Field, e.Phone)
}

func (e *InvalidPhoneFormatError) Unwrap() error { return ErrInvalidPhoneFormat }

// MalformedPayloadError names the key path the vendor would reject.
type MalformedPayloadError struct {
	Path string
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("key %q contains whitespace; rename it before sending", e.Path)
}

func (e *MalformedPayloadError) Unwrap() error { return ErrMalformedPayload }

// IsValidation reports whether err is one of the client-side validation failures.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidPhoneFormat) ||
		errors.Is(err, ErrMalformedPayload)
}
