package elevenlabs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingCredential means no API key was configured. Raised before any
	// network attempt.
	ErrMissingCredential = errors.New("elevenlabs: api key not configured")

	// ErrInvalidIdentifier guards identifiers interpolated into URL paths.
	ErrInvalidIdentifier = errors.New("elevenlabs: invalid identifier")

	ErrTimeout         = errors.New("elevenlabs: timeout")
	ErrVendor          = errors.New("elevenlabs: vendor error")
	ErrNotFound        = errors.New("elevenlabs: not found")
	ErrInvalidResponse = errors.New("elevenlabs: invalid response")
)

// TimeoutError is returned when a single vendor call exceeds its budget.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("elevenlabs: %s timed out after %s", e.Op, e.After)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// VendorError is a non-success HTTP status. Body is the decoded JSON when the
// vendor sent JSON, otherwise the raw text.
type VendorError struct {
	Op         string
	StatusCode int
	Body       any
}

func (e *VendorError) Error() string {
	body := ""
	switch b := e.Body.(type) {
	case string:
		body = b
	default:
		raw, _ := json.Marshal(b)
		body = string(raw)
	}
	return fmt.Sprintf("elevenlabs: %s returned %d: %s", e.Op, e.StatusCode, body)
}

func (e *VendorError) Unwrap() error { return ErrVendor }

// NotFoundError is a 404 on a lookup by id.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("elevenlabs: %s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidResponseError is a 2xx response that breaks the expected schema.
type InvalidResponseError struct {
	Op     string
	Reason string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("elevenlabs: invalid %s response: %s", e.Op, e.Reason)
}

func (e *InvalidResponseError) Unwrap() error { return ErrInvalidResponse }
