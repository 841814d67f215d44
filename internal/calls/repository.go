package calls

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("batch call not found")

// Repository persists batch records.
type Repository interface {
	Create(ctx context.Context, b BatchCall) error
	UpdatePoll(ctx context.Context, id string, u PollUpdate) error
	Get(ctx context.Context, id string) (BatchCall, error)
	List(ctx context.Context, f ListFilter) ([]BatchCall, error)
}
