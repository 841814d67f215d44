package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events. Append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records operator actions. Callers treat it as best-effort and
// never fail a user-facing flow on an audit error.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.Metadata != "" && !json.Valid([]byte(e.Metadata)) {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogCallSubmitted records a batch accepted by the vendor.
func (s *Service) LogCallSubmitted(ctx context.Context, a Actor, batchID string, recipients int, dropped []string) error {
	meta, err := json.Marshal(map[string]any{
		"recipients":        recipients,
		"dropped_variables": dropped,
	})
	if err != nil {
		return err
	}
	return s.Append(ctx, Event{
		Type:        EventTypeCallSubmitted,
		ActorUserID: a.UserID,
		ActorRole:   a.Role,
		IPAddress:   a.IP,
		BatchID:     batchID,
		Message:     "batch call submitted",
		Metadata:    string(meta),
	})
}

// LogPollCancelled records an operator stopping a polling task.
func (s *Service) LogPollCancelled(ctx context.Context, a Actor, batchID string) error {
	return s.Append(ctx, Event{
		Type:        EventTypePollCancelled,
		ActorUserID: a.UserID,
		ActorRole:   a.Role,
		IPAddress:   a.IP,
		BatchID:     batchID,
		Message:     "status polling stopped by operator",
	})
}

// LogLogin records a successful dashboard login.
func (s *Service) LogLogin(ctx context.Context, a Actor) error {
	return s.Append(ctx, Event{
		Type:        EventTypeLogin,
		ActorUserID: a.UserID,
		ActorRole:   a.Role,
		IPAddress:   a.IP,
		Message:     "login",
	})
}
