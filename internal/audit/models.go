package audit

import "time"

// Event is an append-only audit record. Events are never updated or deleted.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress   string `json:"ip_address,omitempty" db:"ip_address"`

	// BatchID is set for events about a submitted batch.
	BatchID string `json:"batch_id,omitempty" db:"batch_id"`

	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallSubmitted EventType = "call_submitted"
	EventTypePollCancelled EventType = "poll_cancelled"
	EventTypeLogin         EventType = "login"
)

// Actor identifies who triggered an event.
type Actor struct {
	UserID string
	Role   string
	IP     string
}
