package calls

import (
	"encoding/json"
	"time"

	"voicecall-platform/internal/batchcall"
	"voicecall-platform/internal/poller"
)

// BatchCall is the local record of a batch submitted to the vendor.
//
// The vendor owns the call itself. This row tracks what we sent and what
// polling last observed, so an operator can see history after a restart.
type BatchCall struct {
	ID            string                `json:"id" db:"id"`
	CallName      string                `json:"call_name" db:"call_name"`
	AgentID       string                `json:"agent_id" db:"agent_id"`
	PhoneNumberID string                `json:"agent_phone_number_id" db:"phone_number_id"`
	ScheduledAt   *time.Time            `json:"scheduled_at,omitempty" db:"scheduled_at"`
	Recipients    []batchcall.Recipient `json:"recipients"`

	VendorStatus string       `json:"vendor_status" db:"vendor_status"`
	PollState    poller.State `json:"poll_state" db:"poll_state"`
	PollAttempts int          `json:"poll_attempts" db:"poll_attempts"`
	PollReason   string       `json:"poll_reason,omitempty" db:"poll_reason"`
	LastError    string       `json:"last_error,omitempty" db:"last_error"`

	// LastResponse is the raw vendor object from the latest status query.
	LastResponse json.RawMessage `json:"last_response,omitempty" db:"last_response"`

	SubmittedBy string `json:"submitted_by,omitempty" db:"submitted_by"`

	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// Outcome is the operator-facing summary of a batch.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"

	// OutcomeUnknown is reported when polling gave up. It must never be shown
	// as success or failure.
	OutcomeUnknown Outcome = "unknown"
)

func (b BatchCall) Outcome() Outcome {
	switch b.PollState {
	case poller.StateCompleted:
		return OutcomeCompleted
	case poller.StateFailed:
		return OutcomeFailed
	case poller.StateCancelled:
		return OutcomeCancelled
	case poller.StateAbandoned:
		return OutcomeUnknown
	default:
		return OutcomePending
	}
}

// MarshalJSON adds the derived outcome.
func (b BatchCall) MarshalJSON() ([]byte, error) {
	type plain BatchCall
	return json.Marshal(struct {
		plain
		Outcome Outcome `json:"outcome"`
	}{plain(b), b.Outcome()})
}

// PollUpdate is what a polling task writes back after each transition.
type PollUpdate struct {
	VendorStatus string
	State        poller.State
	Attempts     int
	Reason       string
	LastError    string
	LastResponse json.RawMessage
	FinishedAt   *time.Time
	At           time.Time
}

func pollUpdateFrom(s poller.PollState, at time.Time) PollUpdate {
	u := PollUpdate{
		State:      s.State,
		Attempts:   s.AttemptsMade,
		Reason:     s.Reason,
		LastError:  s.LastError,
		FinishedAt: s.FinishedAt,
		At:         at,
	}
	if s.LastResponse != nil {
		u.VendorStatus = s.LastResponse.Status
		if raw, err := json.Marshal(s.LastResponse); err == nil {
			u.LastResponse = raw
		}
	}
	return u
}

func (b *BatchCall) apply(u PollUpdate) {
	if u.VendorStatus != "" {
		b.VendorStatus = u.VendorStatus
	}
	if len(u.LastResponse) > 0 {
		b.LastResponse = u.LastResponse
	}
	b.PollState = u.State
	b.PollAttempts = u.Attempts
	b.PollReason = u.Reason
	b.LastError = u.LastError
	b.FinishedAt = u.FinishedAt
	b.UpdatedAt = u.At
}

// ListFilter selects persisted batches, newest first.
type ListFilter struct {
	State  poller.State
	Limit  int
	Offset int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func (f ListFilter) normalized() ListFilter {
	out := f
	if out.Limit <= 0 {
		out.Limit = defaultListLimit
	}
	if out.Limit > maxListLimit {
		out.Limit = maxListLimit
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	return out
}
