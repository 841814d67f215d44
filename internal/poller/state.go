package poller

import (
	"time"

	"voicecall-platform/internal/elevenlabs"
)

// State is a polling task's position in its lifecycle.
type State string

const (
	StateInitiated State = "initiated"
	StatePolling   State = "polling"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"

	// StateAbandoned means we stopped checking without a vendor-reported
	// terminal status. The call may or may not have happened.
	StateAbandoned State = "abandoned"
)

// Terminal reports whether the state ends the task.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateAbandoned:
		return true
	default:
		return false
	}
}

// Reasons recorded when a task ends in StateAbandoned.
const (
	ReasonBudgetExhausted = "attempt budget exhausted"
	ReasonStatusError     = "status query failed"
	ReasonStopped         = "stopped"
)

// PollState is owned by one polling task. Observers receive copies.
type PollState struct {
	BatchID      string                    `json:"batch_id"`
	State        State                     `json:"state"`
	AttemptsMade int                       `json:"attempts_made"`
	LastResponse *elevenlabs.BatchResponse `json:"last_response,omitempty"`

	// Reason and LastError explain StateAbandoned.
	Reason    string `json:"reason,omitempty"`
	LastError string `json:"last_error,omitempty"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	err error
}

// Err is the transport error that stopped the task, if any.
func (s PollState) Err() error { return s.err }

// Outcome is what the operator should be told.
//
// Abandoned is reported as "unknown": we cannot claim success or failure.
func (s PollState) Outcome() string {
	switch s.State {
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	case StateAbandoned:
		return "unknown"
	default:
		return "pending"
	}
}

// stateForStatus maps a vendor batch status onto a terminal state.
func stateForStatus(status string) (State, bool) {
	switch status {
	case elevenlabs.StatusCompleted:
		return StateCompleted, true
	case elevenlabs.StatusFailed:
		return StateFailed, true
	case elevenlabs.StatusCancelled:
		return StateCancelled, true
	default:
		return StatePolling, false
	}
}
