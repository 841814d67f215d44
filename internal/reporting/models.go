package reporting

import (
	"time"

	"voicecall-platform/internal/elevenlabs"
)

// Call outcomes as the vendor's post-call analysis reports them.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultUnknown = "unknown"
)

// ConversationRow is one listed conversation, enriched from its detail when
// the detail could be fetched.
type ConversationRow struct {
	elevenlabs.ConversationSummary

	TelefonoDestino string `json:"telefono_destino,omitempty"`
	NombrePaciente  string `json:"nombre_paciente,omitempty"`
	Producto        string `json:"producto,omitempty"`

	// Enriched is false when the detail request failed.
	Enriched bool `json:"enriched"`
}

// Stats aggregates every conversation of one agent.
type Stats struct {
	AgentID      string `json:"agent_id"`
	TotalCalls   int    `json:"total_calls"`
	TotalMinutes int    `json:"total_minutes"`
	Exitosas     int    `json:"exitosas"`
	Fallidas     int    `json:"fallidas"`
	Desconocidas int    `json:"desconocidas"`

	Conversations []ConversationRow `json:"conversations"`

	GeneratedAt time.Time `json:"generated_at"`
	Cached      bool      `json:"cached"`
}

// Query selects the agent to report on. Refresh skips the cache.
type Query struct {
	AgentID string
	Refresh bool
}
