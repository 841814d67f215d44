package elevenlabs

import (
	"bytes"
	"encoding/json"
)

// Batch statuses the vendor reports. Only the terminal ones matter to us; the
// rest pass through as opaque strings.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// BatchResponse is the vendor's batch-call object. ID and Status are lifted
// out for convenience; Raw keeps every field the vendor sent, including those
// two, and is what gets serialized back out.
type BatchResponse struct {
	ID     string
	Status string
	Raw    map[string]any
}

// MarshalJSON emits the vendor object unchanged.
func (r BatchResponse) MarshalJSON() ([]byte, error) {
	if r.Raw == nil {
		return json.Marshal(map[string]any{"id": r.ID, "status": r.Status})
	}
	return json.Marshal(r.Raw)
}

func (r *BatchResponse) UnmarshalJSON(b []byte) error {
	raw, err := decodeObject(b)
	if err != nil {
		return err
	}
	r.Raw = raw
	r.ID, _ = raw["id"].(string)
	r.Status, _ = raw["status"].(string)
	return nil
}

// ConversationID is present on status responses once the call has connected.
func (r BatchResponse) ConversationID() string {
	s, _ := r.Raw["conversation_id"].(string)
	return s
}

// IsTerminal reports whether no further status change is expected.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ConversationSummary is one row of the conversations listing.
type ConversationSummary struct {
	AgentID           string `json:"agent_id,omitempty"`
	AgentName         string `json:"agent_name,omitempty"`
	ConversationID    string `json:"conversation_id"`
	StartTimeUnixSecs int64  `json:"start_time_unix_secs,omitempty"`
	CallDurationSecs  int    `json:"call_duration_secs"`
	MessageCount      int    `json:"message_count,omitempty"`
	Status            string `json:"status,omitempty"`
	CallSuccessful    string `json:"call_successful,omitempty"`
	Summary           string `json:"summary,omitempty"`
}

// ConversationQuery selects one page of conversations.
type ConversationQuery struct {
	AgentID   string
	PageSize  int
	PageToken string
}

type ConversationPage struct {
	Conversations []ConversationSummary `json:"conversations"`
	NextPageToken string                `json:"next_page_token,omitempty"`
	HasMore       bool                  `json:"has_more"`
}

// Conversation is the full conversation detail, kept as the raw vendor object.
type Conversation struct {
	Raw map[string]any
}

func (c Conversation) MarshalJSON() ([]byte, error) {
	if c.Raw == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.Raw)
}

// DynamicVariable returns conversation_initiation_client_data.dynamic_variables[name].
func (c Conversation) DynamicVariable(name string) string {
	s, _ := lookup(c.Raw, "conversation_initiation_client_data", "dynamic_variables", name).(string)
	return s
}

// CalledNumber is the destination number of a phone conversation.
func (c Conversation) CalledNumber() string {
	if s, ok := lookup(c.Raw, "metadata", "phone_call", "external_number").(string); ok && s != "" {
		return s
	}
	return c.DynamicVariable("system__called_number")
}

// TranscriptSummary is the vendor's post-call summary, if analysis ran.
func (c Conversation) TranscriptSummary() string {
	s, _ := lookup(c.Raw, "analysis", "transcript_summary").(string)
	return s
}

// Agent is the vendor agent configuration.
type Agent struct {
	Raw map[string]any
}

func (a Agent) Name() string {
	if s, ok := a.Raw["name"].(string); ok && s != "" {
		return s
	}
	s, _ := lookup(a.Raw, "conversation_config", "name").(string)
	return s
}

// FirstMessage reads conversation_config.agent.first_message, falling back to
// the older flat conversation_config.first_message.
func (a Agent) FirstMessage() string {
	if s, ok := lookup(a.Raw, "conversation_config", "agent", "first_message").(string); ok && s != "" {
		return s
	}
	s, _ := lookup(a.Raw, "conversation_config", "first_message").(string)
	return s
}

func (a Agent) SystemPrompt() string {
	if s, ok := lookup(a.Raw, "conversation_config", "agent", "prompt", "prompt").(string); ok && s != "" {
		return s
	}
	s, _ := lookup(a.Raw, "conversation_config", "system_prompt").(string)
	return s
}

func lookup(m map[string]any, path ...string) any {
	var cur any = m
	for _, p := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[p]
	}
	return cur
}

func decodeObject(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
