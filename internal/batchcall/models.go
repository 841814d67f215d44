package batchcall

// CallBatchRequest is the body submitted to the vendor batch-calling endpoint.
//
// Invariant: no key at any nesting level contains whitespace. BuildRequest
// enforces this before the request can reach the transport client.
type CallBatchRequest struct {
	CallName           string `json:"call_name"`
	AgentID            string `json:"agent_id"`
	AgentPhoneNumberID string `json:"agent_phone_number_id"`

	// ScheduledTimeUnix is unix seconds. nil means send immediately.
	ScheduledTimeUnix *int64 `json:"scheduled_time_unix"`

	Recipients []Recipient `json:"recipients"`
}

// Recipient is one outbound call inside a batch.
type Recipient struct {
	PhoneNumber      string           `json:"phone_number"`
	DynamicVariables DynamicVariables `json:"dynamic_variables,omitempty"`
}

// DynamicVariables are substituted into the agent script at call time.
type DynamicVariables map[string]any

// Draft is the operator input BuildRequest turns into a CallBatchRequest.
type Draft struct {
	CallName           string
	AgentID            string
	AgentPhoneNumberID string
	ScheduledTimeUnix  *int64
	Recipients         []Recipient
}

// SingleRecipient is the common one-call batch used by the dashboard form.
func SingleRecipient(phoneNumber string, vars DynamicVariables) []Recipient {
	return []Recipient{{PhoneNumber: phoneNumber, DynamicVariables: vars}}
}
