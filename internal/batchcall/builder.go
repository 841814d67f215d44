package batchcall

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var phonePattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// ValidatePhoneNumber reports whether phone is in international (E.164) format.
func ValidatePhoneNumber(phone string) bool {
	return phonePattern.MatchString(phone)
}

// BuildRequest validates d and assembles the vendor request.
//
// Order of checks: required fields, phone format, then the whitespace key walk
// over the JSON form of the finished request.
func BuildRequest(d Draft) (CallBatchRequest, error) {
	callName := strings.TrimSpace(d.CallName)
	if callName == "" {
		return CallBatchRequest{}, &MissingFieldError{Field: "call_name"}
	}
	agentID := strings.TrimSpace(d.AgentID)
	if agentID == "" {
		return CallBatchRequest{}, &MissingFieldError{Field: "agent_id"}
	}
	agentPhoneID := strings.TrimSpace(d.AgentPhoneNumberID)
	if agentPhoneID == "" {
		return CallBatchRequest{}, &MissingFieldError{Field: "agent_phone_number_id"}
	}
	if len(d.Recipients) == 0 {
		return CallBatchRequest{}, &MissingFieldError{Field: "recipients"}
	}

	recipients := make([]Recipient, 0, len(d.Recipients))
	for i, r := range d.Recipients {
		phone := r.PhoneNumber
		field := "phone_number"
		if len(d.Recipients) > 1 {
			field = fmt.Sprintf("recipients.%d.phone_number", i)
		}
		if strings.TrimSpace(phone) == "" {
			return CallBatchRequest{}, &MissingFieldError{Field: field}
		}
		if !ValidatePhoneNumber(phone) {
			return CallBatchRequest{}, &InvalidPhoneFormatError{Field: field, Phone: phone}
		}
		vars := make(DynamicVariables, len(r.DynamicVariables))
		for k, v := range r.DynamicVariables {
			vars[k] = v
		}
		recipients = append(recipients, Recipient{PhoneNumber: phone, DynamicVariables: vars})
	}

	req := CallBatchRequest{
		CallName:           callName,
		AgentID:            agentID,
		AgentPhoneNumberID: agentPhoneID,
		Recipients:         recipients,
	}
	if d.ScheduledTimeUnix != nil {
		ts := *d.ScheduledTimeUnix
		req.ScheduledTimeUnix = &ts
	}

	if err := CheckKeys(req); err != nil {
		return CallBatchRequest{}, err
	}
	return req, nil
}

// CheckKeys fails with MalformedPayloadError if any key in the JSON form of v
// contains whitespace.
func CheckKeys(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("batchcall: encode payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return fmt.Errorf("batchcall: decode payload: %w", err)
	}
	if path, found := FirstKey(tree, HasWhitespace); found {
		return &MalformedPayloadError{Path: path}
	}
	return nil
}
