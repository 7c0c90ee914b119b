package protocol

import (
	"encoding/json"
	"errors"
	"strings"
)

const Version = "1.0"

// Request is one inbound frame. ID is echoed back untouched and may be any JSON scalar.
type Request struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is a correlated reply or, with a nil ID, an unsolicited event.
type Response struct {
	ID      json.RawMessage `json:"id"`
	Action  string          `json:"action"`
	Payload any             `json:"payload"`
}

var ErrMissingAction = errors.New("missing action")

func DecodeRequest(b []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(b, &r); err != nil {
		return Request{}, err
	}
	r.Action = strings.TrimSpace(r.Action)
	if r.Action == "" {
		return r, ErrMissingAction
	}
	return r, nil
}

// DecodePayload decodes a request payload into v. An absent payload decodes as {}.
func DecodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	return json.Unmarshal(raw, v)
}

func Event(action string, payload any) Response {
	return Response{Action: action, Payload: payload}
}
