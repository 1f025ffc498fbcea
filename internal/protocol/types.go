package protocol

import (
	"encoding/json"

	"carechat/internal/session"
)

// ClientMeta describes the calling client to the assistant service.
type ClientMeta struct {
	UserAgent  string `json:"user_agent,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	SessionID  string      `json:"session_id"`
	Message    string      `json:"message"`
	Trace      bool        `json:"trace"`
	ClientMeta *ClientMeta `json:"client_meta,omitempty"`
}

// AssistantReply is the assistant's output for one turn.
type AssistantReply struct {
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions"`
}

// Meta identifies the turn on the server side.
type Meta struct {
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`
	Timestamp string `json:"timestamp"`
}

// ChatResponse is the success body of POST /chat. Trace is opaque and passed
// through unmodified.
type ChatResponse struct {
	Assistant AssistantReply  `json:"assistant"`
	State     session.State   `json:"state"`
	Meta      Meta            `json:"meta"`
	Trace     json.RawMessage `json:"trace,omitempty"`
}

// Health is whatever GET /health returns. Status and Timestamp are filled when
// the reference backend's fields are present; Raw always holds the body.
type Health struct {
	Status    string          `json:"status"`
	Timestamp string          `json:"timestamp"`
	Raw       json.RawMessage `json:"-"`
}

type resetRequest struct {
	SessionID string `json:"session_id"`
}

// rateLimitBody is the 429 envelope: {"detail": {"retry_after_seconds": N}}.
type rateLimitBody struct {
	Detail struct {
		Error             string   `json:"error"`
		RetryAfterSeconds *float64 `json:"retry_after_seconds"`
	} `json:"detail"`
}

// wire* mirror the response with pointers on every required section so that a
// missing section is distinguishable from a zero value.
type wireChatResponse struct {
	Assistant *wireAssistant  `json:"assistant"`
	State     *wireState      `json:"state"`
	Meta      *Meta           `json:"meta"`
	Trace     json.RawMessage `json:"trace"`
}

type wireAssistant struct {
	Message     *string  `json:"message"`
	Suggestions []string `json:"suggestions"`
}

type wireState struct {
	Verified         *bool                      `json:"verified"`
	Verification     *session.VerificationState `json:"verification"`
	Patient          *session.PatientPublic     `json:"patient"`
	LastListSnapshot []session.ListEntry        `json:"last_list_snapshot"`
	Session          *session.Times             `json:"session"`
}
