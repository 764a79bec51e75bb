package opencode

import (
	"encoding/json"
	"fmt"
)

// EventType identifies the kind of event on the runtime's push stream.
type EventType string

const (
	// EventSessionIdle fires when a session finishes processing a prompt.
	EventSessionIdle EventType = "session.idle"
	// EventSessionError fires when the current turn of a session fails.
	EventSessionError EventType = "session.error"
	// EventSessionStatus fires when a session moves between busy/idle/retry.
	EventSessionStatus EventType = "session.status"
	// EventPartUpdated fires whenever a message part is created or changes.
	EventPartUpdated EventType = "message.part.updated"
	// EventServerConnected is the first event sent on a new subscription.
	EventServerConnected EventType = "server.connected"
)

// Event is one message from the /event stream.
// Properties are decoded lazily through the typed accessors.
type Event struct {
	Type       EventType       `json:"type"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

// UnmarshalEvent deserializes an Event from JSON bytes.
func UnmarshalEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &e, nil
}

// NewEvent builds an Event from a typed properties value.
func NewEvent(eventType EventType, props any) (*Event, error) {
	data, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event properties: %w", err)
	}
	return &Event{Type: eventType, Properties: data}, nil
}

// MustNewEvent creates a new Event, panicking on error.
// Use only when the properties are known to be serializable.
func MustNewEvent(eventType EventType, props any) *Event {
	e, err := NewEvent(eventType, props)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Event) decode(want EventType, v any) error {
	if e.Type != want {
		return fmt.Errorf("event is not %s: %s", want, e.Type)
	}
	if err := json.Unmarshal(e.Properties, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s properties: %w", want, err)
	}
	return nil
}

// SessionIdle returns the properties of a session.idle event.
func (e *Event) SessionIdle() (*SessionIdle, error) {
	var p SessionIdle
	if err := e.decode(EventSessionIdle, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SessionError returns the properties of a session.error event.
func (e *Event) SessionError() (*SessionError, error) {
	var p SessionError
	if err := e.decode(EventSessionError, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SessionStatus returns the properties of a session.status event.
func (e *Event) SessionStatus() (*SessionStatus, error) {
	var p SessionStatus
	if err := e.decode(EventSessionStatus, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PartUpdated returns the properties of a message.part.updated event.
func (e *Event) PartUpdated() (*PartUpdated, error) {
	var p PartUpdated
	if err := e.decode(EventPartUpdated, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SessionIdle is the payload of session.idle.
type SessionIdle struct {
	SessionID string `json:"sessionID"`
}

// SessionError is the payload of session.error.
type SessionError struct {
	SessionID string     `json:"sessionID,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo describes a failure reported by the runtime.
type ErrorInfo struct {
	Name string `json:"name"`
	Data struct {
		Message string `json:"message,omitempty"`
	} `json:"data"`
}

// Error implements the error interface.
func (e *ErrorInfo) Error() string {
	if e == nil {
		return "unknown error"
	}
	switch {
	case e.Name != "" && e.Data.Message != "":
		return e.Name + ": " + e.Data.Message
	case e.Data.Message != "":
		return e.Data.Message
	case e.Name != "":
		return e.Name
	}
	return "unknown error"
}

// Session status types carried by session.status.
const (
	StatusIdle  = "idle"
	StatusBusy  = "busy"
	StatusRetry = "retry"
)

// SessionStatus is the payload of session.status.
type SessionStatus struct {
	SessionID string     `json:"sessionID"`
	Status    StatusInfo `json:"status"`
}

// StatusInfo describes what a session is currently doing.
type StatusInfo struct {
	Type    string `json:"type"`
	Attempt int    `json:"attempt,omitempty"`
	Message string `json:"message,omitempty"`
	Next    int64  `json:"next,omitempty"`
}

// PartUpdated is the payload of message.part.updated.
type PartUpdated struct {
	Part Part `json:"part"`
}

// Part types.
const (
	PartText      = "text"
	PartTool      = "tool"
	PartReasoning = "reasoning"
	PartStepStart = "step-start"
	PartStepEnd   = "step-finish"
)

// Tool state statuses.
const (
	ToolPending   = "pending"
	ToolRunning   = "running"
	ToolCompleted = "completed"
	ToolError     = "error"
)

// Part is one piece of an agent message: text, reasoning, or a tool invocation.
type Part struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionID"`
	MessageID string     `json:"messageID"`
	Type      string     `json:"type"`
	Text      string     `json:"text,omitempty"`
	CallID    string     `json:"callID,omitempty"`
	Tool      string     `json:"tool,omitempty"`
	State     *ToolState `json:"state,omitempty"`
}

// IsTool reports whether the part is a tool invocation with state.
func (p Part) IsTool() bool {
	return p.Type == PartTool && p.State != nil
}

// ToolState is the lifecycle state of a tool invocation part.
type ToolState struct {
	Status string         `json:"status"`
	Input  map[string]any `json:"input,omitempty"`
	Output string         `json:"output,omitempty"`
	Title  string         `json:"title,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Session is a runtime conversation that prompts are sent to.
type Session struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	Directory string `json:"directory,omitempty"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a message together with its parts, as returned by the message listing.
type Message struct {
	Info  MessageInfo `json:"info"`
	Parts []Part      `json:"parts"`
}

// MessageInfo carries message metadata, including usage for assistant messages.
type MessageInfo struct {
	ID        string  `json:"id"`
	SessionID string  `json:"sessionID"`
	Role      string  `json:"role"`
	Cost      float64 `json:"cost,omitempty"`
	Tokens    Tokens  `json:"tokens"`
}

// Tokens is the token accounting for one assistant message.
type Tokens struct {
	Input     int         `json:"input"`
	Output    int         `json:"output"`
	Reasoning int         `json:"reasoning"`
	Cache     CacheTokens `json:"cache"`
}

// CacheTokens is prompt-cache token accounting.
type CacheTokens struct {
	Read  int `json:"read"`
	Write int `json:"write"`
}

// PromptInput is the body of a prompt request.
type PromptInput struct {
	Text  string
	Model string // provider/model, optional
	Agent string // optional
}

// ModelRef selects a model by provider and model id.
type ModelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

type textPartInput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type promptBody struct {
	Model *ModelRef       `json:"model,omitempty"`
	Agent string          `json:"agent,omitempty"`
	Parts []textPartInput `json:"parts"`
}
