package testutil

import "github.com/ryanmccauley/loop/internal/opencode"

// SamplePrompt is a task prompt used across orchestrator tests.
const SamplePrompt = `Add a --dry-run flag to the deploy command.
When set, print the planned actions and exit without applying them.`

// TextPart returns an assistant text part.
func TextPart(text string) opencode.Part {
	return opencode.Part{Type: opencode.PartText, Text: text}
}

// ToolPart returns a tool part in the given state.
func ToolPart(tool, state string, input map[string]any) opencode.Part {
	return opencode.Part{
		Type: opencode.PartTool,
		Tool: tool,
		State: &opencode.ToolState{
			Status: state,
			Input:  input,
		},
	}
}

// StatusPart returns a completed call of a status tool.
func StatusPart(tool, status, message string) opencode.Part {
	return ToolPart(tool, opencode.ToolCompleted, map[string]any{
		"status":  status,
		"message": message,
	})
}

// ErroredToolPart returns a failed tool call.
func ErroredToolPart(tool, errMsg string) opencode.Part {
	p := ToolPart(tool, opencode.ToolError, nil)
	p.State.Error = errMsg
	return p
}

// InSession sets the session id on every part.
func InSession(sessionID string, parts ...opencode.Part) []opencode.Part {
	out := make([]opencode.Part, len(parts))
	for i, p := range parts {
		p.SessionID = sessionID
		out[i] = p
	}
	return out
}

// AssistantMessage wraps parts in an assistant message with usage.
func AssistantMessage(sessionID string, cost float64, in, out int, parts ...opencode.Part) *opencode.Message {
	return &opencode.Message{
		Info: opencode.MessageInfo{
			SessionID: sessionID,
			Role:      opencode.RoleAssistant,
			Cost:      cost,
			Tokens:    opencode.Tokens{Input: in, Output: out},
		},
		Parts: InSession(sessionID, parts...),
	}
}

// IdleEvent returns a session.idle event.
func IdleEvent(sessionID string) *opencode.Event {
	return opencode.MustNewEvent(opencode.EventSessionIdle, opencode.SessionIdle{SessionID: sessionID})
}

// ErrorEvent returns a session.error event.
func ErrorEvent(sessionID, name, message string) *opencode.Event {
	info := &opencode.ErrorInfo{Name: name}
	info.Data.Message = message
	return opencode.MustNewEvent(opencode.EventSessionError, opencode.SessionError{SessionID: sessionID, Error: info})
}

// StatusEvent returns a session.status event.
func StatusEvent(sessionID string, info opencode.StatusInfo) *opencode.Event {
	return opencode.MustNewEvent(opencode.EventSessionStatus, opencode.SessionStatus{SessionID: sessionID, Status: info})
}

// PartEvent returns a message.part.updated event for a part in the session.
func PartEvent(sessionID string, p opencode.Part) *opencode.Event {
	p.SessionID = sessionID
	return opencode.MustNewEvent(opencode.EventPartUpdated, opencode.PartUpdated{Part: p})
}

// ConnectedEvent returns the server.connected greeting.
func ConnectedEvent() *opencode.Event {
	return opencode.MustNewEvent(opencode.EventServerConnected, struct{}{})
}
