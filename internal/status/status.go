// Package status classifies the agent's declared task status from the parts
// of one turn.
package status

import (
	"fmt"
	"strings"

	"github.com/ryanmccauley/loop/internal/opencode"
)

// DefaultTool is the name of the tool the agent calls to declare its status.
const DefaultTool = "task_status"

// Kind is the declared status value.
type Kind string

const (
	Complete Kind = "complete"
	Blocked  Kind = "blocked"
	Progress Kind = "progress"
	// Unknown means the status tool was called but its payload was unusable.
	Unknown Kind = "unknown"
)

// Terminal reports whether the status ends the run.
func (k Kind) Terminal() bool {
	return k == Complete || k == Blocked
}

// TaskStatus is the verdict for one turn.
type TaskStatus struct {
	Status  Kind   `json:"status"`
	Message string `json:"message,omitempty"`
}

func (s TaskStatus) String() string {
	if s.Message == "" {
		return string(s.Status)
	}
	return fmt.Sprintf("%s: %s", s.Status, s.Message)
}

// MatchesTool reports whether a tool name refers to the status tool, either
// exactly or through a namespaced variant such as "loop_task_status".
func MatchesTool(name, tool string) bool {
	if tool == "" {
		tool = DefaultTool
	}
	return name == tool || strings.HasSuffix(name, tool)
}

// Classify returns the verdict declared in a turn's parts, or nil when the
// turn never called the status tool. Only the most recent status call counts.
// A most recent call that is still pending or running yields nil.
func Classify(parts []opencode.Part, tool string) *TaskStatus {
	for i := len(parts) - 1; i >= 0; i-- {
		p := parts[i]
		if p.Type != opencode.PartTool || !MatchesTool(p.Tool, tool) {
			continue
		}
		st, _ := FromPart(p, tool)
		return st
	}
	return nil
}

// FromPart classifies a single part. ok is false when the part is not a
// finished (completed or errored) call of the status tool.
func FromPart(p opencode.Part, tool string) (st *TaskStatus, ok bool) {
	if !p.IsTool() || !MatchesTool(p.Tool, tool) {
		return nil, false
	}

	switch p.State.Status {
	case opencode.ToolCompleted:
		return fromInput(p.State.Input), true
	case opencode.ToolError:
		msg := p.State.Error
		if msg == "" {
			msg = "unknown error"
		}
		return &TaskStatus{Status: Unknown, Message: "status tool failed: " + msg}, true
	}
	return nil, false
}

func fromInput(input map[string]any) *TaskStatus {
	st := &TaskStatus{Status: Unknown}
	if msg, ok := input["message"].(string); ok {
		st.Message = msg
	}

	raw, _ := input["status"].(string)
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case Complete:
		st.Status = Complete
	case Blocked:
		st.Status = Blocked
	case Progress:
		st.Status = Progress
	}
	return st
}
