package loop

import (
	"time"

	"github.com/ryanmccauley/loop/internal/status"
)

// ExitReason indicates why the loop stopped.
type ExitReason int

const (
	ExitReasonUnknown       ExitReason = iota
	ExitReasonComplete                 // Agent declared complete
	ExitReasonBlocked                  // Agent declared blocked
	ExitReasonMaxIterations            // Hit iteration limit
	ExitReasonMaxRetries               // Turn kept failing
	ExitReasonInterrupted              // Run was canceled from outside
	ExitReasonStreamClosed             // Event stream ended for good
	ExitReasonPromptFailed             // A continuation prompt could not be sent
)

// String returns a human-readable description of the exit reason.
func (r ExitReason) String() string {
	switch r {
	case ExitReasonComplete:
		return "completed"
	case ExitReasonBlocked:
		return "blocked"
	case ExitReasonMaxIterations:
		return "iteration budget exhausted"
	case ExitReasonMaxRetries:
		return "max retries exceeded"
	case ExitReasonInterrupted:
		return "interrupted"
	case ExitReasonStreamClosed:
		return "event stream closed"
	case ExitReasonPromptFailed:
		return "prompt failed"
	default:
		return "unknown"
	}
}

// Result is the overall outcome of a run.
type Result string

const (
	ResultComplete   Result = "complete"
	ResultBlocked    Result = "blocked"
	ResultIncomplete Result = "incomplete"
)

// IterationRecord is one finished turn. Records are never modified once
// appended to a report.
type IterationRecord struct {
	Index     int
	Status    *status.TaskStatus // nil when the agent declared nothing
	Cost      float64
	TokensIn  int
	TokensOut int
	Duration  time.Duration
}

// Report is the final account of a run.
type Report struct {
	RunID         string
	SessionID     string
	Records       []IterationRecord
	TotalCost     float64
	TotalDuration time.Duration
	TokensIn      int
	TokensOut     int
	Result        Result
	Reason        ExitReason
	Err           error
}

// ResultFor derives the run result from the last record's verdict.
func ResultFor(records []IterationRecord) Result {
	if len(records) == 0 {
		return ResultIncomplete
	}
	last := records[len(records)-1].Status
	if last == nil {
		return ResultIncomplete
	}
	switch last.Status {
	case status.Complete:
		return ResultComplete
	case status.Blocked:
		return ResultBlocked
	}
	return ResultIncomplete
}

// exitReasonFor maps a terminal verdict to the reason the run ends.
func exitReasonFor(k status.Kind) ExitReason {
	if k == status.Blocked {
		return ExitReasonBlocked
	}
	return ExitReasonComplete
}

// CountMisses returns how many records carry no verdict.
func CountMisses(records []IterationRecord) int {
	n := 0
	for _, r := range records {
		if r.Status == nil {
			n++
		}
	}
	return n
}

// TrailingMisses returns the length of the run of verdict-less records at
// the end of the list.
func TrailingMisses(records []IterationRecord) int {
	n := 0
	for i := len(records) - 1; i >= 0 && records[i].Status == nil; i-- {
		n++
	}
	return n
}
