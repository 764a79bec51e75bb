// Package testutil provides shared test utilities for loop.
//
// # Fixtures
//
// The fixtures.go file builds runtime data for tests:
//
//   - TextPart, ToolPart, StatusPart, ErroredToolPart - message parts
//   - AssistantMessage - an assistant message with usage and parts
//   - IdleEvent, ErrorEvent, StatusEvent, PartEvent - push stream events
//
// # Timeouts
//
// The timeout.go file provides deadline-aware contexts:
//
//   - ContextWithTestDeadline(t, fallback) - respects `go test -timeout`
//   - RunContext(t) - bound for a whole orchestrator run against fakes
//   - Eventually(t, timeout, cond) - polls a condition
//
// # Usage
//
//	func TestSomething(t *testing.T) {
//	    ctx, cancel := testutil.RunContext(t)
//	    defer cancel()
//	    parts := []opencode.Part{testutil.StatusPart("task_status", "complete", "done")}
//	    // ... run test ...
//	}
package testutil
