package loop

import "context"

// RunInfo describes a run as it starts.
type RunInfo struct {
	RunID         string
	SessionID     string
	Prompt        string
	MaxIterations int
}

// Observer is the presentation side of a run. Callbacks may be invoked from
// the event stream goroutine as well as the loop goroutine.
type Observer interface {
	OnRunStart(info RunInfo)
	OnIterationStart(index, max int)
	OnStatusChange(label string)
	OnToolUpdate(tool, state, title string)
	OnIterationComplete(rec IterationRecord)
	OnRunComplete(report *Report)
	OnInfo(msg string)
	OnWarn(msg string)
	OnError(msg string)

	// IsPaused and WaitForUnpause gate the start of the next iteration.
	IsPaused() bool
	WaitForUnpause(ctx context.Context) error
}

// NopObserver ignores everything and is never paused.
type NopObserver struct{}

func (NopObserver) OnRunStart(RunInfo) {}
func (NopObserver) OnIterationStart(int, int) {}
func (NopObserver) OnStatusChange(string) {}
func (NopObserver) OnToolUpdate(string, string, string) {}
func (NopObserver) OnIterationComplete(IterationRecord) {}
func (NopObserver) OnRunComplete(*Report) {}
func (NopObserver) OnInfo(string) {}
func (NopObserver) OnWarn(string) {}
func (NopObserver) OnError(string) {}
func (NopObserver) IsPaused() bool { return false }
func (NopObserver) WaitForUnpause(context.Context) error { return nil }
