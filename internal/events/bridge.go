// Package events bridges the runtime's push stream to a small callback set
// for a single target session.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ryanmccauley/loop/internal/logging"
	"github.com/ryanmccauley/loop/internal/opencode"
	"github.com/ryanmccauley/loop/internal/status"
)

// Source is the subscription side of the runtime client.
type Source interface {
	Subscribe(ctx context.Context) (<-chan *opencode.Event, <-chan error)
}

// Callbacks receive the target session's events. Nil callbacks are skipped.
// They run on the bridge goroutine and must not block for long.
type Callbacks struct {
	// OnIdle fires when the target session finishes a turn.
	OnIdle func()

	// OnError fires when the target session's turn fails. An empty
	// sessionID means the stream itself failed rather than the session.
	OnError func(sessionID string, err error)

	// OnStatus receives a readable label for session status changes.
	OnStatus func(label string)

	// OnBusy fires when the target session reports it is working on a turn.
	OnBusy func()

	// OnToolUpdate fires for tool parts. title is set only while running
	// or once completed.
	OnToolUpdate func(tool, state, title string)

	// OnTaskStatus fires when a finished status tool call is observed.
	OnTaskStatus func(st *status.TaskStatus)

	// OnReconnect fires when the stream comes back after an interruption.
	// Events emitted while it was down are lost.
	OnReconnect func()
}

// Options configure a subscription.
type Options struct {
	SessionID  string
	StatusTool string
	Logger     *logging.Logger
}

// Handle is a running subscription.
type Handle struct {
	cancel  context.CancelFunc
	aborted atomic.Bool
	once    sync.Once
	done    chan struct{}

	readyOnce sync.Once
	ready     chan struct{}
}

// Subscribe opens one push subscription and dispatches events for
// opts.SessionID until Abort is called or the stream ends.
func Subscribe(ctx context.Context, src Source, opts Options, cb Callbacks) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
		ready:  make(chan struct{}),
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.With("session", opts.SessionID)

	eventCh, errCh := src.Subscribe(ctx)
	d := &dispatcher{
		sessionID:  opts.SessionID,
		statusTool: opts.StatusTool,
		cb:         cb,
		logger:     logger,
	}
	go h.run(d, eventCh, errCh)

	return h
}

// Abort stops the subscription. It is safe to call more than once, from any
// goroutine, and after the stream has ended on its own.
func (h *Handle) Abort() {
	h.once.Do(func() {
		h.aborted.Store(true)
		h.cancel()
	})
}

// Ready is closed once the first event arrives (the server greets every new
// subscription with server.connected) or the stream ends. Events emitted by
// the server before Ready are not seen.
func (h *Handle) Ready() <-chan struct{} {
	return h.ready
}

func (h *Handle) markReady() {
	h.readyOnce.Do(func() { close(h.ready) })
}

// Done is closed once the stream goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) run(d *dispatcher, eventCh <-chan *opencode.Event, errCh <-chan error) {
	defer close(h.done)
	defer h.cancel()
	defer h.markReady()

	for eventCh != nil || errCh != nil {
		select {
		case e, ok := <-eventCh:
			if !ok {
				eventCh = nil
				continue
			}
			h.markReady()
			if h.aborted.Load() {
				return
			}
			d.dispatch(e)

		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if h.aborted.Load() {
				return
			}
			d.logger.Warn("event stream error", "error", err)
			if d.cb.OnError != nil {
				d.cb.OnError("", err)
			}
		}
	}
}

type dispatcher struct {
	sessionID  string
	statusTool string
	cb         Callbacks
	logger     *logging.Logger
	greetings  int
}

func (d *dispatcher) dispatch(e *opencode.Event) {
	switch e.Type {
	case opencode.EventServerConnected:
		// Every connection, including each reconnect, starts with a greeting.
		d.greetings++
		if d.greetings > 1 {
			d.logger.Info("event stream reconnected")
			if d.cb.OnReconnect != nil {
				d.cb.OnReconnect()
			}
		}

	case opencode.EventSessionIdle:
		p, err := e.SessionIdle()
		if err != nil || p.SessionID != d.sessionID {
			return
		}
		d.logger.Debug("session idle")
		if d.cb.OnIdle != nil {
			d.cb.OnIdle()
		}

	case opencode.EventSessionError:
		p, err := e.SessionError()
		if err != nil || p.SessionID != d.sessionID {
			return
		}
		var turnErr error = p.Error
		if p.Error == nil {
			turnErr = errors.New("unknown error")
		}
		d.logger.Debug("session error", "error", turnErr)
		if d.cb.OnError != nil {
			d.cb.OnError(p.SessionID, turnErr)
		}

	case opencode.EventSessionStatus:
		p, err := e.SessionStatus()
		if err != nil || p.SessionID != d.sessionID {
			return
		}
		if p.Status.Type == opencode.StatusBusy && d.cb.OnBusy != nil {
			d.cb.OnBusy()
		}
		if d.cb.OnStatus != nil {
			d.cb.OnStatus(StatusLabel(p.Status))
		}

	case opencode.EventPartUpdated:
		p, err := e.PartUpdated()
		if err != nil || p.Part.SessionID != d.sessionID || !p.Part.IsTool() {
			return
		}
		d.dispatchTool(p.Part)

	default:
		// Other runtime events are not relevant to the loop
	}
}

func (d *dispatcher) dispatchTool(part opencode.Part) {
	state := part.State.Status
	if d.cb.OnToolUpdate != nil {
		title := ""
		if state == opencode.ToolRunning || state == opencode.ToolCompleted {
			title = part.State.Title
		}
		d.cb.OnToolUpdate(part.Tool, state, title)
	}

	if st, ok := status.FromPart(part, d.statusTool); ok {
		d.logger.Debug("status declared", "status", string(st.Status))
		if d.cb.OnTaskStatus != nil {
			d.cb.OnTaskStatus(st)
		}
	}
}

// StatusLabel renders a session status for display.
func StatusLabel(s opencode.StatusInfo) string {
	if s.Type == opencode.StatusRetry {
		return fmt.Sprintf("retry (attempt %d: %s)", s.Attempt, s.Message)
	}
	return s.Type
}
