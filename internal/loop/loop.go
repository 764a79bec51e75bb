package loop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ryanmccauley/loop/internal/events"
	"github.com/ryanmccauley/loop/internal/logging"
	"github.com/ryanmccauley/loop/internal/opencode"
	"github.com/ryanmccauley/loop/internal/status"
)

// Defaults for Options.
const (
	DefaultMaxIterations = 20
	DefaultMaxRetries    = 3

	abortTimeout  = 5 * time.Second
	readyTimeout  = 10 * time.Second
	resyncTimeout = 5 * time.Second
)

// Runtime is the part of the opencode client the loop drives.
type Runtime interface {
	events.Source
	MessageSource
	CreateSession(ctx context.Context, title string) (*opencode.Session, error)
	Prompt(ctx context.Context, sessionID string, in opencode.PromptInput) error
	Abort(ctx context.Context, sessionID string) error
	SessionStatus(ctx context.Context, sessionID string) (opencode.StatusInfo, error)
}

// Options configure a run.
type Options struct {
	Prompt        string
	MaxIterations int
	MaxRetries    int
	Model         string // provider/model, optional
	Agent         string // optional
	StatusTool    string
	SessionTitle  string
	RunID         string // generated when empty

	Sleep  SleepFunc        // optional: for deterministic retry backoff in tests
	Now    func() time.Time // optional: for deterministic durations in tests
	Logger *logging.Logger
}

// Orchestrator drives one agent session through repeated turns until it
// declares itself complete or blocked, or a limit is reached.
type Orchestrator struct {
	rt     Runtime
	obs    Observer
	opts   Options
	logger *logging.Logger
}

// New creates an Orchestrator. A nil observer is replaced with NopObserver.
func New(rt Runtime, obs Observer, opts Options) *Orchestrator {
	if obs == nil {
		obs = NopObserver{}
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.StatusTool == "" {
		opts.StatusTool = status.DefaultTool
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.SessionTitle == "" {
		opts.SessionTitle = "loop " + opts.RunID[:8]
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Orchestrator{
		rt:     rt,
		obs:    obs,
		opts:   opts,
		logger: logger.With("run", opts.RunID),
	}
}

// runState is owned by the Run goroutine.
type runState struct {
	iteration int
	misses    int
	aborted   bool
	started   time.Time
	records   []IterationRecord
	totalCost float64
	tokensIn  int
	tokensOut int
}

func (s *runState) append(rec IterationRecord) {
	s.records = append(s.records, rec)
	s.totalCost += rec.Cost
	s.tokensIn += rec.TokensIn
	s.tokensOut += rec.TokensOut
}

// Run executes the iteration loop until an exit condition is met.
//
// Canceling ctx is treated as an interrupt: the in-flight turn is aborted on
// a best-effort basis and the report so far is returned. Failing to create
// the session or to send the first prompt returns an error and no report.
// Every other ending produces exactly one report, also passed to the
// observer's OnRunComplete.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	st := &runState{iteration: 1, started: o.opts.Now()}

	session, err := o.rt.CreateSession(ctx, o.opts.SessionTitle)
	if err != nil {
		return nil, err
	}
	logger := o.logger.With("session", session.ID)

	o.obs.OnRunStart(RunInfo{
		RunID:         o.opts.RunID,
		SessionID:     session.ID,
		Prompt:        o.opts.Prompt,
		MaxIterations: o.opts.MaxIterations,
	})

	coord := NewCoordinator(o.opts.Sleep, logger)
	var inline Latch[*status.TaskStatus]

	bridge := events.Subscribe(context.WithoutCancel(ctx), o.rt, events.Options{
		SessionID:  session.ID,
		StatusTool: o.opts.StatusTool,
		Logger:     logger,
	}, events.Callbacks{
		OnIdle: func() {
			if !coord.Idle() {
				logger.Debug("idle without a pending wait")
			}
		},
		OnError: func(sessionID string, err error) {
			if sessionID == "" {
				o.obs.OnWarn(fmt.Sprintf("event stream: %v", err))
				return
			}
			o.obs.OnError(fmt.Sprintf("turn failed: %v", err))
			if !coord.Fail(err) {
				logger.Debug("error without a pending wait", "error", err)
			}
		},
		OnBusy:       coord.Busy,
		OnStatus:     o.obs.OnStatusChange,
		OnToolUpdate: o.obs.OnToolUpdate,
		OnTaskStatus: inline.Store,
		OnReconnect: func() {
			o.resync(coord, session.ID, logger)
		},
	})
	defer bridge.Abort()
	coord.WatchStream(bridge.Done())

	// A turn that ends before the subscription is live would never be seen.
	select {
	case <-bridge.Ready():
	case <-time.After(readyTimeout):
		logger.Warn("event stream not confirmed, sending first prompt anyway")
	case <-ctx.Done():
		return o.interrupt(session.ID, st, logger), nil
	}

	reconciler := NewReconciler(o.rt, o.opts.StatusTool)
	sentFirst := false
	prompt := o.opts.Prompt

	for {
		// A verdict captured during an earlier turn never counts for this one
		inline.Reset()

		o.obs.OnIterationStart(st.iteration, o.opts.MaxIterations)
		iterStart := o.opts.Now()
		ilog := logger.With("iteration", st.iteration)

		send := func(ctx context.Context) error {
			if err := o.send(ctx, session.ID, prompt); err != nil {
				return err
			}
			sentFirst = true
			return nil
		}
		onRetry := func(ctx context.Context, retry int, cause error) error {
			o.obs.OnWarn(fmt.Sprintf("retrying turn (%d/%d)", retry, o.opts.MaxRetries))
			return o.send(ctx, session.ID, RetryPrompt(cause, o.opts.StatusTool))
		}

		outcome, err := coord.WaitForIdleOrError(ctx, o.opts.MaxRetries, send, onRetry)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return o.interrupt(session.ID, st, logger), nil
			case !sentFirst:
				return nil, fmt.Errorf("failed to send initial prompt: %w", err)
			case errors.Is(err, opencode.ErrStreamClosed):
				o.obs.OnError("event stream closed; cannot observe further turns")
				return o.finish(session.ID, st, ExitReasonStreamClosed, err), nil
			default:
				o.obs.OnError(fmt.Sprintf("failed to send prompt: %v", err))
				return o.finish(session.ID, st, ExitReasonPromptFailed, err), nil
			}
		}

		if outcome == OutcomeErrorExhausted {
			rec := o.record(st.iteration, nil, o.usage(ctx, session.ID, ilog), iterStart)
			st.append(rec)
			o.obs.OnIterationComplete(rec)
			o.obs.OnError("max retries exceeded")
			return o.finish(session.ID, st, ExitReasonMaxRetries, nil), nil
		}

		inlineVerdict, _ := inline.Take()
		verdict, msg, err := reconciler.Resolve(ctx, inlineVerdict, session.ID)
		if err != nil {
			if ctx.Err() != nil {
				return o.interrupt(session.ID, st, logger), nil
			}
			ilog.Warn("failed to read turn output", "error", err)
			o.obs.OnWarn(fmt.Sprintf("could not read turn output: %v", err))
		} else if msg == nil && inlineVerdict != nil {
			msg = o.usage(ctx, session.ID, ilog)
		}

		rec := o.record(st.iteration, verdict, msg, iterStart)
		st.append(rec)
		o.obs.OnIterationComplete(rec)
		ilog.Info("iteration complete", "verdict", verdictLabel(verdict), "cost", rec.Cost)

		if verdict != nil {
			st.misses = 0
			if verdict.Status.Terminal() {
				return o.finish(session.ID, st, exitReasonFor(verdict.Status), nil), nil
			}
		} else {
			st.misses++
			o.obs.OnWarn(fmt.Sprintf("no status reported (%d in a row)", st.misses))
		}

		if st.iteration+1 > o.opts.MaxIterations {
			return o.finish(session.ID, st, ExitReasonMaxIterations, nil), nil
		}
		st.iteration++

		if o.obs.IsPaused() {
			o.obs.OnInfo("paused")
			if err := o.obs.WaitForUnpause(ctx); err != nil {
				if ctx.Err() != nil {
					return o.interrupt(session.ID, st, logger), nil
				}
				o.obs.OnWarn(fmt.Sprintf("pause wait failed: %v", err))
			} else {
				o.obs.OnInfo("resumed")
			}
		}

		prompt = ContinuationPrompt(verdict, st.misses, o.opts.StatusTool)
	}
}

// resync recovers an idle that fell into a gap in the event stream. It runs
// on the stream goroutine, so events received after the reconnect are only
// dispatched once the check is done.
func (o *Orchestrator) resync(coord *Coordinator, sessionID string, logger *logging.Logger) {
	if !coord.Pending() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()

	st, err := o.rt.SessionStatus(ctx, sessionID)
	if err != nil {
		logger.Warn("failed to check session after reconnect", "error", err)
		return
	}
	if st.Type == opencode.StatusIdle && coord.Settle() {
		logger.Info("turn finished while the event stream was down")
		o.obs.OnWarn("event stream dropped the end of the turn; recovered it from the session status")
	}
}

func (o *Orchestrator) send(ctx context.Context, sessionID, text string) error {
	return o.rt.Prompt(ctx, sessionID, opencode.PromptInput{
		Text:  text,
		Model: o.opts.Model,
		Agent: o.opts.Agent,
	})
}

// usage fetches the latest assistant message for cost accounting only.
func (o *Orchestrator) usage(ctx context.Context, sessionID string, logger *logging.Logger) *opencode.Message {
	msg, err := o.rt.LatestAssistantMessage(ctx, sessionID)
	if err != nil {
		logger.Debug("failed to read usage", "error", err)
		return nil
	}
	return msg
}

func (o *Orchestrator) record(index int, verdict *status.TaskStatus, msg *opencode.Message, started time.Time) IterationRecord {
	rec := IterationRecord{
		Index:    index,
		Status:   verdict,
		Duration: o.opts.Now().Sub(started),
	}
	if msg != nil {
		rec.Cost = msg.Info.Cost
		rec.TokensIn = msg.Info.Tokens.Input
		rec.TokensOut = msg.Info.Tokens.Output + msg.Info.Tokens.Reasoning
	}
	return rec
}

// interrupt handles an external cancel: abort the turn, then report.
func (o *Orchestrator) interrupt(sessionID string, st *runState, logger *logging.Logger) *Report {
	st.aborted = true
	o.obs.OnWarn("interrupted, aborting session")

	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()
	if err := o.rt.Abort(ctx, sessionID); err != nil {
		logger.Debug("abort failed", "error", err)
	}

	return o.finish(sessionID, st, ExitReasonInterrupted, context.Canceled)
}

func (o *Orchestrator) finish(sessionID string, st *runState, reason ExitReason, err error) *Report {
	report := &Report{
		RunID:         o.opts.RunID,
		SessionID:     sessionID,
		Records:       st.records,
		TotalCost:     st.totalCost,
		TotalDuration: o.opts.Now().Sub(st.started),
		TokensIn:      st.tokensIn,
		TokensOut:     st.tokensOut,
		Result:        ResultFor(st.records),
		Reason:        reason,
		Err:           err,
	}
	o.logger.Info("run finished",
		"session", sessionID,
		"result", string(report.Result),
		"reason", reason.String(),
		"iterations", len(st.records),
	)
	o.obs.OnRunComplete(report)
	return report
}

func verdictLabel(v *status.TaskStatus) string {
	if v == nil {
		return "none"
	}
	return string(v.Status)
}
