package loop

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ryanmccauley/loop/internal/logging"
	"github.com/ryanmccauley/loop/internal/opencode"
)

// Outcome is how a wait for the end of a turn finished.
type Outcome int

const (
	// OutcomeIdle means the turn finished.
	OutcomeIdle Outcome = iota
	// OutcomeErrorExhausted means the turn kept failing until retries ran out.
	OutcomeErrorExhausted
)

func (o Outcome) String() string {
	if o == OutcomeIdle {
		return "idle"
	}
	return "error-exhausted"
}

// retryDelays is the backoff before each retry; the last entry repeats.
var retryDelays = []time.Duration{0, 5 * time.Second, 15 * time.Second}

// RetryDelay returns the delay before the retry that follows `retries`
// already issued retries.
func RetryDelay(retries int) time.Duration {
	if retries < len(retryDelays) {
		return retryDelays[retries]
	}
	return retryDelays[len(retryDelays)-1]
}

// SleepFunc waits for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryFunc re-issues a continuation prompt after a failed turn. retry
// counts from 1.
type RetryFunc func(ctx context.Context, retry int, cause error) error

type turnSignal struct {
	err error // nil means idle
}

// Coordinator waits for a turn to end, retrying failed turns.
// Idle, Busy and Fail are called from the event stream goroutine; everything
// else runs on the orchestrator's goroutine.
//
// A failed turn reports session.error and then its own session.idle. That
// idle belongs to the failed turn, so after a failure idles are dropped until
// the runtime reports busy again or the trailing idle has been seen.
type Coordinator struct {
	slot       Slot[turnSignal]
	sleep      SleepFunc
	streamDone <-chan struct{}
	logger     *logging.Logger

	mu       sync.Mutex
	owesIdle bool
}

// NewCoordinator creates a Coordinator. A nil sleep uses a real timer.
func NewCoordinator(sleep SleepFunc, logger *logging.Logger) *Coordinator {
	if sleep == nil {
		sleep = sleepContext
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{sleep: sleep, logger: logger}
}

// WatchStream makes pending waits fail with opencode.ErrStreamClosed once
// done is closed. Call it before the first wait.
func (c *Coordinator) WatchStream(done <-chan struct{}) {
	c.streamDone = done
}

// Idle resolves the pending wait as finished. The idle that closes a failed
// turn, and any idle without a pending wait, is dropped and false is
// returned.
func (c *Coordinator) Idle() bool {
	c.mu.Lock()
	stale := c.owesIdle
	c.owesIdle = false
	c.mu.Unlock()

	if stale {
		c.logger.Debug("dropping idle of failed turn")
		return false
	}
	return c.slot.Resolve(turnSignal{})
}

// Settle resolves the pending wait as finished after the runtime confirmed
// the session is idle. It is used when the idle event itself may have been
// missed, so failed-turn bookkeeping is reset rather than consulted.
func (c *Coordinator) Settle() bool {
	c.mu.Lock()
	c.owesIdle = false
	c.mu.Unlock()
	return c.slot.Resolve(turnSignal{})
}

// Pending reports whether a wait is registered.
func (c *Coordinator) Pending() bool {
	return c.slot.Pending()
}

// Busy records that the runtime started working on a new turn.
func (c *Coordinator) Busy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owesIdle = false
}

// Fail resolves the pending wait as failed.
func (c *Coordinator) Fail(err error) bool {
	if err == nil {
		err = errors.New("turn failed")
	}
	c.mu.Lock()
	c.owesIdle = true
	c.mu.Unlock()
	return c.slot.Resolve(turnSignal{err: err})
}

// WaitForIdleOrError calls send and blocks until the turn it started is idle
// or has failed more than maxRetries times. The waiter is registered before
// send (and before each onRetry) so a fast turn cannot finish unobserved.
//
// An error from send or onRetry, a canceled ctx, or a closed stream is
// returned as an error; those are not outcomes.
func (c *Coordinator) WaitForIdleOrError(ctx context.Context, maxRetries int, send func(context.Context) error, onRetry RetryFunc) (Outcome, error) {
	retries := 0
	action := send

	for {
		ch, err := c.slot.Register()
		if err != nil {
			return OutcomeErrorExhausted, err
		}

		if err := action(ctx); err != nil {
			c.slot.Clear()
			return OutcomeErrorExhausted, err
		}

		var sig turnSignal
		select {
		case sig = <-ch:
		case <-ctx.Done():
			c.slot.Clear()
			return OutcomeErrorExhausted, ctx.Err()
		case <-c.streamDone:
			c.slot.Clear()
			return OutcomeErrorExhausted, opencode.ErrStreamClosed
		}

		if sig.err == nil {
			return OutcomeIdle, nil
		}

		if retries >= maxRetries {
			c.logger.Warn("turn failed, retries exhausted", "error", sig.err, "retries", retries)
			return OutcomeErrorExhausted, nil
		}

		delay := RetryDelay(retries)
		c.logger.Info("turn failed, retrying", "error", sig.err, "retry", retries+1, "delay", delay.String())
		if err := c.sleep(ctx, delay); err != nil {
			return OutcomeErrorExhausted, err
		}

		retries++
		cause := sig.err
		n := retries
		action = func(ctx context.Context) error {
			return onRetry(ctx, n, cause)
		}
	}
}
