package loop

import (
	"context"

	"github.com/ryanmccauley/loop/internal/opencode"
	"github.com/ryanmccauley/loop/internal/status"
)

// MessageSource is the pull side of the runtime.
type MessageSource interface {
	LatestAssistantMessage(ctx context.Context, sessionID string) (*opencode.Message, error)
}

// Reconciler settles a turn's verdict from the value captured on the push
// stream, falling back to querying the latest assistant message.
//
// The fallback is session-scoped: it reads whatever assistant message is
// newest, which is the turn just awaited as long as turns do not overlap.
type Reconciler struct {
	src  MessageSource
	tool string
}

// NewReconciler creates a Reconciler for the given status tool name.
func NewReconciler(src MessageSource, tool string) *Reconciler {
	return &Reconciler{src: src, tool: tool}
}

// Resolve returns the turn's verdict. An inline verdict is returned as-is
// without querying the runtime; msg is then nil. Otherwise the latest
// assistant message is fetched, classified and returned alongside.
func (r *Reconciler) Resolve(ctx context.Context, inline *status.TaskStatus, sessionID string) (verdict *status.TaskStatus, msg *opencode.Message, err error) {
	if inline != nil {
		return inline, nil, nil
	}

	msg, err = r.src.LatestAssistantMessage(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if msg == nil {
		return nil, nil, nil
	}
	return status.Classify(msg.Parts, r.tool), msg, nil
}
