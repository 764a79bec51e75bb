package loop

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryanmccauley/loop/internal/opencode"
	"github.com/ryanmccauley/loop/internal/status"
	"github.com/ryanmccauley/loop/internal/testutil"
)

func rec(k status.Kind) IterationRecord {
	if k == "" {
		return IterationRecord{}
	}
	return IterationRecord{Status: &status.TaskStatus{Status: k}}
}

func TestResultFor(t *testing.T) {
	tests := []struct {
		name    string
		records []IterationRecord
		want    Result
	}{
		{"empty", nil, ResultIncomplete},
		{"complete last", []IterationRecord{rec(status.Progress), rec(status.Complete)}, ResultComplete},
		{"blocked last", []IterationRecord{rec(status.Blocked)}, ResultBlocked},
		{"progress last", []IterationRecord{rec(status.Complete), rec(status.Progress)}, ResultIncomplete},
		{"no verdict last", []IterationRecord{rec(status.Complete), rec("")}, ResultIncomplete},
		{"unknown last", []IterationRecord{rec(status.Unknown)}, ResultIncomplete},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResultFor(tt.records))
		})
	}
}

func TestMisses(t *testing.T) {
	records := []IterationRecord{rec(""), rec(status.Progress), rec(""), rec("")}
	assert.Equal(t, 3, CountMisses(records))
	assert.Equal(t, 2, TrailingMisses(records))
	assert.Equal(t, 0, TrailingMisses(nil))
}

func TestExitReasonString(t *testing.T) {
	assert.Equal(t, "max retries exceeded", ExitReasonMaxRetries.String())
	assert.Equal(t, "iteration budget exhausted", ExitReasonMaxIterations.String())
	assert.Equal(t, "unknown", ExitReason(99).String())
}

type stubMessages struct {
	msg   *opencode.Message
	err   error
	calls int
}

func (s *stubMessages) LatestAssistantMessage(context.Context, string) (*opencode.Message, error) {
	s.calls++
	return s.msg, s.err
}

func TestReconcilerInlineWins(t *testing.T) {
	src := &stubMessages{msg: testutil.AssistantMessage("s", 0, 0, 0, testutil.StatusPart("task_status", "progress", ""))}
	r := NewReconciler(src, status.DefaultTool)

	inline := &status.TaskStatus{Status: status.Complete}
	got, msg, err := r.Resolve(context.Background(), inline, "s")
	require.NoError(t, err)
	assert.Same(t, inline, got)
	assert.Nil(t, msg)
	assert.Zero(t, src.calls)
}

func TestReconcilerPull(t *testing.T) {
	src := &stubMessages{msg: testutil.AssistantMessage("s", 0.2, 1, 1, testutil.StatusPart("task_status", "blocked", "why"))}
	r := NewReconciler(src, status.DefaultTool)

	got, msg, err := r.Resolve(context.Background(), nil, "s")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, status.Blocked, got.Status)
	assert.Same(t, src.msg, msg)
	assert.Equal(t, 1, src.calls)
}

func TestReconcilerPullEmptyAndError(t *testing.T) {
	r := NewReconciler(&stubMessages{}, status.DefaultTool)
	got, msg, err := r.Resolve(context.Background(), nil, "s")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Nil(t, msg)

	boom := errors.New("boom")
	r = NewReconciler(&stubMessages{err: boom}, status.DefaultTool)
	_, _, err = r.Resolve(context.Background(), nil, "s")
	assert.ErrorIs(t, err, boom)
}
