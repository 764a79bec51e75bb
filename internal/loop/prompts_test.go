package loop

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ryanmccauley/loop/internal/status"
)

func TestContinuationPrompt(t *testing.T) {
	progress := &status.TaskStatus{Status: status.Progress}
	unknown := &status.TaskStatus{Status: status.Unknown}

	tests := []struct {
		name     string
		verdict  *status.TaskStatus
		misses   int
		contains []string
	}{
		{"progress", progress, 0, []string{"Continue working", `Do NOT report "progress"`}},
		{"unknown", unknown, 0, []string{"could not be understood", `"complete"`, `"blocked"`, `"progress"`}},
		{"first miss", nil, 1, []string{"MANDATORY", "task_status"}},
		{"second miss", nil, 2, []string{"WARNING", "wasted", "NOW"}},
		{"third miss", nil, 3, []string{"STOP", "3 turns"}},
		{"fifth miss", nil, 5, []string{"STOP", "5 turns"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := ContinuationPrompt(tt.verdict, tt.misses, status.DefaultTool)
			for _, s := range tt.contains {
				assert.Contains(t, got, s)
			}
		})
	}
}

func TestContinuationPromptEscalates(t *testing.T) {
	first := ContinuationPrompt(nil, 1, "")
	second := ContinuationPrompt(nil, 2, "")
	third := ContinuationPrompt(nil, 3, "")

	assert.NotEqual(t, first, second)
	assert.NotEqual(t, second, third)
	assert.NotEqual(t, first, third)
	assert.Equal(t, first, ContinuationPrompt(nil, 0, ""))
}

func TestContinuationPromptUsesToolName(t *testing.T) {
	got := ContinuationPrompt(nil, 1, "report_status")
	assert.Contains(t, got, "report_status")
	assert.NotContains(t, got, status.DefaultTool)
}

func TestRetryPrompt(t *testing.T) {
	assert.Contains(t, RetryPrompt(errors.New("rate limited"), ""), "rate limited")
	assert.Contains(t, RetryPrompt(nil, "report_status"), "report_status")
}
