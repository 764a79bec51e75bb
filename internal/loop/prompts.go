package loop

import (
	"fmt"

	"github.com/ryanmccauley/loop/internal/status"
)

// ContinuationPrompt builds the prompt for the next turn from the previous
// turn's verdict and the number of consecutive turns without a verdict.
// The wording gets firmer as misses accumulate.
func ContinuationPrompt(verdict *status.TaskStatus, misses int, tool string) string {
	if tool == "" {
		tool = status.DefaultTool
	}

	if verdict != nil {
		if verdict.Status == status.Unknown {
			return unknownPrompt(tool)
		}
		return progressPrompt(tool)
	}

	switch {
	case misses <= 1:
		return firstMissPrompt(tool)
	case misses == 2:
		return secondMissPrompt(tool)
	default:
		return repeatedMissPrompt(tool, misses)
	}
}

func statusValues(tool string) string {
	return fmt.Sprintf(`Call the %s tool with one of:
- status "complete": the task is fully done and verified.
- status "blocked": you cannot continue without outside help; explain why in the message.
- status "progress": you made progress and real work remains.`, tool)
}

func progressPrompt(tool string) string {
	return fmt.Sprintf(`Good progress. Continue working on the task.

When everything is finished, call the %[1]s tool with status "complete".
Do NOT report "progress" if no work remains: if the task is done, report "complete".
If you cannot continue, report "blocked" with the reason.`, tool)
}

func unknownPrompt(tool string) string {
	return fmt.Sprintf(`Your last %[1]s call could not be understood. Continue working on the task.

%[2]s

Pass exactly one of these values as "status" and a short "message".`, tool, statusValues(tool))
}

func firstMissPrompt(tool string) string {
	return fmt.Sprintf(`You did not report your status. Reporting status is MANDATORY at the end of every turn.

Continue working on the task, then before you stop:
%s`, statusValues(tool))
}

func secondMissPrompt(tool string) string {
	return fmt.Sprintf(`WARNING: this is the second turn in a row without a status report. Every turn without a %[1]s call is wasted.

Call the %[1]s tool NOW, before doing anything else.
%[2]s`, tool, statusValues(tool))
}

func repeatedMissPrompt(tool string, misses int) string {
	return fmt.Sprintf(`STOP. You have ended %[2]d turns in a row without calling %[1]s.

Do not do any other work. Your ONLY action right now is to call the %[1]s tool.
%[3]s`, tool, misses, statusValues(tool))
}

// RetryPrompt asks the agent to pick up again after a failed turn.
func RetryPrompt(cause error, tool string) string {
	if tool == "" {
		tool = status.DefaultTool
	}
	reason := "an error"
	if cause != nil {
		reason = fmt.Sprintf("an error (%v)", cause)
	}
	return fmt.Sprintf(`The previous turn was interrupted by %s. Continue the task from where you left off.

When you stop, report your status with the %s tool.`, reason, tool)
}
