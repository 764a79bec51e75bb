package console

import (
	"fmt"
	"io"
	"os/exec"
	"runtime"

	"github.com/ryanmccauley/loop/internal/loop"
)

// Bell is the terminal bell character.
const Bell = "\a"

// Notifier alerts the user when a run ends. With a foreground terminal it
// rings the bell; otherwise it uses OS-native notifications.
type Notifier struct {
	out io.Writer
	// osNotify is swapped out in tests.
	osNotify func(title, message string) error
}

// NewNotifier creates a Notifier that writes the bell to the given output.
func NewNotifier(out io.Writer) *Notifier {
	return &Notifier{out: out, osNotify: notifyOS}
}

// Bell writes the terminal bell character to output.
func (n *Notifier) Bell() {
	fmt.Fprint(n.out, Bell)
}

// NotifyAttention sends a notification requiring user attention.
// If isForeground is true, it rings the terminal bell.
// If isForeground is false, it sends an OS notification.
func (n *Notifier) NotifyAttention(title, message string, isForeground bool) error {
	if isForeground {
		n.Bell()
		return nil
	}
	return n.osNotify(title, message)
}

// NotifyRunEnd notifies about a finished run.
func (n *Notifier) NotifyRunEnd(report *loop.Report, isForeground bool) error {
	title := "loop: " + titleFor(report.Reason)
	message := fmt.Sprintf("Session %s %s after %d iterations", report.SessionID, report.Reason, len(report.Records))
	return n.NotifyAttention(title, message, isForeground)
}

func titleFor(r loop.ExitReason) string {
	switch r {
	case loop.ExitReasonComplete:
		return "Completed"
	case loop.ExitReasonBlocked:
		return "Blocked"
	case loop.ExitReasonMaxIterations:
		return "Iteration Limit"
	case loop.ExitReasonMaxRetries:
		return "Failing"
	case loop.ExitReasonInterrupted:
		return "Interrupted"
	case loop.ExitReasonStreamClosed, loop.ExitReasonPromptFailed:
		return "Disconnected"
	default:
		return "Finished"
	}
}

// notifyOS uses osascript on macOS and is a no-op elsewhere.
func notifyOS(title, message string) error {
	if runtime.GOOS != "darwin" {
		return nil
	}
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}
