// Package console renders a run as a stream of styled lines.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ryanmccauley/loop/internal/loop"
	"github.com/ryanmccauley/loop/internal/opencode"
	"github.com/ryanmccauley/loop/internal/status"
)

// Observer prints run progress to a writer. It is safe for concurrent use:
// the loop and the event stream call it from different goroutines.
type Observer struct {
	loop.PauseGate

	mu       sync.Mutex
	out      io.Writer
	st       styles
	width    int
	notifier *Notifier
	now      func() time.Time

	started    time.Time
	lastStatus string
	lastTool   string
}

// Option configures an Observer.
type Option func(*Observer)

// WithNotifier alerts through n when the run ends.
func WithNotifier(n *Notifier) Option {
	return func(o *Observer) { o.notifier = n }
}

// WithClock overrides time.Now for elapsed-time output.
func WithClock(now func() time.Time) Option {
	return func(o *Observer) { o.now = now }
}

// New creates an Observer writing to out.
func New(out io.Writer, opts ...Option) *Observer {
	o := &Observer{
		out:   out,
		st:    newStyles(out),
		width: widthOf(out),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

var _ loop.Observer = (*Observer)(nil)

func (o *Observer) OnRunStart(info loop.RunInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.started = o.now()
	o.printf("%s  %s\n",
		o.st.header.Render("loop"),
		o.st.muted.Render(fmt.Sprintf("run %s  session %s  max %d iterations", shortID(info.RunID), info.SessionID, info.MaxIterations)),
	)
	if first := firstLine(info.Prompt); first != "" {
		o.printf("%s\n", o.st.muted.Render(truncate(first, o.width)))
	}
}

func (o *Observer) OnIterationStart(index, max int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.lastStatus = ""
	o.lastTool = ""
	title := fmt.Sprintf(" iteration %d/%d ", index, max)
	elapsed := fmt.Sprintf(" %s elapsed ", o.elapsed().Round(time.Second))
	pad := o.width - len(title) - len(elapsed) - 2
	if pad < 0 {
		pad = 0
	}
	o.printf("\n%s%s%s%s\n",
		o.st.rule.Render("──"),
		o.st.header.Render(title),
		o.st.rule.Render(strings.Repeat("─", pad)),
		o.st.muted.Render(elapsed),
	)
}

func (o *Observer) OnStatusChange(label string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if label == o.lastStatus {
		return
	}
	o.lastStatus = label
	o.printf("  %s %s\n", o.st.muted.Render(iconInfo), o.st.muted.Render(label))
}

func (o *Observer) OnToolUpdate(tool, state, title string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var icon string
	switch state {
	case opencode.ToolRunning:
		icon = o.st.muted.Render(iconWorking)
	case opencode.ToolCompleted:
		icon = o.st.success.Render(iconDone)
	case opencode.ToolError:
		icon = o.st.danger.Render(iconFailed)
	default:
		return
	}

	// The same running update arrives many times while output streams.
	key := tool + "\x00" + state + "\x00" + title
	if key == o.lastTool {
		return
	}
	o.lastTool = key

	line := fmt.Sprintf("  %s %s", icon, o.st.label.Render(tool))
	if title != "" {
		line += "  " + o.st.muted.Render(truncate(title, o.width-len(tool)-6))
	}
	o.printf("%s\n", line)
}

func (o *Observer) OnIterationComplete(rec loop.IterationRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()

	verdict := o.st.warn.Render("no status reported")
	if rec.Status != nil {
		verdict = o.verdict(rec.Status)
	}
	o.printf("  %s %s  %s\n",
		o.st.header.Render(iconVerdict),
		verdict,
		o.st.muted.Render(usage(rec.Cost, rec.TokensIn, rec.TokensOut, rec.Duration)),
	)
}

func (o *Observer) OnRunComplete(report *loop.Report) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var result string
	switch report.Result {
	case loop.ResultComplete:
		result = o.st.success.Render(string(report.Result))
	case loop.ResultBlocked:
		result = o.st.warn.Render(string(report.Result))
	default:
		result = o.st.danger.Render(string(report.Result))
	}

	o.printf("\n%s %s  %s\n", o.st.header.Render("result"), result, o.st.muted.Render(report.Reason.String()))
	if report.Err != nil && report.Reason != loop.ExitReasonInterrupted {
		o.printf("  %s %v\n", o.st.danger.Render(iconFailed), report.Err)
	}
	o.printf("  %s\n", o.st.muted.Render(fmt.Sprintf("%d iterations, %s",
		len(report.Records),
		usage(report.TotalCost, report.TokensIn, report.TokensOut, report.TotalDuration),
	)))
	if misses := loop.CountMisses(report.Records); misses > 0 {
		line := fmt.Sprintf("%d iterations without a status report", misses)
		if last := loop.TrailingMisses(report.Records); last > 1 {
			line += fmt.Sprintf(", the last %d in a row", last)
		}
		o.printf("  %s\n", o.st.muted.Render(line))
	}

	if o.notifier != nil {
		_ = o.notifier.NotifyRunEnd(report, isTerminal(o.out))
	}
}

func (o *Observer) OnInfo(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.printf("  %s %s\n", o.st.muted.Render(iconInfo), msg)
}

func (o *Observer) OnWarn(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.printf("  %s %s\n", o.st.warn.Render(iconWarn), o.st.warn.Render(msg))
}

func (o *Observer) OnError(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.printf("  %s %s\n", o.st.danger.Render(iconFailed), o.st.danger.Render(msg))
}

// Elapsed returns the time since the run started.
func (o *Observer) Elapsed() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.elapsed()
}

func (o *Observer) elapsed() time.Duration {
	if o.started.IsZero() {
		return 0
	}
	return o.now().Sub(o.started)
}

func (o *Observer) verdict(st *status.TaskStatus) string {
	label := string(st.Status)
	switch st.Status {
	case status.Complete:
		label = o.st.success.Render(label)
	case status.Blocked:
		label = o.st.warn.Render(label)
	case status.Unknown:
		label = o.st.danger.Render(label)
	default:
		label = o.st.label.Render(label)
	}
	if st.Message != "" {
		label += ": " + st.Message
	}
	return label
}

// printf must be called with mu held.
func (o *Observer) printf(format string, args ...any) {
	fmt.Fprintf(o.out, format, args...)
}

func usage(cost float64, in, out int, d time.Duration) string {
	return fmt.Sprintf("$%.4f  %s in / %s out  %s", cost, tokens(in), tokens(out), d.Round(time.Second))
}

func tokens(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

// truncate cuts s to width runes, marking the cut with an ellipsis.
func truncate(s string, width int) string {
	if width <= 1 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
