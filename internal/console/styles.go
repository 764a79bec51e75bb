package console

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Semantic color palette.
var (
	colorPrimary = lipgloss.Color("#00BFFF") // headers
	colorSuccess = lipgloss.Color("#00E676") // complete
	colorAccent  = lipgloss.Color("#FFD700") // warnings, blocked
	colorDanger  = lipgloss.Color("#FF5252") // errors
	colorMuted   = lipgloss.Color("#8C8C8C") // detail
)

// Status icons.
const (
	iconDone    = "✓"
	iconFailed  = "✗"
	iconWorking = "◎"
	iconInfo    = "·"
	iconWarn    = "!"
	iconVerdict = "→"
)

// styles are bound to one renderer so color output follows the writer's
// capabilities.
type styles struct {
	header  lipgloss.Style
	rule    lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	warn    lipgloss.Style
	danger  lipgloss.Style
	label   lipgloss.Style
}

func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	return styles{
		header:  r.NewStyle().Foreground(colorPrimary).Bold(true),
		rule:    r.NewStyle().Foreground(colorMuted),
		muted:   r.NewStyle().Foreground(colorMuted),
		success: r.NewStyle().Foreground(colorSuccess).Bold(true),
		warn:    r.NewStyle().Foreground(colorAccent),
		danger:  r.NewStyle().Foreground(colorDanger).Bold(true),
		label:   r.NewStyle().Bold(true),
	}
}
