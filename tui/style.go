package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nathoo/talecore/engine/events"
	"github.com/nathoo/talecore/types"
)

// Styles used throughout the TUI.
var (
	styleHeader = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true).
			Padding(0, 1)

	styleStatusBar = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Bold(true)

	styleCritical = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("196")).
			Bold(true)

	styleDeltaUp = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("34"))

	styleDeltaDown = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("166"))

	stylePanel = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("61")).
			Padding(0, 1)

	styleCardLabel = lipgloss.NewStyle().
			Foreground(lipgloss.Color("111")).
			Bold(true)

	styleCardChange = lipgloss.NewStyle().
			Foreground(lipgloss.Color("228"))

	styleCardDesc = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)

	styleInputPrompt = lipgloss.NewStyle().
				Foreground(lipgloss.Color("34"))

	styleNarrative = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	styleChoice = lipgloss.NewStyle().
			Foreground(lipgloss.Color("117"))

	styleHint = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	styleEvent = lipgloss.NewStyle().
			Foreground(lipgloss.Color("228"))

	styleAlarm = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	styleSystem = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	stylePlayerInput = lipgloss.NewStyle().
				Foreground(lipgloss.Color("34"))

	styleTrace = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// lineKind identifies the type of a transcript line for styling.
type lineKind int

const (
	kindNarrative lineKind = iota
	kindInput
	kindSystem
	kindTrace
)

// styledEvent renders "[type] message". Engine events and alarms are
// highlighted.
func styledEvent(e types.Event) string {
	text := "[" + e.Type + "] " + e.Message
	switch {
	case events.System(e), e.Type == "alarm", e.Type == "warning":
		return styleAlarm.Render(text)
	default:
		return styleEvent.Render(text)
	}
}

// styledSystemMsg renders a system message in gray with brackets.
func styledSystemMsg(text string) string {
	return styleSystem.Render("[" + text + "]")
}

// meterBar draws a fixed-width gauge for a fraction in [0, 1].
func meterBar(frac float64, width int) string {
	filled := int(frac*float64(width) + 0.5)
	filled = min(max(filled, 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
