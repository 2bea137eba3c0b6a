package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	meterWidth = 8
	panelWidth = 34
)

// renderStatusBar produces a full-width inverted status line from the
// game's status bar items, with deltas and critical markers.
func (m Model) renderStatusBar() string {
	sep := styleStatusBar.Render(" | ")
	parts := make([]string, 0, len(m.status))
	for _, s := range m.status {
		var b strings.Builder
		b.WriteString(styleStatusBar.Render(s.Label + ": "))
		if s.Meter {
			b.WriteString(styleStatusBar.Render(meterBar(s.Fraction, meterWidth) + " "))
		}
		if s.Critical {
			b.WriteString(styleCritical.Render(s.Value + " !"))
		} else {
			b.WriteString(styleStatusBar.Render(s.Value))
		}
		if s.Delta != "" {
			style := styleDeltaUp
			if strings.HasPrefix(s.Delta, "-") {
				style = styleDeltaDown
			}
			b.WriteString(style.Render(" (" + s.Delta + ")"))
		}
		parts = append(parts, b.String())
	}

	left := styleStatusBar.Render(" ") + strings.Join(parts, sep)
	right := styleStatusBar.Render(turnLabel(m.turn) + " ")
	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	return left + styleStatusBar.Render(strings.Repeat(" ", gap)) + right
}

func turnLabel(n int) string {
	return "T:" + strconv.Itoa(n)
}

// renderPanel lists the visible variable cards with their last change.
func (m Model) renderPanel(height int) string {
	var lines []string
	for _, c := range m.cards {
		header := styleCardLabel.Render("[" + c.Label + "]")
		if c.Change != "" {
			header += "  " + styleCardChange.Render("Δ "+c.Change)
		}
		lines = append(lines, header, wordWrap(c.Value, panelWidth-4))
		if c.Description != "" {
			lines = append(lines, styleCardDesc.Render(wordWrap(c.Description, panelWidth-4)))
		}
		lines = append(lines, "")
	}
	body := strings.TrimRight(strings.Join(lines, "\n"), "\n")
	return stylePanel.Width(panelWidth - 2).Height(max(height-2, 1)).Render(body)
}
