// Package tui holds the lipgloss/huh styling shared by the operator
// command-line tools (cmd/matrixsched-monitor, cmd/matrixsched-submit).
// Adapted from the teacher's internal/tui/styles.go: same neon palette
// and huh theme, exported so both entry points can share one definition
// instead of each hand-rolling its own color set.
package tui

import (
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

var (
	Primary   = lipgloss.Color("#00FFFF") // Cyan/Aqua
	Secondary = lipgloss.Color("#FF6B9D") // Pink
	Accent    = lipgloss.Color("#00FF88") // Green
	Warn      = lipgloss.Color("#FFD700") // Gold
	Err       = lipgloss.Color("#FF4444") // Red
	Sub       = lipgloss.Color("241")     // Grey

	HeaderStyle = lipgloss.NewStyle().Foreground(Primary).Bold(true)

	BorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(0, 1)

	SubtleStyle = lipgloss.NewStyle().Foreground(Sub).Italic(true)
	MetricStyle = lipgloss.NewStyle().Foreground(Accent).Bold(true)
	WarnStyle   = lipgloss.NewStyle().Foreground(Warn)
	ErrStyle    = lipgloss.NewStyle().Foreground(Err)
)

// NeonTheme builds the huh form theme used by matrixsched-submit.
func NeonTheme() *huh.Theme {
	t := huh.ThemeCharm()
	t.Focused.Title = t.Focused.Title.Foreground(Primary).Bold(true)
	t.Focused.Description = t.Focused.Description.Foreground(Sub)
	t.Focused.Base = t.Focused.Base.BorderForeground(Secondary)
	t.Focused.TextInput.Cursor = t.Focused.TextInput.Cursor.Foreground(Secondary)
	t.Focused.TextInput.Placeholder = t.Focused.TextInput.Placeholder.Foreground(lipgloss.Color("240"))
	t.Focused.SelectSelector = t.Focused.SelectSelector.Foreground(Accent).SetString("› ")
	t.Focused.Option = t.Focused.Option.Foreground(lipgloss.Color("250"))
	t.Focused.SelectedOption = t.Focused.SelectedOption.Foreground(Primary).Bold(true)
	return t
}
