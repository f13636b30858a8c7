// Package tui is the terminal front end for VeriSafe.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	Foreground  = lipgloss.Color("#f2f2f2")
	Primary     = lipgloss.Color("#8BC34A")
	Muted       = lipgloss.Color("#7a8599")
	Border      = lipgloss.Color("#2a3850")
	Destructive = lipgloss.Color("#e53935")
	Warning     = lipgloss.Color("#FFC107")
)

// Styles groups the lipgloss styles used by the screens.
type Styles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Card     lipgloss.Style
	Button   lipgloss.Style
	Disabled lipgloss.Style
	Success  lipgloss.Style
	Failure  lipgloss.Style
	Error    lipgloss.Style
	Notice   lipgloss.Style
	Muted    lipgloss.Style
	Copied   lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(Primary),
		Subtitle: lipgloss.NewStyle().Foreground(Muted),
		Card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Border).
			Padding(1, 2).
			Width(64),
		Button:   lipgloss.NewStyle().Bold(true).Foreground(Foreground).Background(Border).Padding(0, 2),
		Disabled: lipgloss.NewStyle().Foreground(Muted).Padding(0, 2),
		Success:  lipgloss.NewStyle().Bold(true).Foreground(Primary),
		Failure:  lipgloss.NewStyle().Bold(true).Foreground(Destructive),
		Error:    lipgloss.NewStyle().Foreground(Destructive),
		Notice:   lipgloss.NewStyle().Foreground(Warning),
		Muted:    lipgloss.NewStyle().Foreground(Muted),
		Copied:   lipgloss.NewStyle().Foreground(Primary),
	}
}
