package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/workflow"
)

var (
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#10B981")
	accentColor    = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	fgColor        = lipgloss.Color("#CDD6F4")
	mutedColor     = lipgloss.Color("#6C7086")
	borderColor    = lipgloss.Color("#45475A")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(fgColor).
			Background(primaryColor).
			Padding(0, 2).
			MarginBottom(1)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	detailBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(1, 2)

	okStyle = lipgloss.NewStyle().
		Foreground(secondaryColor).
		Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(accentColor)
)

// stateStyle colors a comment state by how the classifier judged it.
func stateStyle(state workflow.State) lipgloss.Style {
	switch state {
	case workflow.StateHamReady, workflow.StatePublishedHam:
		return lipgloss.NewStyle().Foreground(accentColor)
	case workflow.StateRejected, workflow.StateSpam:
		return lipgloss.NewStyle().Foreground(errorColor)
	default:
		return lipgloss.NewStyle().Foreground(secondaryColor)
	}
}
