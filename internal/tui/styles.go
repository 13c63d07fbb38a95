package tui

import "github.com/charmbracelet/lipgloss"

// Color Palette
var (
	accent    = lipgloss.Color("#7AA2F7")
	mintGreen = lipgloss.Color("#A8E6CF")
	salmon    = lipgloss.Color("#FFB3BA")
	mutedGray = lipgloss.Color("#6B7280")
	white     = lipgloss.Color("#F9FAFB")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accent)

	labelStyle = lipgloss.NewStyle().
			Foreground(white)

	stateStyle = lipgloss.NewStyle().
			Foreground(mintGreen)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(salmon)

	statusStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	buttonStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedGray).
			Foreground(white).
			Padding(0, 1)

	focusedButtonStyle = buttonStyle.
				BorderForeground(accent).
				Foreground(accent).
				Bold(true)

	disabledButtonStyle = buttonStyle.
				Foreground(mutedGray).
				Faint(true)

	selectedRuleStyle = lipgloss.NewStyle().
				Foreground(accent).
				Bold(true)

	editorStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1)
)
