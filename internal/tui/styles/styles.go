// Package styles defines shared lipgloss styles for the dashboard.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	primaryColor   = lipgloss.Color("#5FAFAF") // Teal accent
	secondaryColor = lipgloss.Color("#666666") // Gray for secondary text
	successColor   = lipgloss.Color("#87AF87") // Muted sage for healthy slots
	warningColor   = lipgloss.Color("#AF875F") // Amber for working slots
	errorColor     = lipgloss.Color("#AF5F5F") // Muted terracotta for trouble

	// TitleStyle for headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// SubtleStyle for hints/help text
	SubtleStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	// SectionStyle for panel headings
	SectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// StatusBarStyle for bottom status bar
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	// BoxStyle for panel borders
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(secondaryColor).
			Padding(1, 2)

	// IdleStyle for idle slots
	IdleStyle = lipgloss.NewStyle().
			Foreground(successColor)

	// WorkingStyle for slots mid-task
	WorkingStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	// OfflineStyle for offline or stale slots
	OfflineStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	// ErrorStyle for error messages
	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)
