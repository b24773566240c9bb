// Package styles provides shared lipgloss styles for terminal output.
package styles

import "charm.land/lipgloss/v2"

// Colors used throughout the UI
var (
	// Accent highlights active elements such as the spinner (pink)
	Accent = lipgloss.Color("212")

	// Muted is used for secondary text (gray)
	Muted = lipgloss.Color("240")
)

// Common styles
var (
	// Bold applies bold formatting
	Bold = lipgloss.NewStyle().Bold(true)

	// AccentStyle applies the accent color with bold
	AccentStyle = lipgloss.NewStyle().
			Foreground(Accent).
			Bold(true)

	// MutedStyle applies the muted color
	MutedStyle = lipgloss.NewStyle().Foreground(Muted)
)
