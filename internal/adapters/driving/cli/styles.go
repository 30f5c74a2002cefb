package cli

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles contains pre-configured lipgloss styles for command output.
type Styles struct {
	// Title style for headers.
	Title lipgloss.Style

	// Muted style for less important text.
	Muted lipgloss.Style

	// Success indicates positive outcomes.
	Success lipgloss.Style

	// Warning indicates caution.
	Warning lipgloss.Style

	// Error indicates problems.
	Error lipgloss.Style

	// Source style for retrieved source listings.
	Source lipgloss.Style
}

// DefaultStyles returns the default colour styling.
func DefaultStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")), // Purple

		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C7086")), // Medium gray

		Success: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A6E3A1")), // Green

		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F9E2AF")), // Yellow

		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F38BA8")), // Red

		Source: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#06B6D4")), // Cyan
	}
}

// styles is the shared style set used by the commands.
var styles = DefaultStyles()
