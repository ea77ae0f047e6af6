// Package styles holds the shared lipgloss styles for the dashboard.
package styles

import (
	catppuccin "github.com/catppuccin/go"
	"github.com/charmbracelet/lipgloss"
)

// Colors from the Catppuccin Mocha palette.
var (
	flavour = catppuccin.Mocha

	Primary   = lipgloss.Color(flavour.Mauve().Hex)
	Success   = lipgloss.Color(flavour.Green().Hex)
	Warning   = lipgloss.Color(flavour.Yellow().Hex)
	Error     = lipgloss.Color(flavour.Red().Hex)
	Border    = lipgloss.Color(flavour.Surface1().Hex)
	Text      = lipgloss.Color(flavour.Text().Hex)
	TextMuted = lipgloss.Color(flavour.Subtext0().Hex)
	TextDim   = lipgloss.Color(flavour.Overlay0().Hex)
)

// Text styles
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Text)

	Subtitle = lipgloss.NewStyle().
			Foreground(TextMuted)

	Muted = lipgloss.NewStyle().
		Foreground(TextMuted)

	Dim = lipgloss.NewStyle().
		Foreground(TextDim)

	Highlight = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)

	Playing = lipgloss.NewStyle().
		Foreground(Success)

	Paused = lipgloss.NewStyle().
		Foreground(Warning)

	Unreachable = lipgloss.NewStyle().
			Bold(true).
			Foreground(Error)
)

// PanelStyle is the bordered frame around the dashboard.
var PanelStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(Border).
	Padding(0, 1)

// ProgressBar renders a progress bar of the given width.
func ProgressBar(percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	filledStyle := lipgloss.NewStyle().Foreground(Primary)
	emptyStyle := lipgloss.NewStyle().Foreground(Border)

	bar := ""
	for i := 0; i < filled; i++ {
		bar += "━"
	}
	rest := ""
	for i := 0; i < width-filled; i++ {
		rest += "─"
	}
	return filledStyle.Render(bar) + emptyStyle.Render(rest)
}

// StateIcon returns a colored icon for a player state string.
func StateIcon(state string) string {
	switch state {
	case "playing":
		return Playing.Render("▶")
	case "paused":
		return Paused.Render("⏸")
	case "buffering":
		return Muted.Render("◌")
	case "unreachable":
		return Unreachable.Render("✗")
	default:
		return Dim.Render("■")
	}
}
