package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/tessro/nstream/internal/core"
	"github.com/tessro/nstream/internal/tui/styles"
)

// renderNowPlaying renders the now-playing panel from a snapshot.
func renderNowPlaying(snap core.Snapshot, device string, width int) string {
	header := styles.Highlight.Render(" "+device+" ") +
		styles.Dim.Render(string(snap.State))

	var lines []string
	lines = append(lines, header, "")

	if snap.State == core.StateUnreachable {
		lines = append(lines, styles.Unreachable.Render("Device unreachable"))
		lines = append(lines, styles.Dim.Render("Reconnecting..."))
	} else if snap.Track == nil || snap.Track.Title == "" {
		lines = append(lines, styles.Muted.Render("Nothing playing"))
	} else {
		icon := styles.StateIcon(string(snap.State))
		lines = append(lines, icon+" "+styles.Title.Render(snap.Track.Title))
		if snap.Track.Artist != "" {
			lines = append(lines, "  "+styles.Subtitle.Render(snap.Track.Artist))
		}
		if snap.Track.Album != "" {
			lines = append(lines, "  "+styles.Dim.Render(snap.Track.Album))
		}

		if snap.Duration != nil && *snap.Duration > 0 {
			lines = append(lines, "", renderProgress(snap, width))
		}
	}

	if footer := renderFooter(snap); footer != "" {
		lines = append(lines, "", footer)
	}

	return styles.PanelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderProgress(snap core.Snapshot, width int) string {
	total := *snap.Duration
	var position time.Duration
	if snap.Position != nil {
		position = *snap.Position
	}

	percent := 0.0
	if total > 0 {
		percent = float64(position) / float64(total) * 100
	}

	barWidth := width - 18
	if barWidth < 10 {
		barWidth = 10
	}
	return fmt.Sprintf("%s %s %s",
		formatClock(position),
		styles.ProgressBar(percent, barWidth),
		formatClock(total))
}

func renderFooter(snap core.Snapshot) string {
	footer := ""
	if snap.Source != "" {
		footer = snap.Source
	}
	if snap.Volume != nil {
		if footer != "" {
			footer += "  "
		}
		footer += fmt.Sprintf("vol %d%%", *snap.Volume)
		if snap.Mute != nil && *snap.Mute {
			footer += " (muted)"
		}
	}
	if footer == "" {
		return ""
	}
	return styles.Muted.Render(footer)
}

func formatClock(d time.Duration) string {
	d = d.Round(time.Second)
	if d >= time.Hour {
		return fmt.Sprintf("%d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
	}
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
