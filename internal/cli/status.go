package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tessro/nstream/internal/naim"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current playback status",
	Long:  `Queries the streamer directly and prints the current playback state.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusResult struct {
	Device   string   `json:"device"`
	State    string   `json:"state"`
	Status   string   `json:"status,omitempty"`
	Title    string   `json:"title,omitempty"`
	Artist   string   `json:"artist,omitempty"`
	Album    string   `json:"album,omitempty"`
	URI      string   `json:"uri,omitempty"`
	Position string   `json:"position,omitempty"`
	Duration string   `json:"duration,omitempty"`
	Volume   *int     `json:"volume,omitempty"`
	Mute     *bool    `json:"mute,omitempty"`
	Sources  []string `json:"sources,omitempty"`
	Actions  []string `json:"actions,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	conn, err := connect(ctx)
	if err != nil {
		return err
	}

	info, err := conn.streamer.GetTransportInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to read transport state: %w", err)
	}

	result := &statusResult{
		Device: conn.streamer.Descriptor().Name,
		State:  string(info.State),
		Status: info.Status,
	}

	if conn.caps.Position {
		if pos, err := conn.streamer.GetPositionInfo(ctx); err == nil {
			result.URI = pos.URI
			if pos.HasRel {
				result.Position = formatPosition(pos.Position)
			}
			if pos.Duration > 0 {
				result.Duration = formatPosition(pos.Duration)
			}
			// The SOAP response carries the same DIDL-Lite shape as events.
			if meta := naim.ParseTrackMetadata(pos.Metadata, conn.streamer.Descriptor().BaseURL); meta != nil {
				result.Title = meta.Track.Title
				result.Artist = meta.Track.Artist
				result.Album = meta.Track.Album
			}
		}
	}

	if conn.caps.Volume {
		if vol, err := conn.streamer.GetVolume(ctx); err == nil {
			result.Volume = &vol
		}
	}
	if conn.caps.Mute {
		if mute, err := conn.streamer.GetMute(ctx); err == nil {
			result.Mute = &mute
		}
	}
	if Verbose() {
		result.Sources = conn.caps.Sources
		if actions, err := conn.streamer.GetCurrentTransportActions(ctx); err == nil {
			result.Actions = actions
		}
	}

	if JSONOutput() {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	fmt.Printf("%s: %s\n", result.Device, result.State)
	if result.Title != "" {
		fmt.Printf("  %s", result.Title)
		if result.Artist != "" {
			fmt.Printf(" - %s", result.Artist)
		}
		fmt.Println()
	}
	if result.Album != "" {
		fmt.Printf("  %s\n", result.Album)
	}
	if result.Position != "" || result.Duration != "" {
		fmt.Printf("  %s / %s\n", orDash(result.Position), orDash(result.Duration))
	}
	if result.Volume != nil {
		muted := ""
		if result.Mute != nil && *result.Mute {
			muted = " (muted)"
		}
		fmt.Printf("  volume %d%%%s\n", *result.Volume, muted)
	}
	if len(result.Sources) > 0 {
		fmt.Printf("  sinks: %v\n", result.Sources)
	}
	if len(result.Actions) > 0 {
		fmt.Printf("  actions: %v\n", result.Actions)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
