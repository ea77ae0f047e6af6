package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [url]",
	Short: "Start playback",
	Long: `Start or resume playback. With a URL argument, load and play that
stream instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlay,
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause playback",
	RunE:  runSimple("pause", "Paused", func(ctx context.Context, c *connection) error { return c.player.Pause(ctx) }),
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop playback",
	RunE:  runSimple("stop", "Stopped", func(ctx context.Context, c *connection) error { return c.player.Stop(ctx) }),
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Skip to next track",
	RunE:  runSimple("next", "Skipped to next track", func(ctx context.Context, c *connection) error { return c.player.Next(ctx) }),
}

var prevCmd = &cobra.Command{
	Use:     "prev",
	Aliases: []string{"previous"},
	Short:   "Go to previous track",
	RunE:    runSimple("previous", "Went to previous track", func(ctx context.Context, c *connection) error { return c.player.Prev(ctx) }),
}

var seekCmd = &cobra.Command{
	Use:   "seek <position>",
	Short: "Seek within the current track",
	Long: `Seek to a position in the current track.

Examples:
  nstream seek 90       # 90 seconds in
  nstream seek 1:30     # same position as M:SS
  nstream seek 1:02:03  # H:MM:SS`,
	Args: cobra.ExactArgs(1),
	RunE: runSeek,
}

var volumeCmd = &cobra.Command{
	Use:   "volume <level>",
	Short: "Set the volume (0-100)",
	Args:  cobra.ExactArgs(1),
	RunE:  runVolume,
}

var muteCmd = &cobra.Command{
	Use:   "mute <on|off>",
	Short: "Mute or unmute",
	Args:  cobra.ExactArgs(1),
	RunE:  runMute,
}

var sourceCmd = &cobra.Command{
	Use:   "source <uri>",
	Short: "Load a source URI on the transport",
	Args:  cobra.ExactArgs(1),
	RunE:  runSource,
}

func init() {
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(prevCmd)
	rootCmd.AddCommand(seekCmd)
	rootCmd.AddCommand(volumeCmd)
	rootCmd.AddCommand(muteCmd)
	rootCmd.AddCommand(sourceCmd)
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func runSimple(status, message string, do func(context.Context, *connection) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		conn, err := connect(ctx)
		if err != nil {
			return err
		}
		if err := do(ctx, conn); err != nil {
			return fmt.Errorf("failed to %s: %w", status, err)
		}

		printStatus(status, message)
		return nil
	}
}

func runPlay(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	conn, err := connect(ctx)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		if err := conn.player.PlayURL(ctx, args[0], "", "", "", ""); err != nil {
			return fmt.Errorf("failed to play %s: %w", args[0], err)
		}
		printStatus("playing", "Playing "+args[0])
		return nil
	}

	if err := conn.player.Play(ctx); err != nil {
		return fmt.Errorf("failed to play: %w", err)
	}
	printStatus("playing", "Playing")
	return nil
}

func runSeek(cmd *cobra.Command, args []string) error {
	position, err := parsePosition(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	conn, err := connect(ctx)
	if err != nil {
		return err
	}
	if err := conn.player.Seek(ctx, position); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	printStatus("seeked", "Seeked to "+formatPosition(position))
	return nil
}

func runVolume(cmd *cobra.Command, args []string) error {
	level, err := strconv.Atoi(args[0])
	if err != nil || level < 0 || level > 100 {
		return fmt.Errorf("volume must be a number between 0 and 100")
	}

	ctx, cancel := commandContext()
	defer cancel()

	conn, err := connect(ctx)
	if err != nil {
		return err
	}
	if err := conn.player.SetVolume(ctx, level); err != nil {
		return fmt.Errorf("failed to set volume: %w", err)
	}

	printStatus("volume set", fmt.Sprintf("Volume set to %d%%", level))
	return nil
}

func runMute(cmd *cobra.Command, args []string) error {
	var mute bool
	switch args[0] {
	case "on", "true", "1":
		mute = true
	case "off", "false", "0":
		mute = false
	default:
		return fmt.Errorf("mute takes 'on' or 'off'")
	}

	ctx, cancel := commandContext()
	defer cancel()

	conn, err := connect(ctx)
	if err != nil {
		return err
	}
	if err := conn.player.SetMute(ctx, mute); err != nil {
		return fmt.Errorf("failed to set mute: %w", err)
	}

	if mute {
		printStatus("muted", "Muted")
	} else {
		printStatus("unmuted", "Unmuted")
	}
	return nil
}

func runSource(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	conn, err := connect(ctx)
	if err != nil {
		return err
	}
	if err := conn.player.SelectSource(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to select source: %w", err)
	}

	printStatus("source set", "Source set to "+args[0])
	return nil
}

func printStatus(status, message string) {
	if JSONOutput() {
		_ = json.NewEncoder(os.Stdout).Encode(map[string]string{"status": status})
		return
	}
	fmt.Println(message)
}

// parsePosition accepts bare seconds, M:SS, or H:MM:SS.
func parsePosition(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, nil
	}

	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err == nil {
		return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
	}
	if _, err := fmt.Sscanf(s, "%d:%d", &m, &sec); err == nil {
		return time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
	}
	return 0, fmt.Errorf("invalid position %q (use seconds, M:SS or H:MM:SS)", s)
}

func formatPosition(d time.Duration) string {
	total := int(d.Seconds())
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
