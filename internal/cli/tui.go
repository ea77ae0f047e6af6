package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tessro/nstream/internal/player"
	"github.com/tessro/nstream/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:     "ui",
	Aliases: []string{"tui"},
	Short:   "Launch the live now-playing dashboard",
	Long: `Launch the interactive terminal dashboard. The view follows the
streamer's own events, so changes made on the device or another app
show up immediately.

Keyboard shortcuts:
  q, Ctrl+C    Quit
  Space        Play/Pause
  s            Stop
  n / p        Next / previous track
  + / -        Volume up/down
  m            Mute toggle`,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := connect(ctx)
	if err != nil {
		return err
	}

	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()
	monitor := player.NewMonitor(conn.client, conn.streamer, conn.player, monitorConfig(), log)
	go func() { _ = monitor.Run(monitorCtx) }()

	err = tui.Run(ctx, conn.player, conn.streamer.Descriptor().Name)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
