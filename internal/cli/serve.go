package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tessro/nstream/internal/player"
	"github.com/tessro/nstream/internal/remote"
	"github.com/tessro/nstream/internal/server"
	"go.uber.org/zap"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control daemon",
	Long: `Connects to the streamer, subscribes to its events and serves the
HTTP/websocket API until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := connect(ctx)
	if err != nil {
		return err
	}

	var bridge *remote.Bridge
	if b, err := buildBridge(ctx); err != nil {
		// The streamer is the primary integration; a dead blaster only costs
		// the button routes.
		log.Warn("remote bridge unavailable", zap.Error(err))
	} else if b != nil {
		bridge = b
		if stopWatch, err := bridge.WatchCatalog(); err != nil {
			log.Warn("button catalog watch unavailable", zap.Error(err))
		} else {
			defer stopWatch()
		}
	}

	monitor := player.NewMonitor(conn.client, conn.streamer, conn.player, monitorConfig(), log)
	srv := server.New(conn.player, bridge, log)

	listen := cfg.Server.Listen
	if serveListen != "" {
		listen = serveListen
	}

	errCh := make(chan error, 2)
	go func() { errCh <- monitor.Run(ctx) }()
	go func() { errCh <- srv.Run(ctx, listen) }()

	err = <-errCh
	stop()
	// Wait for the other half to finish its shutdown.
	<-errCh

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func monitorConfig() player.MonitorConfig {
	mc := player.MonitorConfig{
		NotifyPort: cfg.Streamer.NotifyPort,
	}
	if cfg.Streamer.SubscriptionTimeout > 0 {
		mc.Lease = time.Duration(cfg.Streamer.SubscriptionTimeout) * time.Second
	}
	if cfg.Streamer.FallbackPollSeconds > 0 {
		mc.PollInterval = time.Duration(cfg.Streamer.FallbackPollSeconds) * time.Second
	}
	return mc
}
