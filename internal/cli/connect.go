package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/tessro/nstream/internal/core"
	nserrors "github.com/tessro/nstream/internal/errors"
	"github.com/tessro/nstream/internal/naim"
	"github.com/tessro/nstream/internal/player"
	"github.com/tessro/nstream/internal/upnp"
	"go.uber.org/zap"
)

// connection bundles everything a command needs to talk to the streamer.
type connection struct {
	client   *upnp.Client
	streamer *naim.Streamer
	player   *player.Player
	caps     core.Capabilities
}

// connect describes and negotiates the configured streamer. Firmwares that
// do not serve a description document get the well-known Naim layout.
func connect(ctx context.Context) (*connection, error) {
	if cfg.Streamer.Host == "" {
		return nil, nserrors.WithSuggestion(nserrors.ErrDeviceNotFound,
			"Set [streamer] host in your config, or run 'nstream discover'")
	}

	timeout := time.Duration(cfg.Streamer.InvokeTimeoutSeconds) * time.Second
	client := upnp.NewClient(timeout)

	desc := describeOrDefault(ctx, client)
	streamer := naim.NewStreamer(client, desc, log)

	caps, err := client.Negotiate(ctx, desc, log)
	if err != nil {
		return nil, fmt.Errorf("negotiate with %s: %w", desc.Name, err)
	}

	return &connection{
		client:   client,
		streamer: streamer,
		player:   player.New(streamer, caps, log),
		caps:     caps,
	}, nil
}

func describeOrDefault(ctx context.Context, client *upnp.Client) *core.Descriptor {
	port := cfg.Streamer.Port
	if port == 0 {
		port = 8080
	}
	location := fmt.Sprintf("http://%s:%d/description.xml", cfg.Streamer.Host, port)

	descCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	desc, err := client.Describe(descCtx, location)
	if err != nil {
		log.Debug("description document unavailable, using fixed service layout",
			zap.String("location", location), zap.Error(err))
		return naim.DefaultDescriptor(cfg.Streamer.Host, port, cfg.Streamer.Name)
	}
	if desc.Name == "" {
		desc.Name = cfg.Streamer.Name
	}
	return desc
}
