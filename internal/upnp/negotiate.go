package upnp

import (
	"context"
	"fmt"
	"strings"

	"github.com/tessro/nstream/internal/core"
	nserrors "github.com/tessro/nstream/internal/errors"
	"go.uber.org/zap"
)

// Negotiate probes the described device and produces the capability set that
// gates every command and entity. AVTransport is the minimum requirement;
// optional services degrade gracefully by disabling their commands.
func (c *Client) Negotiate(ctx context.Context, desc *core.Descriptor, log *zap.Logger) (core.Capabilities, error) {
	caps := core.Capabilities{}

	if desc.AVTransport == nil {
		return caps, fmt.Errorf("%w: %s has no AVTransport service", nserrors.ErrIncompatible, desc.Name)
	}
	caps.Transport = true

	// Volume and mute ride on RenderingControl. A present service that faults
	// on GetVolume still counts as absent: some firmwares list it but stub it.
	if desc.RenderingControl != nil {
		if _, err := c.Invoke(ctx, desc.RenderingControl.ControlURL, RenderingControlService, "GetVolume",
			map[string]string{"InstanceID": "0", "Channel": "Master"}); err == nil {
			caps.Volume = true
		} else {
			log.Debug("volume probe failed, disabling volume control", zap.Error(err))
		}
		if _, err := c.Invoke(ctx, desc.RenderingControl.ControlURL, RenderingControlService, "GetMute",
			map[string]string{"InstanceID": "0", "Channel": "Master"}); err == nil {
			caps.Mute = true
		} else {
			log.Debug("mute probe failed, disabling mute control", zap.Error(err))
		}
	}

	// Position reporting varies per firmware; seek is only offered when the
	// device answers GetPositionInfo with a usable RelTime.
	if vals, err := c.Invoke(ctx, desc.AVTransport.ControlURL, AVTransportService, "GetPositionInfo",
		map[string]string{"InstanceID": "0"}); err == nil {
		rel := strings.TrimSpace(vals["RelTime"])
		if rel != "" && rel != "NOT_IMPLEMENTED" {
			caps.Position = true
			caps.Seek = true
		}
	} else {
		log.Debug("position probe failed, disabling seek", zap.Error(err))
	}

	// ConnectionManager gives us the accepted stream protocols, which is the
	// closest thing the device has to a source enumeration.
	if desc.ConnectionManager != nil {
		if vals, err := c.Invoke(ctx, desc.ConnectionManager.ControlURL, ConnectionManagerService, "GetProtocolInfo", nil); err == nil {
			sinks := parseProtocolInfo(vals["Sink"])
			if len(sinks) > 0 {
				caps.SourceList = true
				caps.Sources = sinks
			}
		} else {
			log.Debug("protocol info probe failed, disabling source list", zap.Error(err))
		}
	}

	return caps, nil
}

// parseProtocolInfo extracts the distinct content formats from a
// ConnectionManager protocolInfo list.
func parseProtocolInfo(raw string) []string {
	seen := make(map[string]bool)
	var formats []string
	for _, entry := range strings.Split(raw, ",") {
		// http-get:*:audio/flac:*
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) < 3 || parts[2] == "" || parts[2] == "*" {
			continue
		}
		if !seen[parts[2]] {
			seen[parts[2]] = true
			formats = append(formats, parts[2])
		}
	}
	return formats
}
