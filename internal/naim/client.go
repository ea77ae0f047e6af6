package naim

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tessro/nstream/internal/core"
	"github.com/tessro/nstream/internal/upnp"
	"go.uber.org/zap"
)

// Streamer is a typed control-point client for one Naim streamer.
type Streamer struct {
	client *upnp.Client
	desc   *core.Descriptor
	log    *zap.Logger

	mu           sync.Mutex
	lastURI      string
	lastMetadata string
}

// NewStreamer creates a client bound to a described device.
func NewStreamer(client *upnp.Client, desc *core.Descriptor, log *zap.Logger) *Streamer {
	return &Streamer{
		client: client,
		desc:   desc,
		log:    log,
	}
}

// DefaultDescriptor builds the well-known Naim service layout for firmwares
// whose description document is unavailable. Older units answer SOAP on
// fixed paths under port 8080.
func DefaultDescriptor(host string, port int, name string) *core.Descriptor {
	if port == 0 {
		port = 8080
	}
	base := fmt.Sprintf("http://%s:%d", host, port)
	udn := "naim_streamer_" + strings.ToLower(strings.NewReplacer(" ", "_", "-", "_").Replace(name))
	return &core.Descriptor{
		UDN:     udn,
		Name:    name,
		BaseURL: base,
		AVTransport: &core.ServiceEndpoints{
			ControlURL: base + "/AVTransport/ctrl",
			EventURL:   base + "/AVTransport/evt",
		},
		RenderingControl: &core.ServiceEndpoints{
			ControlURL: base + "/RenderingControl/ctrl",
			EventURL:   base + "/RenderingControl/evt",
		},
		ConnectionManager: &core.ServiceEndpoints{
			ControlURL: base + "/ConnectionManager/ctrl",
			EventURL:   base + "/ConnectionManager/evt",
		},
	}
}

// Descriptor returns the device descriptor this client is bound to.
func (s *Streamer) Descriptor() *core.Descriptor {
	return s.desc
}

func (s *Streamer) avInvoke(ctx context.Context, action string, args map[string]string) (upnp.Values, error) {
	return s.client.Invoke(ctx, s.desc.AVTransport.ControlURL, upnp.AVTransportService, action, args)
}

func (s *Streamer) rcInvoke(ctx context.Context, action string, args map[string]string) (upnp.Values, error) {
	return s.client.Invoke(ctx, s.desc.RenderingControl.ControlURL, upnp.RenderingControlService, action, args)
}

// Play starts playback.
func (s *Streamer) Play(ctx context.Context) error {
	_, err := s.avInvoke(ctx, "Play", map[string]string{"InstanceID": "0", "Speed": "1"})
	return err
}

// Pause pauses playback.
func (s *Streamer) Pause(ctx context.Context) error {
	_, err := s.avInvoke(ctx, "Pause", map[string]string{"InstanceID": "0"})
	return err
}

// Stop stops playback.
func (s *Streamer) Stop(ctx context.Context) error {
	_, err := s.avInvoke(ctx, "Stop", map[string]string{"InstanceID": "0"})
	return err
}

// Next skips to the next track.
func (s *Streamer) Next(ctx context.Context) error {
	_, err := s.avInvoke(ctx, "Next", map[string]string{"InstanceID": "0"})
	return err
}

// Previous skips to the previous track.
func (s *Streamer) Previous(ctx context.Context) error {
	_, err := s.avInvoke(ctx, "Previous", map[string]string{"InstanceID": "0"})
	return err
}

// Seek seeks to a relative position in the current track.
func (s *Streamer) Seek(ctx context.Context, position time.Duration) error {
	_, err := s.avInvoke(ctx, "Seek", map[string]string{
		"InstanceID": "0",
		"Unit":       "REL_TIME",
		"Target":     formatUPnPTime(position),
	})
	return err
}

// TransportInfo is the current transport state of the device.
type TransportInfo struct {
	State  core.TransportState
	Status string
	Speed  string
}

// GetTransportInfo retrieves the current transport state.
func (s *Streamer) GetTransportInfo(ctx context.Context) (*TransportInfo, error) {
	vals, err := s.avInvoke(ctx, "GetTransportInfo", map[string]string{"InstanceID": "0"})
	if err != nil {
		return nil, err
	}
	return &TransportInfo{
		State:  core.TransportState(strings.ToUpper(vals["CurrentTransportState"])),
		Status: strings.ToUpper(vals["CurrentTransportStatus"]),
		Speed:  vals["CurrentSpeed"],
	}, nil
}

// PositionInfo is the playback position of the current track.
type PositionInfo struct {
	Track     int
	Duration  time.Duration
	Metadata  string
	URI       string
	Position  time.Duration
	HasRel    bool
}

// GetPositionInfo retrieves the current track position. Some firmwares never
// report RelTime; HasRel is false in that case.
func (s *Streamer) GetPositionInfo(ctx context.Context) (*PositionInfo, error) {
	vals, err := s.avInvoke(ctx, "GetPositionInfo", map[string]string{"InstanceID": "0"})
	if err != nil {
		return nil, err
	}
	info := &PositionInfo{
		Metadata: vals["TrackMetaData"],
		URI:      vals["TrackURI"],
		Duration: parseUPnPTime(vals["TrackDuration"]),
	}
	info.Track, _ = strconv.Atoi(vals["Track"])
	rel := strings.TrimSpace(vals["RelTime"])
	if rel != "" && rel != "NOT_IMPLEMENTED" {
		info.Position = parseUPnPTime(rel)
		info.HasRel = true
	}
	return info, nil
}

// MediaInfo is the currently loaded media.
type MediaInfo struct {
	NrTracks int
	Duration time.Duration
	URI      string
	Metadata string
}

// GetMediaInfo retrieves current media information.
func (s *Streamer) GetMediaInfo(ctx context.Context) (*MediaInfo, error) {
	vals, err := s.avInvoke(ctx, "GetMediaInfo", map[string]string{"InstanceID": "0"})
	if err != nil {
		return nil, err
	}
	info := &MediaInfo{
		Duration: parseUPnPTime(vals["MediaDuration"]),
		URI:      vals["CurrentURI"],
		Metadata: vals["CurrentURIMetaData"],
	}
	info.NrTracks, _ = strconv.Atoi(vals["NrTracks"])
	return info, nil
}

// GetVolume retrieves the current volume level (0-100).
func (s *Streamer) GetVolume(ctx context.Context) (int, error) {
	vals, err := s.rcInvoke(ctx, "GetVolume", map[string]string{"InstanceID": "0", "Channel": "Master"})
	if err != nil {
		return 0, err
	}
	vol, _ := strconv.Atoi(vals["CurrentVolume"])
	return vol, nil
}

// SetVolume sets the volume level (0-100).
func (s *Streamer) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	_, err := s.rcInvoke(ctx, "SetVolume", map[string]string{
		"InstanceID":    "0",
		"Channel":       "Master",
		"DesiredVolume": strconv.Itoa(volume),
	})
	return err
}

// GetMute retrieves the current mute flag.
func (s *Streamer) GetMute(ctx context.Context) (bool, error) {
	vals, err := s.rcInvoke(ctx, "GetMute", map[string]string{"InstanceID": "0", "Channel": "Master"})
	if err != nil {
		return false, err
	}
	return vals["CurrentMute"] == "1" || strings.EqualFold(vals["CurrentMute"], "true"), nil
}

// SetMute sets the mute flag.
func (s *Streamer) SetMute(ctx context.Context, mute bool) error {
	desired := "0"
	if mute {
		desired = "1"
	}
	_, err := s.rcInvoke(ctx, "SetMute", map[string]string{
		"InstanceID":  "0",
		"Channel":     "Master",
		"DesiredMute": desired,
	})
	return err
}

// GetCurrentTransportActions lists the actions the transport will accept
// right now, e.g. "Play,Stop,Pause,Seek,Next,Previous".
func (s *Streamer) GetCurrentTransportActions(ctx context.Context) ([]string, error) {
	vals, err := s.avInvoke(ctx, "GetCurrentTransportActions", map[string]string{"InstanceID": "0"})
	if err != nil {
		return nil, err
	}
	var actions []string
	for _, a := range strings.Split(vals["Actions"], ",") {
		if a = strings.TrimSpace(a); a != "" {
			actions = append(actions, a)
		}
	}
	return actions, nil
}

// SetAVTransportURI loads a URI with optional DIDL-Lite metadata.
func (s *Streamer) SetAVTransportURI(ctx context.Context, uri, metadata string) error {
	_, err := s.avInvoke(ctx, "SetAVTransportURI", map[string]string{
		"InstanceID":         "0",
		"CurrentURI":         uri,
		"CurrentURIMetaData": metadata,
	})
	if err == nil {
		s.RememberURI(uri, metadata)
	}
	return err
}

// PlayURL loads a stream URL with generated DIDL-Lite metadata and starts
// playback. Title falls back to the URL's file name.
func (s *Streamer) PlayURL(ctx context.Context, uri, title, artist, album, albumArt string) error {
	if title == "" {
		if u, err := url.Parse(uri); err == nil {
			title = path.Base(u.Path)
		}
		if title == "" || title == "." || title == "/" {
			title = "Unknown"
		}
	}

	didl := buildDIDL(uri, title, artist, album, albumArt, guessProtocolInfo(uri))
	if err := s.SetAVTransportURI(ctx, uri, didl); err != nil {
		return fmt.Errorf("set transport URI: %w", err)
	}
	return s.Play(ctx)
}

// RememberURI stores the last loaded URI and metadata so playback can be
// restored after the transport hits ERROR_OCCURRED.
func (s *Streamer) RememberURI(uri, metadata string) {
	if uri == "" {
		return
	}
	s.mu.Lock()
	s.lastURI = uri
	s.lastMetadata = metadata
	s.mu.Unlock()
}

// LastURI returns the last loaded URI and metadata, if any.
func (s *Streamer) LastURI() (uri, metadata string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastURI, s.lastMetadata
}

// guessProtocolInfo derives a protocolInfo string for a stream URL.
func guessProtocolInfo(uri string) string {
	mimeType := mime.TypeByExtension(path.Ext(strings.ToLower(uri)))
	if mimeType == "" {
		switch {
		case strings.HasSuffix(strings.ToLower(uri), ".aac"), strings.Contains(uri, "stationstream"):
			mimeType = "audio/x-mpeg-aac"
		case strings.HasSuffix(strings.ToLower(uri), ".mp3"):
			mimeType = "audio/mpeg"
		case strings.HasSuffix(strings.ToLower(uri), ".flac"):
			mimeType = "audio/x-flac"
		default:
			mimeType = "*/*"
		}
	}
	return "http-get:*:" + mimeType + ":*"
}

// formatUPnPTime formats a duration as H:MM:SS for Seek targets.
func formatUPnPTime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

// parseUPnPTime parses an H:MM:SS duration string. Returns zero on any
// unexpected shape ("NOT_IMPLEMENTED", empty, bare seconds).
func parseUPnPTime(s string) time.Duration {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	// Some firmwares report fractional seconds.
	secParts := strings.SplitN(parts[2], ".", 2)
	sec, err3 := strconv.Atoi(secParts[0])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second
}
