package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tessro/nstream/internal/naim"
	"github.com/tessro/nstream/internal/upnp"
	"go.uber.org/zap"
)

const (
	// maxRenewFailures is how many consecutive renewal failures are allowed
	// before the subscription is torn down and re-established from scratch.
	maxRenewFailures = 3

	eventQueueSize    = 64
	maxNotifyBody     = 256 << 10
	reconnectBaseWait = 5 * time.Second
	reconnectMaxWait  = 2 * time.Minute
	// healthyPollFactor stretches the fallback poll while push events are
	// flowing; the fast interval is only used when eventing is degraded.
	healthyPollFactor = 10
)

// MonitorConfig holds tunables for the subscription monitor.
type MonitorConfig struct {
	Lease        time.Duration
	PollInterval time.Duration
	NotifyPort   int
}

type rawEvent struct {
	gen  uuid.UUID
	sid  string
	seq  uint32
	body []byte
}

// subState tracks one service subscription and its renewal health.
type subState struct {
	name     string
	eventURL string
	sub      *upnp.Subscription
	failures int
	renewAt  *time.Timer
}

// Monitor owns the eventing side of a device connection: the local NOTIFY
// listener, the GENA subscriptions and their renewal, the fallback poll, and
// reconnect handling. Inbound events flow through a channel into the player
// so network I/O never runs reconciliation directly.
type Monitor struct {
	client   *upnp.Client
	streamer *naim.Streamer
	player   *Player
	parser   *naim.EventParser
	log      *zap.Logger
	cfg      MonitorConfig

	events chan rawEvent

	mu      sync.Mutex
	valid   map[string]bool
	gen     uuid.UUID
	pollSeq uint32
}

// NewMonitor creates a monitor for a connected player.
func NewMonitor(client *upnp.Client, streamer *naim.Streamer, pl *Player, cfg MonitorConfig, log *zap.Logger) *Monitor {
	if cfg.Lease == 0 {
		cfg.Lease = 300 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &Monitor{
		client:   client,
		streamer: streamer,
		player:   pl,
		parser: &naim.EventParser{
			BaseURL: streamer.Descriptor().BaseURL,
			Log:     log,
		},
		log:    log,
		cfg:    cfg,
		events: make(chan rawEvent, eventQueueSize),
		valid:  make(map[string]bool),
		gen:    pl.Generation(),
	}
}

// Run starts the notify listener and the subscription lifecycle, blocking
// until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", m.cfg.NotifyPort))
	if err != nil {
		return fmt.Errorf("notify listener: %w", err)
	}

	srv := &http.Server{Handler: http.HandlerFunc(m.handleNotify)}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error("notify server stopped", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	callbackURL, err := m.callbackURL(listener.Addr())
	if err != nil {
		return err
	}
	m.log.Info("notify listener ready", zap.String("callback", callbackURL))

	subs := m.subscribeAll(ctx, callbackURL)
	if len(subs) == 0 {
		m.player.SetUnreachable()
	} else {
		// Pull a first snapshot so the state machine starts from reality
		// instead of waiting for the device's initial NOTIFY burst.
		m.pollOnce(ctx)
	}

	pollTicker := time.NewTicker(m.cfg.PollInterval)
	defer pollTicker.Stop()
	pollTick := 0

	reconnectWait := reconnectBaseWait
	var reconnectTimer *time.Timer
	reconnectC := func() <-chan time.Time {
		if reconnectTimer == nil {
			return nil
		}
		return reconnectTimer.C
	}
	if len(subs) == 0 {
		reconnectTimer = time.NewTimer(reconnectWait)
	}

	renewC := func(s *subState) <-chan time.Time {
		if s == nil || s.renewAt == nil {
			return nil
		}
		return s.renewAt.C
	}

	var av, rc *subState
	for _, s := range subs {
		if s.name == "AVTransport" {
			av = s
		} else {
			rc = s
		}
	}

	for {
		select {
		case <-ctx.Done():
			m.teardown(av)
			m.teardown(rc)
			return ctx.Err()

		case ev := <-m.events:
			change, err := m.parser.Parse(ev.sid, ev.seq, ev.body)
			if err != nil {
				m.log.Warn("ignoring malformed event payload", zap.Error(err))
				continue
			}
			if m.player.Apply(ev.gen, change) {
				m.log.Warn("recurring malformed events, re-establishing subscriptions")
				m.teardown(av)
				m.teardown(rc)
				av, rc = nil, nil
				if reconnectTimer == nil {
					reconnectTimer = time.NewTimer(0)
				}
			}

		case <-renewC(av):
			av = m.renew(ctx, av, callbackURL)
			if av == nil && reconnectTimer == nil {
				m.teardown(rc)
				rc = nil
				m.player.SetUnreachable()
				reconnectTimer = time.NewTimer(reconnectWait)
			}

		case <-renewC(rc):
			// RenderingControl is optional; losing it degrades rather than
			// disconnects.
			rc = m.renew(ctx, rc, callbackURL)

		case <-pollTicker.C:
			pollTick++
			degraded := av == nil || (rc == nil && m.hasRenderingControl())
			if degraded || pollTick%healthyPollFactor == 0 {
				m.pollOnce(ctx)
			}

		case <-reconnectC():
			subs := m.subscribeAll(ctx, callbackURL)
			if len(subs) == 0 {
				reconnectWait = min(reconnectWait*2, reconnectMaxWait)
				reconnectTimer = time.NewTimer(reconnectWait)
				continue
			}
			reconnectTimer = nil
			reconnectWait = reconnectBaseWait
			for _, s := range subs {
				if s.name == "AVTransport" {
					av = s
				} else {
					rc = s
				}
			}
			m.rotateGeneration()
			// Reachability flips back once the fresh snapshot lands.
			m.pollOnce(ctx)
		}
	}
}

// handleNotify accepts GENA NOTIFY callbacks and queues them for the event
// loop. Unknown subscription ids are acknowledged and dropped; the identity
// check keeps events from an abandoned connection out of the snapshot.
func (m *Monitor) handleNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != "NOTIFY" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotifyBody))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	sid := r.Header.Get("SID")
	seq64, _ := strconv.ParseUint(r.Header.Get("SEQ"), 10, 32)

	m.mu.Lock()
	ok := m.valid[sid]
	gen := m.gen
	m.mu.Unlock()

	if !ok {
		m.log.Debug("dropping event for retired subscription", zap.String("sid", sid))
		w.WriteHeader(http.StatusOK)
		return
	}

	ev := rawEvent{gen: gen, sid: sid, seq: uint32(seq64), body: body}
	select {
	case m.events <- ev:
	default:
		// Queue full: shed the oldest event, the newest one wins.
		select {
		case <-m.events:
		default:
		}
		select {
		case m.events <- ev:
		default:
		}
	}

	w.WriteHeader(http.StatusOK)
}

// subscribeAll establishes subscriptions for every evented service the
// device exposes. AVTransport is required; an empty result means the device
// could not be subscribed at all.
func (m *Monitor) subscribeAll(ctx context.Context, callbackURL string) []*subState {
	desc := m.streamer.Descriptor()
	var subs []*subState

	av := m.subscribeOne(ctx, "AVTransport", desc.AVTransport.EventURL, callbackURL)
	if av == nil {
		return nil
	}
	subs = append(subs, av)

	if m.hasRenderingControl() {
		if rc := m.subscribeOne(ctx, "RenderingControl", desc.RenderingControl.EventURL, callbackURL); rc != nil {
			subs = append(subs, rc)
		}
	}
	return subs
}

func (m *Monitor) subscribeOne(ctx context.Context, name, eventURL, callbackURL string) *subState {
	subCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sub, err := m.client.Subscribe(subCtx, eventURL, callbackURL, m.cfg.Lease)
	if err != nil {
		m.log.Warn("subscribe failed", zap.String("service", name), zap.Error(err))
		return nil
	}

	m.mu.Lock()
	m.valid[sub.SID] = true
	m.mu.Unlock()

	m.log.Info("subscribed",
		zap.String("service", name),
		zap.String("sid", sub.SID),
		zap.Duration("lease", sub.Lease))

	return &subState{
		name:     name,
		eventURL: eventURL,
		sub:      sub,
		renewAt:  time.NewTimer(sub.Lease / 2),
	}
}

// renew extends a subscription, tearing it down and re-subscribing from
// scratch after maxRenewFailures consecutive failures. Returns nil when the
// service could not be re-established.
func (m *Monitor) renew(ctx context.Context, s *subState, callbackURL string) *subState {
	renewCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	renewed, err := m.client.Renew(renewCtx, s.sub)
	if err == nil {
		if renewed.SID != s.sub.SID {
			m.swapSID(s.sub.SID, renewed.SID)
		}
		s.sub = renewed
		s.failures = 0
		s.renewAt.Reset(renewed.Lease / 2)
		return s
	}

	s.failures++
	m.log.Warn("renewal failed",
		zap.String("service", s.name),
		zap.Int("failures", s.failures),
		zap.Error(err))

	if s.failures < maxRenewFailures {
		// Retry well before the lease runs out.
		s.renewAt.Reset(s.sub.Lease / 8)
		return s
	}

	// Three strikes: tear down and try one fresh subscribe. In-flight events
	// for the old SID stay valid until the replacement is confirmed.
	oldSID := s.sub.SID
	unsubCtx, cancel2 := context.WithTimeout(ctx, 5*time.Second)
	_ = m.client.Unsubscribe(unsubCtx, s.sub)
	cancel2()

	fresh := m.subscribeOne(ctx, s.name, s.eventURL, callbackURL)
	m.retireSID(oldSID)
	if fresh == nil {
		return nil
	}
	return fresh
}

func (m *Monitor) swapSID(old, new string) {
	m.mu.Lock()
	m.valid[new] = true
	delete(m.valid, old)
	m.mu.Unlock()
	m.player.DropSource(old)
}

func (m *Monitor) retireSID(sid string) {
	m.mu.Lock()
	delete(m.valid, sid)
	m.mu.Unlock()
	m.player.DropSource(sid)
}

func (m *Monitor) teardown(s *subState) {
	if s == nil {
		return
	}
	if s.renewAt != nil {
		s.renewAt.Stop()
	}
	unsubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.client.Unsubscribe(unsubCtx, s.sub); err != nil {
		m.log.Debug("unsubscribe failed", zap.String("service", s.name), zap.Error(err))
	}
	m.retireSID(s.sub.SID)
}

// rotateGeneration abandons the current generation after a reconnect. The
// outgoing generation's poll identity is retired so the validity map stays
// bounded across reconnects.
func (m *Monitor) rotateGeneration() {
	gen := m.player.NextGeneration()

	m.mu.Lock()
	oldPoll := "poll:" + m.gen.String()
	delete(m.valid, oldPoll)
	m.gen = gen
	m.pollSeq = 0
	m.mu.Unlock()

	m.player.DropSource(oldPoll)
}

func (m *Monitor) hasRenderingControl() bool {
	desc := m.streamer.Descriptor()
	return desc.RenderingControl != nil && desc.RenderingControl.EventURL != ""
}

// pollOnce fetches current state over SOAP and feeds it through the same
// reconciliation path as pushed events.
func (m *Monitor) pollOnce(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	m.mu.Lock()
	gen := m.gen
	m.pollSeq++
	seq := m.pollSeq
	sid := "poll:" + gen.String()
	m.valid[sid] = true
	m.mu.Unlock()

	change := &naim.Change{SID: sid, Seq: seq}

	info, err := m.streamer.GetTransportInfo(pollCtx)
	if err != nil {
		m.log.Debug("fallback poll failed", zap.Error(err))
		return
	}
	state := info.State
	change.TransportState = &state
	if info.Status != "" {
		status := info.Status
		change.TransportStatus = &status
	}

	caps := m.player.Capabilities()
	if caps.Position {
		if pos, err := m.streamer.GetPositionInfo(pollCtx); err == nil {
			if meta := naim.ParseTrackMetadata(pos.Metadata, m.parser.BaseURL); meta != nil {
				track := meta.Track
				change.Track = &track
			}
			if pos.HasRel {
				p := pos.Position
				change.Position = &p
			}
			if pos.URI != "" {
				uri := pos.URI
				change.URI = &uri
				m.streamer.RememberURI(pos.URI, pos.Metadata)
			}
			if pos.Duration > 0 {
				d := pos.Duration
				change.Duration = &d
			}
		}
	}
	if caps.Volume {
		if vol, err := m.streamer.GetVolume(pollCtx); err == nil {
			change.Volume = &vol
		}
	}
	if caps.Mute {
		if mute, err := m.streamer.GetMute(pollCtx); err == nil {
			change.Mute = &mute
		}
	}

	m.player.Apply(gen, change)
}

// callbackURL derives the NOTIFY callback URL the device can reach, using
// the local address the kernel picks for the route to the device.
func (m *Monitor) callbackURL(listenAddr net.Addr) (string, error) {
	base, err := url.Parse(m.streamer.Descriptor().BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse device base url: %w", err)
	}

	conn, err := net.Dial("udp", net.JoinHostPort(base.Hostname(), "80"))
	if err != nil {
		return "", fmt.Errorf("determine local address: %w", err)
	}
	localIP := conn.LocalAddr().(*net.UDPAddr).IP.String()
	_ = conn.Close()

	_, port, err := net.SplitHostPort(listenAddr.String())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("http://%s/notify", net.JoinHostPort(localIP, port)), nil
}
