package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tessro/nstream/internal/core"
	nserrors "github.com/tessro/nstream/internal/errors"
	"github.com/tessro/nstream/internal/naim"
	"go.uber.org/zap"
)

// Player is the playback state machine for one streamer. It owns the
// canonical snapshot; the snapshot only changes when the device's own events
// confirm a change, never speculatively on command calls. The event path and
// the command path are independent: a stalled invoke never delays an
// incoming event.
type Player struct {
	streamer *naim.Streamer
	caps     core.Capabilities
	log      *zap.Logger

	mu         sync.RWMutex
	reconciler *Reconciler
	snap       core.Snapshot
	reachable  bool
	generation uuid.UUID

	subMu   sync.Mutex
	subs    map[int]chan core.Snapshot
	nextSub int
}

// New creates a player for a negotiated streamer.
func New(streamer *naim.Streamer, caps core.Capabilities, log *zap.Logger) *Player {
	p := &Player{
		streamer:   streamer,
		caps:       caps,
		log:        log,
		reconciler: NewReconciler(log),
		reachable:  true,
		generation: uuid.New(),
		subs:       make(map[int]chan core.Snapshot),
	}
	p.snap = p.reconciler.Snapshot()
	return p
}

// Capabilities returns the negotiated capability set.
func (p *Player) Capabilities() core.Capabilities {
	return p.caps
}

// Snapshot returns the current reconciled snapshot. Readers always observe a
// fully merged snapshot, never a partially applied one.
func (p *Player) Snapshot() core.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap := p.snap.Clone()
	if !p.reachable {
		snap.State = core.StateUnreachable
	}
	return snap
}

// Generation returns the current connection generation token. Results
// belonging to an older generation are discarded by identity check.
func (p *Player) Generation() uuid.UUID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.generation
}

// Subscribe registers a snapshot listener. The returned cancel function must
// be called to release it. Slow listeners miss intermediate snapshots rather
// than blocking the reconciler.
func (p *Player) Subscribe() (<-chan core.Snapshot, func()) {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	id := p.nextSub
	p.nextSub++
	ch := make(chan core.Snapshot, 16)
	p.subs[id] = ch

	cancel := func() {
		p.subMu.Lock()
		defer p.subMu.Unlock()
		if c, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (p *Player) publish(snap core.Snapshot) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Apply merges an event delta into the snapshot. Called only from the
// monitor's event loop; gen must match the current generation or the event
// is discarded. Returns true when a reconnect is warranted.
func (p *Player) Apply(gen uuid.UUID, ch *naim.Change) (reconnect bool) {
	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		p.log.Debug("discarding event from stale generation", zap.String("sid", ch.SID))
		return false
	}
	snap, applied, reconnect := p.reconciler.Apply(ch)
	if applied {
		p.snap = snap
	}
	reachable := p.reachable
	p.mu.Unlock()

	if applied {
		if !reachable {
			// A fresh confirmed snapshot is what brings the device back.
			p.SetReachable(gen)
		}
		p.publish(snap)
	}
	return reconnect
}

// DropSource forgets sequence tracking for a retired subscription id.
func (p *Player) DropSource(sid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconciler.DropSource(sid)
}

// SetUnreachable marks the device unreachable. Commands fail fast until a
// reconnect succeeds and a fresh snapshot arrives.
func (p *Player) SetUnreachable() {
	p.mu.Lock()
	if !p.reachable {
		p.mu.Unlock()
		return
	}
	p.reachable = false
	snap := p.snap.Clone()
	snap.State = core.StateUnreachable
	p.mu.Unlock()

	p.log.Warn("device unreachable")
	p.publish(snap)
}

// SetReachable clears the unreachable flag for the given generation.
func (p *Player) SetReachable(gen uuid.UUID) {
	p.mu.Lock()
	if gen != p.generation || p.reachable {
		p.mu.Unlock()
		return
	}
	p.reachable = true
	snap := p.snap.Clone()
	p.mu.Unlock()

	p.log.Info("device reachable again")
	p.publish(snap)
}

// NextGeneration abandons the previous connection identity. In-flight work
// from the old generation is discarded when it eventually completes.
func (p *Player) NextGeneration() uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation = uuid.New()
	return p.generation
}

func (p *Player) checkReachable() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.reachable {
		return nserrors.ErrUnreachable
	}
	return nil
}

// Play starts playback. When the transport previously errored or has no URI
// loaded, the last known URI and metadata are restored first.
func (p *Player) Play(ctx context.Context) error {
	if err := p.checkReachable(); err != nil {
		return err
	}

	p.mu.RLock()
	status := p.snap.TransportStatus
	p.mu.RUnlock()

	lastURI, lastMeta := p.streamer.LastURI()
	if status == "ERROR_OCCURRED" && lastURI != "" {
		p.log.Debug("restoring transport URI before play", zap.String("uri", lastURI))
		if err := p.streamer.SetAVTransportURI(ctx, lastURI, lastMeta); err != nil {
			return err
		}
	}

	return p.streamer.Play(ctx)
}

// Pause pauses playback.
func (p *Player) Pause(ctx context.Context) error {
	if err := p.checkReachable(); err != nil {
		return err
	}
	return p.streamer.Pause(ctx)
}

// Stop stops playback.
func (p *Player) Stop(ctx context.Context) error {
	if err := p.checkReachable(); err != nil {
		return err
	}
	return p.streamer.Stop(ctx)
}

// Next skips to the next track.
func (p *Player) Next(ctx context.Context) error {
	if err := p.checkReachable(); err != nil {
		return err
	}
	return p.streamer.Next(ctx)
}

// Prev skips to the previous track.
func (p *Player) Prev(ctx context.Context) error {
	if err := p.checkReachable(); err != nil {
		return err
	}
	return p.streamer.Previous(ctx)
}

// Seek moves to a position in the current track. Best effort; only offered
// when the device reports positions at all.
func (p *Player) Seek(ctx context.Context, position time.Duration) error {
	if !p.caps.Seek {
		return fmt.Errorf("seek: %w", nserrors.ErrUnsupported)
	}
	if err := p.checkReachable(); err != nil {
		return err
	}
	return p.streamer.Seek(ctx, position)
}

// SetVolume sets the volume level (0-100).
func (p *Player) SetVolume(ctx context.Context, level int) error {
	if !p.caps.Volume {
		return fmt.Errorf("set volume: %w", nserrors.ErrUnsupported)
	}
	if err := p.checkReachable(); err != nil {
		return err
	}
	return p.streamer.SetVolume(ctx, level)
}

// SetMute sets the mute flag.
func (p *Player) SetMute(ctx context.Context, mute bool) error {
	if !p.caps.Mute {
		return fmt.Errorf("set mute: %w", nserrors.ErrUnsupported)
	}
	if err := p.checkReachable(); err != nil {
		return err
	}
	return p.streamer.SetMute(ctx, mute)
}

// SelectSource loads a source URI on the transport. The snapshot changes
// only once the device reports the new URI through an event.
func (p *Player) SelectSource(ctx context.Context, source string) error {
	if err := p.checkReachable(); err != nil {
		return err
	}
	return p.streamer.SetAVTransportURI(ctx, source, "")
}

// PlayURL loads and plays a stream URL with generated metadata.
func (p *Player) PlayURL(ctx context.Context, uri, title, artist, album, albumArt string) error {
	if err := p.checkReachable(); err != nil {
		return err
	}
	return p.streamer.PlayURL(ctx, uri, title, artist, album, albumArt)
}

// Ensure Player implements core.Controller.
var _ core.Controller = (*Player)(nil)
