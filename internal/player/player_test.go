package player

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tessro/nstream/internal/core"
	nserrors "github.com/tessro/nstream/internal/errors"
	"github.com/tessro/nstream/internal/naim"
	"github.com/tessro/nstream/internal/upnp"
	"go.uber.org/zap"
)

// newTestPlayer points at a blackholed address; tests that reach the network
// are wrong by construction and will fail fast.
func newTestPlayer(caps core.Capabilities) *Player {
	client := upnp.NewClient(100 * time.Millisecond)
	desc := naim.DefaultDescriptor("192.0.2.1", 0, "test")
	streamer := naim.NewStreamer(client, desc, zap.NewNop())
	return New(streamer, caps, zap.NewNop())
}

func TestUnsupportedCommandsFailFast(t *testing.T) {
	p := newTestPlayer(core.Capabilities{Transport: true})
	ctx := context.Background()

	before := p.Snapshot()

	if err := p.Seek(ctx, time.Minute); !errors.Is(err, nserrors.ErrUnsupported) {
		t.Errorf("Seek() error = %v, want ErrUnsupported", err)
	}
	if err := p.SetVolume(ctx, 50); !errors.Is(err, nserrors.ErrUnsupported) {
		t.Errorf("SetVolume() error = %v, want ErrUnsupported", err)
	}
	if err := p.SetMute(ctx, true); !errors.Is(err, nserrors.ErrUnsupported) {
		t.Errorf("SetMute() error = %v, want ErrUnsupported", err)
	}

	// A rejected command never touches the snapshot.
	after := p.Snapshot()
	if after.Seq != before.Seq || after.State != before.State {
		t.Errorf("snapshot changed by rejected command: %+v -> %+v", before, after)
	}
}

func TestUnreachableCommandsFailFast(t *testing.T) {
	p := newTestPlayer(core.Capabilities{Transport: true, Volume: true})
	p.SetUnreachable()

	if err := p.Play(context.Background()); !errors.Is(err, nserrors.ErrUnreachable) {
		t.Errorf("Play() error = %v, want ErrUnreachable", err)
	}
	if err := p.SetVolume(context.Background(), 10); !errors.Is(err, nserrors.ErrUnreachable) {
		t.Errorf("SetVolume() error = %v, want ErrUnreachable", err)
	}

	if snap := p.Snapshot(); snap.State != core.StateUnreachable {
		t.Errorf("State = %v, want unreachable", snap.State)
	}
}

func TestFailedCommandLeavesSnapshotAlone(t *testing.T) {
	p := newTestPlayer(core.Capabilities{Transport: true})
	before := p.Snapshot()

	// The device address is blackholed, so this times out.
	if err := p.Play(context.Background()); err == nil {
		t.Fatal("Play() expected a transport error")
	}

	after := p.Snapshot()
	if after.Seq != before.Seq {
		t.Error("failed command must not move the snapshot")
	}
}

func TestApplyUpdatesSnapshotAndPublishes(t *testing.T) {
	p := newTestPlayer(core.Capabilities{Transport: true})
	gen := p.Generation()

	sub, cancel := p.Subscribe()
	defer cancel()

	ts := core.TransportPlaying
	p.Apply(gen, &naim.Change{SID: "uuid:av", Seq: 0, TransportState: &ts})

	select {
	case snap := <-sub:
		if snap.State != core.StatePlaying {
			t.Errorf("published State = %v, want playing", snap.State)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}

	if snap := p.Snapshot(); snap.State != core.StatePlaying {
		t.Errorf("Snapshot State = %v, want playing", snap.State)
	}
}

func TestApplyDiscardsStaleGeneration(t *testing.T) {
	p := newTestPlayer(core.Capabilities{Transport: true})
	oldGen := p.Generation()
	p.NextGeneration()

	ts := core.TransportPlaying
	p.Apply(oldGen, &naim.Change{SID: "uuid:av", Seq: 0, TransportState: &ts})

	if snap := p.Snapshot(); snap.State == core.StatePlaying {
		t.Error("event from an abandoned generation must be discarded")
	}
}

func TestApplyRestoresReachability(t *testing.T) {
	p := newTestPlayer(core.Capabilities{Transport: true})
	p.SetUnreachable()
	gen := p.NextGeneration()

	ts := core.TransportStopped
	p.Apply(gen, &naim.Change{SID: "uuid:av", Seq: 0, TransportState: &ts})

	if snap := p.Snapshot(); snap.State == core.StateUnreachable {
		t.Error("a confirmed snapshot from the current generation should clear unreachable")
	}
}

func TestSubscribeCancelIdempotent(t *testing.T) {
	p := newTestPlayer(core.Capabilities{})
	_, cancel := p.Subscribe()
	cancel()
	cancel()
}
