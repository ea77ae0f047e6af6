package player

import (
	"time"

	"github.com/tessro/nstream/internal/core"
	"github.com/tessro/nstream/internal/naim"
	"go.uber.org/zap"
)

// malformedThreshold is how many consecutive events with decode problems are
// tolerated before the reconciler asks for a reconnect.
const malformedThreshold = 10

// Reconciler folds event deltas into the canonical snapshot. Events are
// partial, not full state dumps: a field absent from a change never touches
// the snapshot, a field present always overwrites it. That per-field merge is
// the central correctness property of the whole integration.
//
// Not safe for concurrent use; the player calls it from a single goroutine.
type Reconciler struct {
	log *zap.Logger

	snap         core.Snapshot
	lastEventSeq map[string]uint32
	malformedRun int
}

// NewReconciler creates a reconciler with an empty snapshot.
func NewReconciler(log *zap.Logger) *Reconciler {
	return &Reconciler{
		log:          log,
		lastEventSeq: make(map[string]uint32),
		snap: core.Snapshot{
			State:          core.StateIdle,
			TransportState: core.TransportUnknown,
		},
	}
}

// Snapshot returns the current reconciled snapshot.
func (r *Reconciler) Snapshot() core.Snapshot {
	return r.snap.Clone()
}

// DropSource forgets the sequence tracking for a subscription id, once its
// replacement is confirmed active.
func (r *Reconciler) DropSource(sid string) {
	delete(r.lastEventSeq, sid)
}

// Apply merges a change into the snapshot. It returns the updated snapshot,
// whether the change was applied (stale and duplicate events are discarded),
// and whether repeated malformed events warrant a reconnect.
func (r *Reconciler) Apply(ch *naim.Change) (snap core.Snapshot, applied bool, reconnect bool) {
	if last, seen := r.lastEventSeq[ch.SID]; seen && ch.Seq <= last {
		r.log.Debug("discarding stale event",
			zap.String("sid", ch.SID),
			zap.Uint32("seq", ch.Seq),
			zap.Uint32("last", last))
		return r.snap.Clone(), false, false
	}
	r.lastEventSeq[ch.SID] = ch.Seq

	if ch.Malformed > 0 {
		r.malformedRun++
		if r.malformedRun > malformedThreshold {
			r.malformedRun = 0
			return r.snap.Clone(), false, true
		}
	} else {
		r.malformedRun = 0
	}

	if ch.Empty() {
		return r.snap.Clone(), false, false
	}

	r.merge(ch)
	r.snap.Seq++
	r.snap.UpdatedAt = time.Now()
	return r.snap.Clone(), true, false
}

// merge applies every present field of the change onto the snapshot.
func (r *Reconciler) merge(ch *naim.Change) {
	if ch.TransportState != nil {
		r.snap.TransportState = *ch.TransportState
		r.snap.State = core.MapTransportState(*ch.TransportState)
	}
	if ch.TransportStatus != nil {
		r.snap.TransportStatus = *ch.TransportStatus
	}
	if ch.Track != nil {
		t := *ch.Track
		r.snap.Track = &t
	}
	if ch.Position != nil {
		p := *ch.Position
		r.snap.Position = &p
	}
	if ch.Duration != nil {
		d := *ch.Duration
		r.snap.Duration = &d
	}
	if ch.URI != nil {
		r.snap.Source = sourceFromURI(*ch.URI)
		if r.snap.Track == nil {
			r.snap.Track = &core.Track{URI: *ch.URI}
		} else if r.snap.Track.URI == "" {
			r.snap.Track.URI = *ch.URI
		}
	}
	if ch.Volume != nil {
		v := *ch.Volume
		r.snap.Volume = &v
	}
	if ch.Mute != nil {
		m := *ch.Mute
		r.snap.Mute = &m
	}
}

// sourceFromURI derives a coarse input identifier from the transport URI.
func sourceFromURI(uri string) string {
	switch {
	case uri == "":
		return ""
	case hasPrefixFold(uri, "http://") || hasPrefixFold(uri, "https://"):
		return "network"
	case hasPrefixFold(uri, "x-file-cifs:") || hasPrefixFold(uri, "file:"):
		return "library"
	}
	return "device"
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		a, b := s[i], prefix[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}
