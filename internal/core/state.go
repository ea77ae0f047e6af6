package core

import "time"

// TransportState is the raw AVTransport state reported by the device.
type TransportState string

const (
	TransportStopped       TransportState = "STOPPED"
	TransportPlaying       TransportState = "PLAYING"
	TransportPaused        TransportState = "PAUSED_PLAYBACK"
	TransportTransitioning TransportState = "TRANSITIONING"
	TransportNoMedia       TransportState = "NO_MEDIA_PRESENT"
	TransportUnknown       TransportState = "UNKNOWN"
)

// PlayerState is the normalized state exposed to the host platform.
type PlayerState string

const (
	StateIdle        PlayerState = "idle"
	StatePlaying     PlayerState = "playing"
	StatePaused      PlayerState = "paused"
	StateStopped     PlayerState = "stopped"
	StateBuffering   PlayerState = "buffering"
	StateUnreachable PlayerState = "unreachable"
)

// MapTransportState converts a device transport state to a player state.
func MapTransportState(ts TransportState) PlayerState {
	switch ts {
	case TransportPlaying:
		return StatePlaying
	case TransportPaused:
		return StatePaused
	case TransportStopped:
		return StateStopped
	case TransportTransitioning:
		return StateBuffering
	}
	return StateIdle
}

// Snapshot is the reconciled playback state of a single device.
//
// Optional fields are pointers: nil means the device has never reported the
// value. Seq is assigned by the reconciler and is strictly increasing for the
// lifetime of a device connection.
type Snapshot struct {
	Seq             uint64         `json:"seq"`
	State           PlayerState    `json:"state"`
	TransportState  TransportState `json:"transport_state"`
	TransportStatus string         `json:"transport_status,omitempty"`
	Track           *Track         `json:"track,omitempty"`
	Position        *time.Duration `json:"position,omitempty"`
	Duration        *time.Duration `json:"duration,omitempty"`
	Source          string         `json:"source,omitempty"`
	Volume          *int           `json:"volume,omitempty"`
	Mute            *bool          `json:"mute,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// HasTrack returns true if there is an active track.
func (s *Snapshot) HasTrack() bool {
	return s != nil && s.Track != nil
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Track != nil {
		t := *s.Track
		out.Track = &t
	}
	if s.Position != nil {
		p := *s.Position
		out.Position = &p
	}
	if s.Duration != nil {
		d := *s.Duration
		out.Duration = &d
	}
	if s.Volume != nil {
		v := *s.Volume
		out.Volume = &v
	}
	if s.Mute != nil {
		m := *s.Mute
		out.Mute = &m
	}
	return out
}
