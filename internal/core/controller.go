package core

import (
	"context"
	"time"
)

// Controller is the command surface a host platform drives. Implemented by
// the playback state machine; commands never mutate the snapshot directly,
// state changes arrive through device events only.
type Controller interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Next(ctx context.Context) error
	Prev(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
	SetVolume(ctx context.Context, level int) error
	SetMute(ctx context.Context, mute bool) error
	SelectSource(ctx context.Context, source string) error

	Snapshot() Snapshot
	Capabilities() Capabilities
	Subscribe() (<-chan Snapshot, func())
}
