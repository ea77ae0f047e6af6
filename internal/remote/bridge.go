package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	nserrors "github.com/tessro/nstream/internal/errors"
	"go.uber.org/zap"
)

// DefaultDebounce is the per-button debounce window. Physical remotes repeat
// while held; one transmit per window is what the amplifier expects.
const DefaultDebounce = 400 * time.Millisecond

// Sender transmits one raw code. Implemented by broadlink.Device.
type Sender interface {
	SendCode(ctx context.Context, code []byte) error
}

// Bridge maps logical button ids onto IR/RF transmissions with per-button
// debouncing. Presses that land inside a button's open window coalesce to
// the most recent one, and exactly one transmit happens per window.
type Bridge struct {
	sender  Sender
	catalog *Catalog
	window  time.Duration
	log     *zap.Logger

	mu      sync.Mutex
	buttons map[string]*buttonState
}

type buttonState struct {
	windowEnd time.Time
	pending   []byte
	timer     *time.Timer
}

// NewBridge creates a bridge. A zero window uses DefaultDebounce.
func NewBridge(sender Sender, catalog *Catalog, window time.Duration, log *zap.Logger) *Bridge {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Bridge{
		sender:  sender,
		catalog: catalog,
		window:  window,
		log:     log,
		buttons: make(map[string]*buttonState),
	}
}

// WatchCatalog hot-reloads the button catalog while the bridge runs.
func (b *Bridge) WatchCatalog() (stop func(), err error) {
	return b.catalog.Watch()
}

// Buttons returns the ids the bridge can press.
func (b *Bridge) Buttons() []string {
	return b.catalog.Buttons()
}

// Press transmits the code for a button id. The first press in a quiet
// period transmits immediately; further presses within the debounce window
// are coalesced, the latest winning, and fire once when the window closes.
// A coalesced press reports success; its eventual transmit error is logged.
func (b *Bridge) Press(ctx context.Context, id string) error {
	if b.sender == nil {
		return fmt.Errorf("press %s: %w", id, nserrors.ErrNoRemote)
	}
	code, ok := b.catalog.Code(id)
	if !ok {
		return fmt.Errorf("press %s: %w", id, nserrors.ErrUnknownButton)
	}

	b.mu.Lock()
	st := b.buttons[id]
	if st == nil {
		st = &buttonState{}
		b.buttons[id] = st
	}

	now := time.Now()
	if now.Before(st.windowEnd) {
		st.pending = code
		if st.timer == nil {
			st.timer = time.AfterFunc(st.windowEnd.Sub(now), func() { b.flush(id) })
		}
		b.mu.Unlock()
		b.log.Debug("press coalesced", zap.String("button", id))
		return nil
	}

	st.windowEnd = now.Add(b.window)
	st.pending = nil
	b.mu.Unlock()

	b.log.Debug("press", zap.String("button", id))
	if err := b.sender.SendCode(ctx, code); err != nil {
		return fmt.Errorf("press %s: %w", id, err)
	}
	return nil
}

// flush transmits the last coalesced press once the window closes.
func (b *Bridge) flush(id string) {
	b.mu.Lock()
	st := b.buttons[id]
	if st == nil || st.pending == nil {
		if st != nil {
			st.timer = nil
		}
		b.mu.Unlock()
		return
	}
	code := st.pending
	st.pending = nil
	st.timer = nil
	st.windowEnd = time.Now().Add(b.window)
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.sender.SendCode(ctx, code); err != nil {
		b.log.Warn("coalesced press failed", zap.String("button", id), zap.Error(err))
	}
}
