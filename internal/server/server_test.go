package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tessro/nstream/internal/core"
	nserrors "github.com/tessro/nstream/internal/errors"
	"github.com/tessro/nstream/internal/remote"
	"github.com/tessro/nstream/internal/upnp"
	"go.uber.org/zap"
)

// fakeController records the last command and answers with a scripted error.
type fakeController struct {
	err  error
	last string
	args any
	snap core.Snapshot
	caps core.Capabilities
}

func (f *fakeController) Play(ctx context.Context) error  { f.last = "play"; return f.err }
func (f *fakeController) Pause(ctx context.Context) error { f.last = "pause"; return f.err }
func (f *fakeController) Stop(ctx context.Context) error  { f.last = "stop"; return f.err }
func (f *fakeController) Next(ctx context.Context) error  { f.last = "next"; return f.err }
func (f *fakeController) Prev(ctx context.Context) error  { f.last = "previous"; return f.err }
func (f *fakeController) Seek(ctx context.Context, pos time.Duration) error {
	f.last, f.args = "seek", pos
	return f.err
}
func (f *fakeController) SetVolume(ctx context.Context, level int) error {
	f.last, f.args = "volume", level
	return f.err
}
func (f *fakeController) SetMute(ctx context.Context, mute bool) error {
	f.last, f.args = "mute", mute
	return f.err
}
func (f *fakeController) SelectSource(ctx context.Context, source string) error {
	f.last, f.args = "source", source
	return f.err
}
func (f *fakeController) Snapshot() core.Snapshot         { return f.snap }
func (f *fakeController) Capabilities() core.Capabilities { return f.caps }
func (f *fakeController) Subscribe() (<-chan core.Snapshot, func()) {
	ch := make(chan core.Snapshot)
	return ch, func() {}
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return body
}

func TestGetState(t *testing.T) {
	vol := 42
	fc := &fakeController{snap: core.Snapshot{
		Seq:    7,
		State:  core.StatePlaying,
		Track:  &core.Track{Title: "Naima", Artist: "John Coltrane"},
		Volume: &vol,
	}}
	s := New(fc, nil, zap.NewNop())

	rec := doRequest(t, s, "GET", "/api/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["state"] != "playing" {
		t.Errorf("state = %v", body["state"])
	}
	if body["seq"] != float64(7) {
		t.Errorf("seq = %v", body["seq"])
	}
	track, _ := body["track"].(map[string]any)
	if track == nil || track["title"] != "Naima" {
		t.Errorf("track = %v", body["track"])
	}
}

func TestGetCapabilities(t *testing.T) {
	fc := &fakeController{caps: core.Capabilities{
		Volume:     true,
		SourceList: true,
		Sources:    []string{"audio/mpeg"},
	}}
	s := New(fc, nil, zap.NewNop())

	body := decodeBody(t, doRequest(t, s, "GET", "/api/capabilities", ""))
	if body["volume"] != true || body["mute"] != false {
		t.Errorf("capabilities = %v", body)
	}
}

func TestCommandDispatch(t *testing.T) {
	tests := []struct {
		path     string
		body     string
		wantLast string
		wantArgs any
	}{
		{"/api/command/play", "", "play", nil},
		{"/api/command/pause", "", "pause", nil},
		{"/api/command/stop", "", "stop", nil},
		{"/api/command/next", "", "next", nil},
		{"/api/command/previous", "", "previous", nil},
		{"/api/command/seek", `{"position_seconds": 93.5}`, "seek", 93500 * time.Millisecond},
		{"/api/command/volume", `{"level": 35}`, "volume", 35},
		{"/api/command/mute", `{"mute": true}`, "mute", true},
		{"/api/command/source", `{"source": "http://radio.example/jazz"}`, "source", "http://radio.example/jazz"},
	}
	for _, tt := range tests {
		fc := &fakeController{}
		s := New(fc, nil, zap.NewNop())

		rec := doRequest(t, s, "POST", tt.path, tt.body)
		if rec.Code != http.StatusAccepted {
			t.Errorf("%s: status = %d, want 202\n%s", tt.path, rec.Code, rec.Body.String())
			continue
		}
		if fc.last != tt.wantLast {
			t.Errorf("%s: dispatched %q, want %q", tt.path, fc.last, tt.wantLast)
		}
		if tt.wantArgs != nil && fc.args != tt.wantArgs {
			t.Errorf("%s: args = %v, want %v", tt.path, fc.args, tt.wantArgs)
		}
	}
}

func TestCommandMissingArg(t *testing.T) {
	for _, path := range []string{"/api/command/seek", "/api/command/volume", "/api/command/mute", "/api/command/source"} {
		fc := &fakeController{}
		s := New(fc, nil, zap.NewNop())
		if rec := doRequest(t, s, "POST", path, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s without args: status = %d, want 400", path, rec.Code)
		}
		if fc.last != "" {
			t.Errorf("%s without args must not reach the controller", path)
		}
	}
}

func TestCommandUnknown(t *testing.T) {
	s := New(&fakeController{}, nil, zap.NewNop())
	if rec := doRequest(t, s, "POST", "/api/command/eject", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCommandErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unsupported", nserrors.ErrUnsupported, http.StatusConflict},
		{"unreachable", nserrors.ErrUnreachable, http.StatusServiceUnavailable},
		{"other", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		s := New(&fakeController{err: tt.err}, nil, zap.NewNop())
		if rec := doRequest(t, s, "POST", "/api/command/play", ""); rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.want)
		}
	}
}

func TestCommandTransportFault(t *testing.T) {
	terr := &upnp.TransportError{Kind: upnp.KindFault, Action: "Play", FaultCode: "718"}
	s := New(&fakeController{err: terr}, nil, zap.NewNop())

	rec := doRequest(t, s, "POST", "/api/command/play", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["kind"] != "fault" || body["fault_code"] != "718" {
		t.Errorf("fault body = %v", body)
	}
}

func TestPressWithoutBridge(t *testing.T) {
	s := New(&fakeController{}, nil, zap.NewNop())

	rec := doRequest(t, s, "POST", "/api/buttons/play/press", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 when no remote is configured", rec.Code)
	}
}

func TestPressUnknownButton(t *testing.T) {
	bridge := remote.NewBridge(nopSender{}, remote.NewCatalogFromCodes(map[string][]byte{"play": {0x01}}, zap.NewNop()), 0, zap.NewNop())
	s := New(&fakeController{}, bridge, zap.NewNop())

	rec := doRequest(t, s, "POST", "/api/buttons/warp/press", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestPressAndButtons(t *testing.T) {
	bridge := remote.NewBridge(nopSender{}, remote.NewCatalogFromCodes(map[string][]byte{"play": {0x01}}, zap.NewNop()), 0, zap.NewNop())
	s := New(&fakeController{}, bridge, zap.NewNop())

	if rec := doRequest(t, s, "POST", "/api/buttons/play/press", ""); rec.Code != http.StatusAccepted {
		t.Errorf("press status = %d, want 202", rec.Code)
	}

	body := decodeBody(t, doRequest(t, s, "GET", "/api/buttons", ""))
	buttons, _ := body["buttons"].([]any)
	if len(buttons) != 1 || buttons[0] != "play" {
		t.Errorf("buttons = %v", body["buttons"])
	}
}

func TestButtonsWithoutBridge(t *testing.T) {
	s := New(&fakeController{}, nil, zap.NewNop())

	body := decodeBody(t, doRequest(t, s, "GET", "/api/buttons", ""))
	buttons, ok := body["buttons"].([]any)
	if !ok || len(buttons) != 0 {
		t.Errorf("buttons = %v, want empty list", body["buttons"])
	}
}

type nopSender struct{}

func (nopSender) SendCode(ctx context.Context, code []byte) error { return nil }
