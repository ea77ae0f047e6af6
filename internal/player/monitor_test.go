package player

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tessro/nstream/internal/core"
	"github.com/tessro/nstream/internal/naim"
	"github.com/tessro/nstream/internal/upnp"
	"go.uber.org/zap"
)

// genaServer fakes a device event endpoint. Renewals fail while failRenews
// is set; fresh subscriptions always succeed with a counted SID.
type genaServer struct {
	srv        *httptest.Server
	subscribes atomic.Int32
	renews     atomic.Int32
	unsubs     atomic.Int32
	failRenews atomic.Bool
}

func newGENAServer(t *testing.T) *genaServer {
	t.Helper()
	g := &genaServer{}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "SUBSCRIBE":
			if r.Header.Get("SID") != "" {
				g.renews.Add(1)
				if g.failRenews.Load() {
					w.WriteHeader(http.StatusPreconditionFailed)
					return
				}
				w.Header().Set("SID", r.Header.Get("SID"))
				w.Header().Set("TIMEOUT", "Second-300")
				w.WriteHeader(http.StatusOK)
				return
			}
			n := g.subscribes.Add(1)
			w.Header().Set("SID", "uuid:sub-"+string(rune('0'+n)))
			w.Header().Set("TIMEOUT", "Second-300")
			w.WriteHeader(http.StatusOK)
		case "UNSUBSCRIBE":
			g.unsubs.Add(1)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func newTestMonitor(t *testing.T, eventURL string) *Monitor {
	t.Helper()
	client := upnp.NewClient(2 * time.Second)
	desc := &core.Descriptor{
		Name:        "test",
		BaseURL:     "http://192.0.2.1:8080",
		AVTransport: &core.ServiceEndpoints{ControlURL: "http://192.0.2.1:8080/av", EventURL: eventURL},
	}
	streamer := naim.NewStreamer(client, desc, zap.NewNop())
	pl := New(streamer, core.Capabilities{Transport: true}, zap.NewNop())
	return NewMonitor(client, streamer, pl, MonitorConfig{Lease: 300 * time.Second}, zap.NewNop())
}

func TestRenewFailuresTriggerOneFreshSubscribe(t *testing.T) {
	g := newGENAServer(t)
	m := newTestMonitor(t, g.srv.URL)
	ctx := context.Background()

	s := m.subscribeOne(ctx, "AVTransport", g.srv.URL, "http://192.0.2.10/notify")
	if s == nil {
		t.Fatal("initial subscribe failed")
	}
	oldSID := s.sub.SID

	g.failRenews.Store(true)

	// Two failures keep the subscription and just schedule retries.
	for i := 0; i < maxRenewFailures-1; i++ {
		s = m.renew(ctx, s, "http://192.0.2.10/notify")
		if s == nil {
			t.Fatalf("subscription dropped after %d failures", i+1)
		}
		if got := g.subscribes.Load(); got != 1 {
			t.Fatalf("fresh subscribes after %d failures = %d, want 1", i+1, got)
		}
	}

	// The third failure tears down and re-subscribes exactly once.
	s = m.renew(ctx, s, "http://192.0.2.10/notify")
	if s == nil {
		t.Fatal("fresh subscribe should have succeeded")
	}
	if got := g.subscribes.Load(); got != 2 {
		t.Errorf("fresh subscribes = %d, want 2", got)
	}
	if g.unsubs.Load() != 1 {
		t.Errorf("unsubscribes = %d, want 1", g.unsubs.Load())
	}
	if s.sub.SID == oldSID {
		t.Error("expected a new SID after re-subscribe")
	}

	// The retired SID must no longer be accepted at intake.
	m.mu.Lock()
	oldValid, newValid := m.valid[oldSID], m.valid[s.sub.SID]
	m.mu.Unlock()
	if oldValid {
		t.Error("old SID still valid after retirement")
	}
	if !newValid {
		t.Error("new SID not registered")
	}
}

func TestRenewFreshSubscribeAlsoFails(t *testing.T) {
	g := newGENAServer(t)
	m := newTestMonitor(t, g.srv.URL)
	ctx := context.Background()

	s := m.subscribeOne(ctx, "AVTransport", g.srv.URL, "http://192.0.2.10/notify")
	if s == nil {
		t.Fatal("initial subscribe failed")
	}

	// Kill the device entirely: renewals and fresh subscribes both fail.
	g.srv.Close()

	for i := 0; i < maxRenewFailures-1; i++ {
		if s = m.renew(ctx, s, "http://192.0.2.10/notify"); s == nil {
			t.Fatalf("subscription dropped after %d failures", i+1)
		}
	}
	if s = m.renew(ctx, s, "http://192.0.2.10/notify"); s != nil {
		t.Error("renew should report a lost subscription when re-subscribe fails")
	}
}

func TestHandleNotifyQueuesValidSID(t *testing.T) {
	m := newTestMonitor(t, "http://192.0.2.1/evt")

	m.mu.Lock()
	m.valid["uuid:live"] = true
	m.mu.Unlock()

	body := `<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0"><e:property><CurrentVolume>3</CurrentVolume></e:property></e:propertyset>`

	req := httptest.NewRequest("NOTIFY", "/notify", strings.NewReader(body))
	req.Header.Set("SID", "uuid:live")
	req.Header.Set("SEQ", "7")
	rec := httptest.NewRecorder()
	m.handleNotify(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	select {
	case ev := <-m.events:
		if ev.sid != "uuid:live" || ev.seq != 7 {
			t.Errorf("queued event = %s/%d, want uuid:live/7", ev.sid, ev.seq)
		}
	default:
		t.Fatal("event not queued")
	}
}

func TestHandleNotifyDropsRetiredSID(t *testing.T) {
	m := newTestMonitor(t, "http://192.0.2.1/evt")

	req := httptest.NewRequest("NOTIFY", "/notify", strings.NewReader("<e:propertyset/>"))
	req.Header.Set("SID", "uuid:retired")
	rec := httptest.NewRecorder()
	m.handleNotify(rec, req)

	// Acknowledged so the device does not retry, but nothing is queued.
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	select {
	case <-m.events:
		t.Fatal("event from a retired SID must not be queued")
	default:
	}
}

func TestRotateGenerationRetiresPollSID(t *testing.T) {
	m := newTestMonitor(t, "http://192.0.2.1/evt")

	m.mu.Lock()
	oldGen := m.gen
	oldPoll := "poll:" + oldGen.String()
	m.valid[oldPoll] = true
	m.mu.Unlock()

	m.rotateGeneration()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == oldGen {
		t.Error("generation did not change")
	}
	if m.valid[oldPoll] {
		t.Error("old generation's poll identity still accepted")
	}
	// The map holds only live identities; reconnects must not accrete.
	if len(m.valid) != 0 {
		t.Errorf("valid = %v, want empty", m.valid)
	}
	if m.pollSeq != 0 {
		t.Errorf("pollSeq = %d, want reset", m.pollSeq)
	}
}

func TestHandleNotifyRejectsOtherMethods(t *testing.T) {
	m := newTestMonitor(t, "http://192.0.2.1/evt")

	req := httptest.NewRequest("POST", "/notify", nil)
	rec := httptest.NewRecorder()
	m.handleNotify(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
