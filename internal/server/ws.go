package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API binds to the host platform's loopback or LAN; browser origin
	// checks do not apply.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// handleStateWS upgrades to a websocket and pushes every applied snapshot.
// The current snapshot is sent immediately so a client never starts blind.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	snapshots, cancel := s.controller.Subscribe()
	defer cancel()

	// Drain client frames so pong handling and close frames work.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(v)
	}

	if err := send(s.controller.Snapshot()); err != nil {
		return
	}

	pings := time.NewTicker(wsPingInterval)
	defer pings.Stop()

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if err := send(snap); err != nil {
				s.log.Debug("websocket client gone", zap.Error(err))
				return
			}
		case <-pings.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
