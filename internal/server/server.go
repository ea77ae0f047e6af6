// Package server exposes the playback state machine and the remote bridge to
// the host platform over HTTP and websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tessro/nstream/internal/core"
	nserrors "github.com/tessro/nstream/internal/errors"
	"github.com/tessro/nstream/internal/remote"
	"github.com/tessro/nstream/internal/upnp"
	"go.uber.org/zap"
)

const commandTimeout = 15 * time.Second

// Server is the HTTP boundary. It owns no playback state; every read goes
// through the controller's snapshot and every write through its commands.
type Server struct {
	controller core.Controller
	bridge     *remote.Bridge
	log        *zap.Logger
	router     chi.Router
}

// New builds the HTTP surface. bridge may be nil when no remote is
// configured; button routes then answer with the no-remote error.
func New(controller core.Controller, bridge *remote.Bridge, log *zap.Logger) *Server {
	s := &Server{
		controller: controller,
		bridge:     bridge,
		log:        log,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/state/ws", s.handleStateWS)
		r.Get("/capabilities", s.handleCapabilities)
		r.Get("/buttons", s.handleButtons)
		r.Post("/command/{name}", s.handleCommand)
		r.Post("/buttons/{id}/press", s.handlePress)
	})
	s.router = r
	return s
}

// Run serves the API until ctx is cancelled.
func (s *Server) Run(ctx context.Context, listen string) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", zap.String("addr", listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	caps := s.controller.Capabilities()
	writeJSON(w, http.StatusOK, map[string]any{
		"volume":      caps.Volume,
		"mute":        caps.Mute,
		"position":    caps.Position,
		"seek":        caps.Seek,
		"source_list": caps.SourceList,
		"sources":     caps.Sources,
	})
}

func (s *Server) handleButtons(w http.ResponseWriter, r *http.Request) {
	if s.bridge == nil {
		writeJSON(w, http.StatusOK, map[string]any{"buttons": []string{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"buttons": s.bridge.Buttons()})
}

// commandArgs carries the optional JSON body of a command request.
type commandArgs struct {
	// PositionSeconds is used by seek.
	PositionSeconds *float64 `json:"position_seconds,omitempty"`
	// Level is used by volume.
	Level *int `json:"level,omitempty"`
	// Mute is used by mute.
	Mute *bool `json:"mute,omitempty"`
	// Source is used by source.
	Source *string `json:"source,omitempty"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var args commandArgs
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode args: %w", err))
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	var err error
	switch name {
	case "play":
		err = s.controller.Play(ctx)
	case "pause":
		err = s.controller.Pause(ctx)
	case "stop":
		err = s.controller.Stop(ctx)
	case "next":
		err = s.controller.Next(ctx)
	case "previous":
		err = s.controller.Prev(ctx)
	case "seek":
		if args.PositionSeconds == nil {
			writeError(w, http.StatusBadRequest, errors.New("seek requires position_seconds"))
			return
		}
		err = s.controller.Seek(ctx, time.Duration(*args.PositionSeconds*float64(time.Second)))
	case "volume":
		if args.Level == nil {
			writeError(w, http.StatusBadRequest, errors.New("volume requires level"))
			return
		}
		err = s.controller.SetVolume(ctx, *args.Level)
	case "mute":
		if args.Mute == nil {
			writeError(w, http.StatusBadRequest, errors.New("mute requires mute"))
			return
		}
		err = s.controller.SetMute(ctx, *args.Mute)
	case "source":
		if args.Source == nil {
			writeError(w, http.StatusBadRequest, errors.New("source requires source"))
			return
		}
		err = s.controller.SelectSource(ctx, *args.Source)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown command %q", name))
		return
	}

	if err != nil {
		s.writeCommandError(w, name, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (s *Server) handlePress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.bridge == nil {
		s.writeCommandError(w, "press", nserrors.ErrNoRemote)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	if err := s.bridge.Press(ctx, id); err != nil {
		s.writeCommandError(w, "press", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// writeCommandError maps domain errors onto HTTP status codes. Transport
// faults carry their kind and fault code so the caller can tell a dead
// network from a device that rejected the action.
func (s *Server) writeCommandError(w http.ResponseWriter, name string, err error) {
	s.log.Warn("command failed", zap.String("command", name), zap.Error(err))

	var terr *upnp.TransportError
	switch {
	case errors.Is(err, nserrors.ErrUnsupported):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, nserrors.ErrNoRemote):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, nserrors.ErrUnknownButton):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, nserrors.ErrUnreachable):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.As(err, &terr):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":      terr.Error(),
			"kind":       terr.Kind.String(),
			"fault_code": terr.FaultCode,
		})
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := map[string]any{"error": err.Error()}
	if suggestion := nserrors.GetSuggestion(err); suggestion != "" {
		body["suggestion"] = suggestion
	}
	writeJSON(w, status, body)
}
