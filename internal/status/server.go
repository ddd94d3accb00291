// Package status serves a read-only HTTP view of active sessions and a
// websocket feed of session activity.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/keshon/listenparty/internal/logging"
	"github.com/keshon/listenparty/internal/music/player"
)

// Sessions is the registry view the server reads.
type Sessions interface {
	Len() int
	Snapshots() []player.Snapshot
	Get(guildID string) *player.Session
}

type Server struct {
	sessions Sessions
	hub      *Hub
	upgrader websocket.Upgrader
	started  time.Time
	log      *slog.Logger
}

func NewServer(sessions Sessions) *Server {
	log := logging.For("status")
	return &Server{
		sessions: sessions,
		hub:      NewHub(log),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		started: time.Now(),
		log:     log,
	}
}

// Hub is the activity feed; register it as a player.Observer or feed it
// from Redis.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/sessions", s.handleSessions)
	r.Get("/sessions/{guildID}", s.handleSession)
	r.Get("/events", s.handleEvents)
	return r
}

// ListenAndServe runs the server and the hub until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go s.hub.Run(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("Status server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
		"uptime":   time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.Snapshots())
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	sess := s.sessions.Get(guildID)
	if sess == nil || sess.Closed() {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no active session", "guild_id": guildID})
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := &Client{hub: s.hub, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case s.hub.register <- c:
	case <-s.hub.quit:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
