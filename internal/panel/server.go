// Package panel exposes the engine's read-only views over a localhost
// WebSocket so external dashboards can render live state without touching
// the shared store. Panels only ever receive pushes; they send nothing.
package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"livefollow/pkg/types"
)

// Config carries the panel endpoint settings.
type Config struct {
	Host         string
	Port         int
	WriteTimeout time.Duration
	BufferSize   int
}

// Update is the payload pushed to panels: the full store snapshot plus the
// time it was generated. Panels re-render from scratch on every update.
type Update struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Sessions    []*types.Session `json:"sessions"`
}

// Server serves /ws for live pushes and /view for a one-shot read of the
// latest snapshot.
type Server struct {
	config     Config
	logger     zerolog.Logger
	upgrader   websocket.Upgrader
	httpServer *http.Server

	mu      sync.Mutex
	clients map[*connection]struct{}
	latest  []byte
	addr    string
}

// NewServer creates a panel server. It does not listen until Start.
func NewServer(cfg Config, logger zerolog.Logger) *Server {
	s := &Server{
		config: cfg,
		logger: logger.With().Str("component", "panel").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The endpoint binds to loopback; same-machine pages may connect
			// from any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*connection]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/view", s.handleView)

	s.httpServer = &http.Server{
		Addr:    net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		Handler: mux,
	}

	return s
}

// Start begins serving in the background. Listen errors surface immediately;
// later serve errors are logged.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}

	s.mu.Lock()
	s.addr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("panel listening")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("panel server stopped")
		}
	}()

	return nil
}

// Addr returns the bound address, usable once Start has returned.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop shuts the HTTP server down and drops every connected panel.
func (s *Server) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	s.mu.Lock()
	clients := make([]*connection, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[*connection]struct{})
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}

	return err
}

// HandleSnapshot is the reconciliation handler: it converts the snapshot
// into an Update and pushes it to every panel.
func (s *Server) HandleSnapshot(sessions []*types.Session) {
	s.Broadcast(Update{GeneratedAt: time.Now(), Sessions: sessions})
}

// Broadcast marshals the payload, remembers it as the latest view, and
// pushes it to all connected panels. Slow panels are dropped.
func (s *Server) Broadcast(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal panel payload")
		return
	}

	s.mu.Lock()
	s.latest = data
	clients := make([]*connection, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if !c.send(data) {
			s.remove(c)
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("panel upgrade failed")
		return
	}

	c := newConnection(wsConn, s.config.BufferSize, s.config.WriteTimeout)

	s.mu.Lock()
	s.clients[c] = struct{}{}
	latest := s.latest
	s.mu.Unlock()

	// New panels see the current state immediately rather than waiting for
	// the next reconciliation tick.
	if latest != nil {
		c.send(latest)
	}

	s.logger.Debug().Str("remote", r.RemoteAddr).Msg("panel connected")

	go func() {
		<-c.closed()
		s.remove(c)
	}()
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	latest := s.latest
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if latest == nil {
		_, _ = w.Write([]byte("{}"))
		return
	}
	_, _ = w.Write(latest)
}

func (s *Server) remove(c *connection) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// ClientCount reports how many panels are currently attached.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
