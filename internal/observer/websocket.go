package observer

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeTimeout bounds a single status write to a client
	writeTimeout = 5 * time.Second
	// clientBuffer is the per-client pending status queue
	clientBuffer = 16
)

// Server pushes every published Status to connected WebSocket clients as JSON.
// The current status is sent immediately after connecting.
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewServer creates a WebSocket handler backed by hub.
func NewServer(hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the connection and streams status updates until the
// client goes away.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := s.hub.Subscribe(clientBuffer)
	defer cancel()

	s.logger.Debug("observer connected", "remote", r.RemoteAddr, "clients", s.hub.Subscribers())

	// Clients never send anything meaningful; reading detects disconnects.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if latest, ok := s.hub.Latest(); ok {
		if err := s.write(conn, latest); err != nil {
			return
		}
	}

	for {
		select {
		case <-closed:
			s.logger.Debug("observer disconnected", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case status, ok := <-updates:
			if !ok {
				return
			}
			if err := s.write(conn, status); err != nil {
				s.logger.Debug("observer write failed", "remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}

func (s *Server) write(conn *websocket.Conn, status Status) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(status)
}
