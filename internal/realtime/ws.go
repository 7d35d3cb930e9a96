package realtime

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bloomence/internal/identity"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 32
)

// session is one websocket connection pinned to a user room. Hub deliveries
// race with teardown (read-side disconnect, or the hub dropping a slow
// consumer), so enqueue and close serialize on mu: a send can never hit a
// closed channel.
type session struct {
	uid  string
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// enqueue offers raw to the session without blocking. Reports false when the
// buffer is full; a closed session swallows the message.
func (s *session) enqueue(raw []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.send <- raw:
		return true
	default:
		return false
	}
}

func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

// WSHandler upgrades authenticated requests into hub sessions. The token
// rides the Authorization header or the token query parameter; browsers
// cannot set headers on websocket dials so the query form is the common one.
func WSHandler(hub *Hub, verifier identity.Verifier, logger *slog.Logger, allowedOrigins []string) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := identity.TokenFromRequest(r)
		if !ok {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		claims, err := verifier.Verify(r.Context(), token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the error response.
			logger.Warn("websocket upgrade failed", "error", err, "uid", claims.UID)
			return
		}

		s := &session{
			uid:  claims.UID,
			conn: conn,
			send: make(chan []byte, sendBufferSize),
		}
		hub.attach(s)
		logger.Debug("websocket session opened", "uid", s.uid)

		go s.writePump()
		go s.readPump(hub, logger)
	}
}

// readPump drains inbound frames until the peer goes away. Clients only
// listen on this socket; anything they send is discarded.
func (s *session) readPump(hub *Hub, logger *slog.Logger) {
	defer func() {
		hub.detach(s)
		s.close()
		_ = s.conn.Close()
		logger.Debug("websocket session closed", "uid", s.uid)
	}()

	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read error", "error", err, "uid", s.uid)
			}
			return
		}
	}
}

// writePump serializes all writes to the connection, including keepalive
// pings. gorilla permits at most one concurrent writer per connection.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
