// Package ws exposes the chat protocol over WebSocket.
package ws

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"groupchat/contract"

	"github.com/gorilla/websocket"
)

type Options struct {
	BufferSize      int
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
}

func DefaultOptions() Options {
	return Options{
		BufferSize:      64,
		WriteTimeout:    5 * time.Second,
		PingInterval:    15 * time.Second,
		MaxMessageBytes: 64 << 10,
	}
}

// Server upgrades HTTP requests and feeds every text frame to the handler.
type Server struct {
	log      *slog.Logger
	handler  contract.SessionHandler
	opts     Options
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func NewServer(log *slog.Logger, handler contract.SessionHandler, opts Options) *Server {
	return &Server{
		log:     log,
		handler: handler,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*Conn]struct{}),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.log.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := newConn(wsConn, s.log, s.opts)
	s.track(conn)
	defer s.untrack(conn)

	s.handler.OnOpen(conn)
	go conn.writeLoop()
	s.readLoop(conn)

	conn.Close()
	s.handler.OnClose(conn)
}

func (s *Server) readLoop(conn *Conn) {
	ws := conn.ws
	ws.SetReadLimit(s.opts.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(2 * s.opts.PingInterval))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(2 * s.opts.PingInterval))
	})

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			if isUnexpected(err, conn) {
				s.handler.OnError(conn, err)
			}
			return
		}
		if kind != websocket.TextMessage {
			conn.log.Debug("Ignoring non text frame", "type", kind)
			continue
		}
		_ = ws.SetReadDeadline(time.Now().Add(2 * s.opts.PingInterval))
		s.handler.OnMessage(conn, data)
	}
}

// isUnexpected filters out the normal ways a session ends.
func isUnexpected(err error, conn *Conn) bool {
	select {
	case <-conn.closed:
		return false
	default:
	}
	return !websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived)
}

// Shutdown closes every open session. Their handlers still see OnClose.
func (s *Server) Shutdown() {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.shutdown()
	}
	s.log.Info("WebSocket sessions closed", "count", len(conns))
}

// Open reports how many sessions are currently established.
func (s *Server) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(c *Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}
