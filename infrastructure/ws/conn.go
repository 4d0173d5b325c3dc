package ws

import (
	"log/slog"
	"sync"
	"time"

	"groupchat/contract"
	"groupchat/errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var _ contract.Connection = (*Conn)(nil)

// Conn is one WebSocket session. Outbound payloads go through a bounded
// queue drained by writeLoop. Each queue slot holds a batch of frames
// written back to back, so a history replay takes a single slot.
type Conn struct {
	id        string
	ws        *websocket.Conn
	log       *slog.Logger
	opts      Options
	send      chan [][]byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, log *slog.Logger, opts Options) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:     id,
		ws:     ws,
		log:    log.With("conn_id", id),
		opts:   opts,
		send:   make(chan [][]byte, opts.BufferSize),
		closed: make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Send enqueues payload for delivery.
func (c *Conn) Send(payload []byte) error {
	return c.enqueue([][]byte{payload})
}

// SendBatch enqueues payloads as one unit.
func (c *Conn) SendBatch(payloads [][]byte) error {
	if len(payloads) == 0 {
		return nil
	}
	return c.enqueue(payloads)
}

// enqueue waits at most WriteTimeout for a free slot. A peer still behind
// after that is reported with ErrSendBufferFull.
func (c *Conn) enqueue(batch [][]byte) error {
	select {
	case <-c.closed:
		return errors.ErrConnectionClosed
	default:
	}

	select {
	case c.send <- batch:
		return nil
	default:
	}

	timer := time.NewTimer(c.opts.WriteTimeout)
	defer timer.Stop()
	select {
	case c.send <- batch:
		return nil
	case <-c.closed:
		return errors.ErrConnectionClosed
	case <-timer.C:
		return errors.ErrSendBufferFull
	}
}

// Close stops the writer and releases the socket. Safe to call many times.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

// shutdown tells the peer the server is going away before closing.
func (c *Conn) shutdown() {
	deadline := time.Now().Add(c.opts.WriteTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
	c.Close()
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	defer c.Close()

	for {
		select {
		case <-c.closed:
			return
		case batch := <-c.send:
			for _, payload := range batch {
				_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
				if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
					c.log.Warn("Write failed, closing connection", "error", err)
					return
				}
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.Debug("Ping failed, closing connection", "error", err)
				return
			}
		}
	}
}
