package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second
	// Pings are sent with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	defaultSendQueueSize = 64
)

// Conn is the outbound side of one client connection.
//
// Push never blocks: frames go through a bounded queue drained by WritePump,
// and a full queue drops the frame. The queue is never closed, so concurrent
// pushes after Close are safe and simply report false.
type Conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	log  *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewConn wraps ws with a send queue of queueSize frames.
func NewConn(ws *websocket.Conn, queueSize int, log *slog.Logger) *Conn {
	if queueSize <= 0 {
		queueSize = defaultSendQueueSize
	}
	id := uuid.NewString()
	return &Conn{
		id:   id,
		ws:   ws,
		send: make(chan []byte, queueSize),
		log:  log.With("conn_id", id),
		done: make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Push enqueues frame for delivery. It reports false when the connection is
// closed or its queue is full; the frame is dropped in both cases.
func (c *Conn) Push(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.log.Warn("Send queue full, dropping frame", "queue_size", cap(c.send))
		return false
	}
}

// Done is closed once the connection starts shutting down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close stops the write pump, which closes the socket. It is idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// WritePump drains the send queue to the socket and keeps the peer alive with
// pings. It owns all writes to ws and closes ws when it returns.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("Write failed, closing connection", "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("Ping failed, closing connection", "error", err)
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes frames still queued at close time, without waiting for more.
func (c *Conn) flush() {
	for {
		select {
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
