package websocket

import (
	"io"
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Connection is one live websocket. Outbound frames go through a bounded
// buffer drained by a single write pump, gorilla allows only one writer.
type Connection struct {
	id        string
	conn      *ws.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
}

func newConnection(id string, conn *ws.Conn, bufferSize int, log *slog.Logger) *Connection {
	return &Connection{
		id:   id,
		conn: conn,
		send: make(chan []byte, bufferSize),
		done: make(chan struct{}),
		log:  log.With("connection_id", id),
	}
}

func (c *Connection) ID() string {
	return c.id
}

// enqueue never blocks. It reports false when the connection is closed
// or its buffer is full.
func (c *Connection) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Close stops the write pump, which then closes the socket.
func (c *Connection) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
			return
		case frame := <-c.send:
			if !c.writeFrames(frame) {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				c.log.Debug("Ping failed", "error", err)
				return
			}
		}
	}
}

// writeFrames writes frame then whatever is already queued, one text
// message per event.
func (c *Connection) writeFrames(frame []byte) bool {
	if !c.writeFrame(frame) {
		return false
	}
	for n := len(c.send); n > 0; n-- {
		if !c.writeFrame(<-c.send) {
			return false
		}
	}
	return true
}

func (c *Connection) writeFrame(frame []byte) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	w, err := c.conn.NextWriter(ws.TextMessage)
	if err != nil {
		c.log.Debug("Failed to open writer", "error", err)
		return false
	}
	if _, err = w.Write(frame); err != nil {
		c.log.Debug("Failed to write frame", "error", err)
		_ = w.Close()
		return false
	}
	return closeWriter(w, c.log)
}

func closeWriter(w io.WriteCloser, log *slog.Logger) bool {
	if err := w.Close(); err != nil {
		log.Debug("Failed to flush frame", "error", err)
		return false
	}
	return true
}
