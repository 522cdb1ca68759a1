package panel

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// connection wraps one panel subscriber. Writes are serialized through a
// single writer goroutine; a panel that stops draining is dropped rather
// than allowed to block the broadcast path.
type connection struct {
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration
	closeOnce    sync.Once
	done         chan struct{}
}

func newConnection(conn *websocket.Conn, bufferSize int, writeTimeout time.Duration) *connection {
	c := &connection{
		conn:         conn,
		writeCh:      make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}

	go c.writeLoop()
	go c.readLoop()

	return c
}

func (c *connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop discards inbound frames; panels are read-only. Its real job is to
// notice the peer closing.
func (c *connection) readLoop() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.close()
			return
		}
	}
}

// send queues a payload without blocking. Returns false when the subscriber
// is too slow and has been dropped.
func (c *connection) send(data []byte) bool {
	select {
	case c.writeCh <- data:
		return true
	case <-c.done:
		return false
	default:
		c.close()
		return false
	}
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *connection) closed() <-chan struct{} {
	return c.done
}
