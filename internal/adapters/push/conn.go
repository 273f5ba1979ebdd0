package push

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("push: backpressure")

const writeWait = 5 * time.Second

// conn wraps one established push websocket. The hub owns the binding
// (room + caller), the conn owns the socket.
type conn struct {
	id   string
	sock *websocket.Conn
	send chan []byte
	done chan struct{} // closed exactly once, in close()

	mu     sync.RWMutex
	closed bool
}

func newConn(id string, sock *websocket.Conn) *conn {
	return &conn{
		id:   id,
		sock: sock,
		send: make(chan []byte, 32),
		done: make(chan struct{}),
	}
}

func (c *conn) trySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("push: connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *conn) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.trySend(data)
}

func (c *conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	close(c.done)
	_ = c.sock.Close()
	c.mu.Unlock()
}

func (c *conn) writePump() {
	for data := range c.send {
		if err := c.sock.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			log.Error().Err(err).Str("module", "push").Str("conn", c.id).Msg("writePump set deadline")
			return
		}
		if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "push").Str("conn", c.id).Msg("writePump write error")
			return
		}
	}
}
