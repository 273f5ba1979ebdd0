package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/AydenGen/podcast-together/internal/core"
)

const pushWriteWait = 5 * time.Second

// Push is the websocket push-channel client.
type Push struct {
	conn *websocket.Conn
	recv chan core.PushEnvelope

	mu     sync.Mutex
	closed bool
}

// DialPush connects to the server's push endpoint, e.g.
// "ws://host:8080/api/room-ws".
func DialPush(ctx context.Context, url string) (*Push, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	p := &Push{
		conn: conn,
		recv: make(chan core.PushEnvelope, 8),
	}
	go p.readLoop()
	return p, nil
}

func (p *Push) Receive() <-chan core.PushEnvelope { return p.recv }

func (p *Push) Send(cmd core.PushCommand) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("transport: push channel closed")
	}
	if err := p.conn.SetWriteDeadline(time.Now().Add(pushWriteWait)); err != nil {
		return err
	}
	return p.conn.WriteJSON(cmd)
}

func (p *Push) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.conn.Close()
}

func (p *Push) readLoop() {
	defer close(p.recv)
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("module", "client.transport").Msg("push read error")
			}
			return
		}
		var env core.PushEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Debug().Str("module", "client.transport").Msg("invalid push message")
			continue
		}
		p.recv <- env
	}
}
