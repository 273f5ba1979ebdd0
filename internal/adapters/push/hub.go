// Package push fans room-status changes out to connected clients and takes
// in the client-side push commands (FIRST_SEND, SET_PLAYER).
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"

	"github.com/AydenGen/podcast-together/internal/app"
	"github.com/AydenGen/podcast-together/internal/core"
	"github.com/AydenGen/podcast-together/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type binding struct {
	roomID domain.RoomID
	caller domain.ClientID
}

// Hub tracks which push connection belongs to which room and caller.
// It implements core.Notifier for the operation service.
type Hub struct {
	Svc *app.Service

	mu     sync.RWMutex
	conns  map[*conn]binding
	byRoom map[domain.RoomID]map[*conn]struct{}
}

func NewHub(svc *app.Service) *Hub {
	return &Hub{
		Svc:    svc,
		conns:  make(map[*conn]binding),
		byRoom: make(map[domain.RoomID]map[*conn]struct{}),
	}
}

// HandleConnect upgrades the request and starts the pumps. The CONNECTED
// handshake prompts the client to announce itself with FIRST_SEND.
func (h *Hub) HandleConnect(ctx context.Context, c *gin.Context) {
	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "push").Msg("ws upgrade")
		return
	}
	cn := newConn(xid.New().String(), sock)
	log.Info().Str("module", "push").Str("conn", cn.id).Str("remote", sock.RemoteAddr().String()).Msg("push connection opened")

	h.mu.Lock()
	h.conns[cn] = binding{}
	h.mu.Unlock()

	go cn.writePump()
	go h.readPump(ctx, cn)

	// server shutdown must unblock the read pump; closing the socket is the
	// only way to do that
	go func() {
		select {
		case <-ctx.Done():
			cn.close()
		case <-cn.done:
		}
	}()

	_ = cn.sendJSON(core.PushEnvelope{ResponseType: core.ResponseConnected})
}

func (h *Hub) readPump(ctx context.Context, cn *conn) {
	defer func() {
		log.Info().Str("module", "push").Str("conn", cn.id).Msg("push connection closing")
		h.drop(cn)
		cn.close()
	}()
	for {
		_, data, err := cn.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "push").Str("conn", cn.id).Msg("unexpected close")
			}
			return
		}
		h.handleCommand(ctx, cn, data)
	}
}

func (h *Hub) handleCommand(ctx context.Context, cn *conn, data []byte) {
	var cmd core.PushCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		log.Warn().Str("module", "push").Str("conn", cn.id).Msg("invalid push command")
		return
	}
	if cmd.RoomID == "" || cmd.CallerID == "" {
		return
	}

	switch cmd.OperateType {
	case core.OpFirstSend:
		h.bind(cn, cmd.RoomID, cmd.CallerID)
	case core.OpSetPlayer:
		// presence may have raced the announcement; bind on the way in
		h.bind(cn, cmd.RoomID, cmd.CallerID)
		err := h.Svc.SetPlayer(ctx, cmd.RoomID, cmd.CallerID, app.PlayerState{
			PlayStatus:   cmd.PlayStatus,
			SpeedRate:    cmd.SpeedRate,
			ContentStamp: cmd.ContentStamp,
		})
		if err != nil {
			log.Warn().Err(err).Str("module", "push").Str("room", string(cmd.RoomID)).Msg("set player rejected")
		}
	default:
		// silently drop
	}
}

func (h *Hub) bind(cn *conn, roomID domain.RoomID, caller domain.ClientID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.conns[cn]; ok && old.roomID != "" && old.roomID != roomID {
		delete(h.byRoom[old.roomID], cn)
	}
	h.conns[cn] = binding{roomID: roomID, caller: caller}
	if h.byRoom[roomID] == nil {
		h.byRoom[roomID] = make(map[*conn]struct{})
	}
	h.byRoom[roomID][cn] = struct{}{}
}

func (h *Hub) drop(cn *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if b, ok := h.conns[cn]; ok && b.roomID != "" {
		delete(h.byRoom[b.roomID], cn)
	}
	delete(h.conns, cn)
}

// NotifyRoom fans a status change out to every connection bound to the room
// except the caller that drove it.
func (h *Hub) NotifyRoom(roomID domain.RoomID, except domain.ClientID, st core.RoomStatus) {
	data, err := json.Marshal(core.PushEnvelope{
		ResponseType: core.ResponseNewStatus,
		RoomStatus:   &st,
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.byRoom[roomID]))
	for cn := range h.byRoom[roomID] {
		if h.conns[cn].caller == except {
			continue
		}
		targets = append(targets, cn)
	}
	h.mu.RUnlock()

	sent := 0
	for _, cn := range targets {
		if err := cn.trySend(data); err != nil {
			log.Debug().Err(err).Str("module", "push").Str("conn", cn.id).Msg("notify dropped")
			continue
		}
		sent++
	}
	log.Debug().Str("module", "push").Str("room", string(roomID)).Int("sent_to", sent).Msg("status fanned out")
}
