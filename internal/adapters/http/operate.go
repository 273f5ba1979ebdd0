// Package http exposes the single room-operate endpoint.
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/AydenGen/podcast-together/internal/app"
	"github.com/AydenGen/podcast-together/internal/core"
	"github.com/AydenGen/podcast-together/internal/domain"
)

// HeaderClientID carries the stable per-device identifier used as the
// participant nonce.
const HeaderClientID = "x-pt-local-id"

// Stable wire codes. Clients branch on these, never on messages.
const (
	CodeOK           = "0000"
	CodeBadRequest   = "E4000"
	CodeNotMember    = "E4003"
	CodeRoomNotFound = "E4004"
	CodeWrongMethod  = "E4005"
	CodeRoomExpired  = "E4006"
	CodeInternal     = "E5000"
	CodeRoomFull     = "R0001"
)

type Envelope struct {
	Code    string             `json:"code"`
	ErrMsg  string             `json:"errMsg,omitempty"`
	ShowMsg string             `json:"showMsg,omitempty"`
	Data    *core.RoomSnapshot `json:"data,omitempty"`
}

type operateRequest struct {
	OperateType string              `json:"operateType"`
	RoomID      string              `json:"roomId"`
	NickName    string              `json:"nickName"`
	RoomData    *domain.ContentData `json:"roomData"`
}

type OperateHandler struct {
	Svc *app.Service
}

func NewOperateHandler(svc *app.Service) *OperateHandler {
	return &OperateHandler{Svc: svc}
}

// Handle validates the envelope, then dispatches to one of the four
// operations. Every outcome is an HTTP 200 carrying a wire code; rejection
// happens before any state mutation.
func (h *OperateHandler) Handle(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.JSON(http.StatusOK, Envelope{Code: CodeWrongMethod})
		return
	}

	caller := domain.ClientID(c.GetHeader(HeaderClientID))
	var req operateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, Envelope{Code: CodeBadRequest})
		return
	}
	if caller == "" || req.NickName == "" {
		c.JSON(http.StatusOK, Envelope{Code: CodeBadRequest})
		return
	}

	ctx := c.Request.Context()
	roomID := domain.RoomID(req.RoomID)

	switch req.OperateType {
	case "CREATE":
		if req.RoomData == nil {
			c.JSON(http.StatusOK, Envelope{Code: CodeBadRequest})
			return
		}
		snap, err := h.Svc.Create(ctx, *req.RoomData, caller)
		h.respond(c, snap, err)
	case "ENTER":
		if req.RoomID == "" {
			c.JSON(http.StatusOK, Envelope{Code: CodeBadRequest})
			return
		}
		snap, err := h.Svc.Enter(ctx, roomID, req.NickName, caller, c.GetHeader("User-Agent"))
		h.respond(c, snap, err)
	case "HEARTBEAT":
		if req.RoomID == "" {
			c.JSON(http.StatusOK, Envelope{Code: CodeBadRequest})
			return
		}
		snap, err := h.Svc.Heartbeat(ctx, roomID, caller)
		h.respond(c, snap, err)
	case "LEAVE":
		if req.RoomID == "" {
			c.JSON(http.StatusOK, Envelope{Code: CodeBadRequest})
			return
		}
		h.respond(c, nil, h.Svc.Leave(ctx, roomID, caller))
	default:
		c.JSON(http.StatusOK, Envelope{Code: CodeBadRequest})
	}
}

func (h *OperateHandler) respond(c *gin.Context, snap *core.RoomSnapshot, err error) {
	if err != nil {
		env := Envelope{Code: CodeForError(err)}
		if errors.Is(err, core.ErrBadRequest) {
			env.ErrMsg = err.Error()
		}
		if env.Code == CodeInternal {
			log.Error().Err(err).Str("module", "adapters.http").Msg("operate failed")
		}
		c.JSON(http.StatusOK, env)
		return
	}
	c.JSON(http.StatusOK, Envelope{Code: CodeOK, Data: snap})
}

// CodeForError maps service errors onto the stable wire contract. DELETED
// rooms report the same code as missing ones.
func CodeForError(err error) string {
	switch {
	case errors.Is(err, core.ErrRoomNotFound), errors.Is(err, core.ErrRoomDeleted):
		return CodeRoomNotFound
	case errors.Is(err, core.ErrRoomExpired):
		return CodeRoomExpired
	case errors.Is(err, core.ErrNotMember):
		return CodeNotMember
	case errors.Is(err, core.ErrRoomFull):
		return CodeRoomFull
	case errors.Is(err, core.ErrBadRequest):
		return CodeBadRequest
	default:
		return CodeInternal
	}
}
