// Package transport provides the live HTTP and websocket transports for the
// reconciliation engine.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	httpapi "github.com/AydenGen/podcast-together/internal/adapters/http"
	"github.com/AydenGen/podcast-together/internal/core"
	"github.com/AydenGen/podcast-together/internal/domain"
)

// Ops talks to the room-operate endpoint. Wire codes come back as core
// sentinel errors so the engine can branch with errors.Is.
type Ops struct {
	BaseURL   string
	CallerID  domain.ClientID
	UserAgent string
	HTTP      *http.Client
}

func NewOps(baseURL string, callerID domain.ClientID) *Ops {
	return &Ops{
		BaseURL:  baseURL,
		CallerID: callerID,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (o *Ops) Create(ctx context.Context, content domain.ContentData, nickName string) (*core.RoomSnapshot, error) {
	return o.operate(ctx, map[string]any{
		"operateType": "CREATE",
		"nickName":    nickName,
		"roomData":    content,
	}, true)
}

func (o *Ops) Enter(ctx context.Context, roomID domain.RoomID, nickName string) (*core.RoomSnapshot, error) {
	return o.operate(ctx, map[string]any{
		"operateType": "ENTER",
		"roomId":      roomID,
		"nickName":    nickName,
	}, true)
}

func (o *Ops) Heartbeat(ctx context.Context, roomID domain.RoomID, nickName string) (*core.RoomSnapshot, error) {
	return o.operate(ctx, map[string]any{
		"operateType": "HEARTBEAT",
		"roomId":      roomID,
		"nickName":    nickName,
	}, true)
}

func (o *Ops) Leave(ctx context.Context, roomID domain.RoomID, nickName string) error {
	_, err := o.operate(ctx, map[string]any{
		"operateType": "LEAVE",
		"roomId":      roomID,
		"nickName":    nickName,
	}, false)
	return err
}

// operate posts one room operation. wantSnapshot guards the trust boundary:
// a success envelope missing its data payload is a broken response, never a
// nil snapshot handed to the engine.
func (o *Ops) operate(ctx context.Context, body map[string]any, wantSnapshot bool) (*core.RoomSnapshot, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("transport: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/room-operate", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httpapi.HeaderClientID, string(o.CallerID))
	if o.UserAgent != "" {
		req.Header.Set("User-Agent", o.UserAgent)
	}

	resp, err := o.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: request failed: %w", err)
	}
	defer resp.Body.Close()

	var env httpapi.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("transport: decode response: %w", err)
	}
	if env.Code != httpapi.CodeOK {
		return nil, ErrorForCode(env.Code, env.ErrMsg)
	}
	if wantSnapshot && env.Data == nil {
		return nil, fmt.Errorf("transport: %v response carried no room data", body["operateType"])
	}
	return env.Data, nil
}

// ErrorForCode is the inverse of the server-side code mapping.
func ErrorForCode(code, errMsg string) error {
	var base error
	switch code {
	case httpapi.CodeRoomNotFound:
		base = core.ErrRoomNotFound
	case httpapi.CodeRoomExpired:
		base = core.ErrRoomExpired
	case httpapi.CodeNotMember:
		base = core.ErrNotMember
	case httpapi.CodeRoomFull:
		base = core.ErrRoomFull
	case httpapi.CodeBadRequest, httpapi.CodeWrongMethod:
		base = core.ErrBadRequest
	default:
		return fmt.Errorf("transport: server code %s: %s", code, errMsg)
	}
	if errMsg != "" {
		return fmt.Errorf("%w: %s", base, errMsg)
	}
	return base
}
