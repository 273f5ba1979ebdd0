package client

import (
	"context"

	"github.com/AydenGen/podcast-together/internal/core"
	"github.com/AydenGen/podcast-together/internal/domain"
)

// Operator is the polling-path transport: the four room operations over
// HTTP. Implementations translate wire codes back into core sentinel errors
// so the engine can branch with errors.Is.
type Operator interface {
	Enter(ctx context.Context, roomID domain.RoomID, nickName string) (*core.RoomSnapshot, error)
	Heartbeat(ctx context.Context, roomID domain.RoomID, nickName string) (*core.RoomSnapshot, error)
	Leave(ctx context.Context, roomID domain.RoomID, nickName string) error
}

// PushChannel is the near-real-time transport. Receive's channel closes when
// the connection drops.
type PushChannel interface {
	Receive() <-chan core.PushEnvelope
	Send(cmd core.PushCommand) error
	Close() error
}

// PushDialer opens the push channel once the room has been entered.
type PushDialer func(ctx context.Context) (PushChannel, error)
