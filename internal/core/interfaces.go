package core

import (
	"context"

	"github.com/AydenGen/podcast-together/internal/domain"
)

// RoomStore holds one authoritative record per room. Updates are optimistic:
// an Update whose room carries a stale Version fails with ErrVersionConflict
// and the caller retries against a fresh read, so concurrent handlers can
// never clobber each other's participant-list edits.
type RoomStore interface {
	Get(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	Insert(ctx context.Context, r *domain.Room) error
	Update(ctx context.Context, r *domain.Room) error

	// FindOwnedOK returns the owner's room with state OK, or ErrRoomNotFound.
	FindOwnedOK(ctx context.Context, owner domain.ClientID) (*domain.Room, error)

	// ExpireBefore marks OK rooms created before cutoff as EXPIRED and
	// reports how many it touched. Used by the expiry janitor only; the
	// operation handlers check EXPIRED but never set it.
	ExpireBefore(ctx context.Context, cutoff int64) (int, error)
}

// Notifier delivers a room-status change to every connected client of the
// room except the one that drove the change.
type Notifier interface {
	NotifyRoom(roomID domain.RoomID, except domain.ClientID, st RoomStatus)
}

// NopNotifier satisfies Notifier when no push channel is wired (tests,
// single-process tools).
type NopNotifier struct{}

func (NopNotifier) NotifyRoom(domain.RoomID, domain.ClientID, RoomStatus) {}
