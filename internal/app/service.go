// Package app implements the room operation service: the authoritative state
// machine behind CREATE / ENTER / HEARTBEAT / LEAVE and the SET_PLAYER
// transport changes arriving over the push channel.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/AydenGen/podcast-together/internal/core"
	"github.com/AydenGen/podcast-together/internal/domain"
)

// mutateAttempts bounds retries when a concurrent handler wins the
// version race on the same room.
const mutateAttempts = 3

type Service struct {
	Store    core.RoomStore
	Notifier core.Notifier
	Guests   *core.GuestIDAllocator

	// Now returns epoch milliseconds; injectable for tests.
	Now func() int64
}

func NewService(store core.RoomStore, notifier core.Notifier) *Service {
	return &Service{
		Store:    store,
		Notifier: notifier,
		Guests:   core.NewGuestIDAllocator(),
		Now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// Create retires any live room of the same owner, then inserts a fresh
// paused room at position zero. A client can never hold two live rooms.
func (s *Service) Create(ctx context.Context, content domain.ContentData, requester domain.ClientID) (*core.RoomSnapshot, error) {
	if err := content.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrBadRequest, err)
	}

	old, err := s.Store.FindOwnedOK(ctx, requester)
	switch {
	case err == nil:
		if err := s.retireRoom(ctx, old.ID, requester); err != nil {
			return nil, err
		}
	case errors.Is(err, core.ErrRoomNotFound):
		// first room for this owner
	default:
		return nil, err
	}

	now := s.Now()
	room := &domain.Room{
		ID:           domain.RoomID(uuid.NewString()),
		Content:      content,
		OState:       domain.StateOK,
		PlayStatus:   domain.StatusPaused,
		SpeedRate:    domain.DefaultSpeedRate,
		ContentStamp: 0,
		OperateStamp: now,
		Operator:     "",
		CreateStamp:  now,
		Owner:        requester,
		Participants: []domain.Participant{},
	}
	if err := s.Store.Insert(ctx, room); err != nil {
		return nil, err
	}
	log.Info().Str("module", "app.service").Str("room", string(room.ID)).Str("owner", string(requester)).Msg("room created")
	snap := core.SnapshotOf(room)
	return &snap, nil
}

// retireRoom freezes the play-head of a superseded room, marks it deleted
// and clears membership, then tells its remaining listeners.
func (s *Service) retireRoom(ctx context.Context, id domain.RoomID, owner domain.ClientID) error {
	r, err := s.mutateLive(ctx, id, func(r *domain.Room) error {
		core.ProjectPause(r, "", s.Now())
		r.OState = domain.StateDeleted
		r.Participants = []domain.Participant{}
		return nil
	})
	if err != nil {
		// a racing CREATE already retired it
		if errors.Is(err, core.ErrRoomDeleted) || errors.Is(err, core.ErrRoomExpired) || errors.Is(err, core.ErrRoomNotFound) {
			return nil
		}
		return err
	}
	log.Info().Str("module", "app.service").Str("room", string(id)).Msg("room retired by new create")
	s.Notifier.NotifyRoom(id, owner, core.StatusOf(r))
	return nil
}

// Enter adds the caller to the room, or refreshes their entry in place when
// the same nonce is already a member. The returned snapshot always echoes the
// caller's guest id.
func (s *Service) Enter(ctx context.Context, roomID domain.RoomID, nickName string, requester domain.ClientID, ua string) (*core.RoomSnapshot, error) {
	var guestID domain.GuestID
	r, err := s.mutateLive(ctx, roomID, func(r *domain.Room) error {
		now := s.Now()
		if p, ok := r.FindParticipant(requester); ok {
			guestID = p.GuestID
			p.NickName = nickName
			p.EnterStamp = now
			p.HeartbeatStamp = now
			if ua != "" {
				p.UserAgent = ua
			}
			return nil
		}
		if len(r.Participants) >= domain.MaxParticipants {
			return core.ErrRoomFull
		}
		id, err := s.Guests.Allocate(r.GuestIDs())
		if err != nil {
			return err
		}
		guestID = id
		r.Participants = append(r.Participants, domain.NewParticipant(nickName, requester, id, ua, now))
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "app.service").Str("room", string(roomID)).Str("guest", string(guestID)).Msg("participant entered")
	snap := core.SnapshotOf(r)
	snap.GuestID = guestID
	return &snap, nil
}

// Heartbeat refreshes the caller's liveness stamp and returns the current
// snapshot, the polling-path source of truth.
func (s *Service) Heartbeat(ctx context.Context, roomID domain.RoomID, requester domain.ClientID) (*core.RoomSnapshot, error) {
	r, err := s.mutateLive(ctx, roomID, func(r *domain.Room) error {
		p, ok := r.FindParticipant(requester)
		if !ok {
			return core.ErrNotMember
		}
		p.HeartbeatStamp = s.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	snap := core.SnapshotOf(r)
	return &snap, nil
}

// Leave removes the caller. The sole remaining participant leaving freezes
// the play-head through the projector so the persisted position stays a
// faithful snapshot of where playback stopped.
func (s *Service) Leave(ctx context.Context, roomID domain.RoomID, requester domain.ClientID) error {
	var frozen *core.RoomStatus
	_, err := s.mutateLive(ctx, roomID, func(r *domain.Room) error {
		frozen = nil
		if len(r.Participants) == 0 {
			return nil
		}
		if _, ok := r.FindParticipant(requester); !ok {
			return core.ErrNotMember
		}
		if len(r.Participants) == 1 {
			wasPlaying := r.PlayStatus == domain.StatusPlaying
			core.ProjectPause(r, "", s.Now())
			r.Participants = []domain.Participant{}
			if wasPlaying {
				st := core.StatusOf(r)
				frozen = &st
			}
			return nil
		}
		r.RemoveParticipant(requester)
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().Str("module", "app.service").Str("room", string(roomID)).Str("client", string(requester)).Msg("participant left")
	if frozen != nil {
		s.Notifier.NotifyRoom(roomID, requester, *frozen)
	}
	return nil
}

// PlayerState is a locally-driven transport change reported by a client.
type PlayerState struct {
	PlayStatus   domain.PlayStatus
	SpeedRate    string
	ContentStamp int64
}

// SetPlayer applies a participant's transport change as the new authoritative
// state and fans the resulting status out to everyone else in the room.
func (s *Service) SetPlayer(ctx context.Context, roomID domain.RoomID, caller domain.ClientID, st PlayerState) error {
	if st.PlayStatus != domain.StatusPlaying && st.PlayStatus != domain.StatusPaused {
		return fmt.Errorf("%w: bad playStatus %q", core.ErrBadRequest, st.PlayStatus)
	}
	r, err := s.mutateLive(ctx, roomID, func(r *domain.Room) error {
		p, ok := r.FindParticipant(caller)
		if !ok {
			return core.ErrNotMember
		}
		r.PlayStatus = st.PlayStatus
		if st.SpeedRate != "" {
			r.SpeedRate = st.SpeedRate
		}
		r.ContentStamp = st.ContentStamp
		r.OperateStamp = s.Now()
		r.Operator = string(p.GuestID)
		p.HeartbeatStamp = r.OperateStamp
		return nil
	})
	if err != nil {
		return err
	}
	log.Debug().Str("module", "app.service").Str("room", string(roomID)).Str("status", string(st.PlayStatus)).Int64("contentStamp", st.ContentStamp).Msg("player state set")
	s.Notifier.NotifyRoom(roomID, caller, core.StatusOf(r))
	return nil
}

// loadLive fetches a room and rejects terminal states. EXPIRED and DELETED
// surface as distinct errors since one looks recoverable to a user and the
// other does not.
func (s *Service) loadLive(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	r, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch r.OState {
	case domain.StateExpired:
		return nil, core.ErrRoomExpired
	case domain.StateDeleted:
		return nil, core.ErrRoomDeleted
	}
	return r, nil
}

// mutateLive runs a read-modify-write cycle against one room, retrying a
// bounded number of times when another handler wins the version race.
func (s *Service) mutateLive(ctx context.Context, id domain.RoomID, fn func(*domain.Room) error) (*domain.Room, error) {
	var lastErr error
	for attempt := 0; attempt < mutateAttempts; attempt++ {
		r, err := s.loadLive(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(r); err != nil {
			return nil, err
		}
		if err := s.Store.Update(ctx, r); err != nil {
			if errors.Is(err, core.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return r, nil
	}
	return nil, lastErr
}
