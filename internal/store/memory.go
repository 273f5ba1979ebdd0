// Package store provides Room State Store implementations. Both serialize
// mutations per room through an optimistic version stamp: Update fails with
// core.ErrVersionConflict when the record changed since it was read.
package store

import (
	"context"
	"sync"

	"github.com/AydenGen/podcast-together/internal/core"
	"github.com/AydenGen/podcast-together/internal/domain"
)

// Memory is a threadsafe in-memory room store. It hands out copies, never
// aliases of its own records.
type Memory struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*domain.Room
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[domain.RoomID]*domain.Room)}
}

func (m *Memory) Get(_ context.Context, id domain.RoomID) (*domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, core.ErrRoomNotFound
	}
	return cloneRoom(r), nil
}

func (m *Memory) Insert(_ context.Context, r *domain.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := cloneRoom(r)
	cp.Version = 1
	m.rooms[cp.ID] = cp
	r.Version = cp.Version
	return nil
}

func (m *Memory) Update(_ context.Context, r *domain.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rooms[r.ID]
	if !ok {
		return core.ErrRoomNotFound
	}
	if cur.Version != r.Version {
		return core.ErrVersionConflict
	}
	cp := cloneRoom(r)
	cp.Version++
	m.rooms[cp.ID] = cp
	r.Version = cp.Version
	return nil
}

func (m *Memory) FindOwnedOK(_ context.Context, owner domain.ClientID) (*domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rooms {
		if r.Owner == owner && r.OState == domain.StateOK {
			return cloneRoom(r), nil
		}
	}
	return nil, core.ErrRoomNotFound
}

func (m *Memory) ExpireBefore(_ context.Context, cutoff int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rooms {
		if r.OState == domain.StateOK && r.CreateStamp < cutoff {
			r.OState = domain.StateExpired
			r.Version++
			n++
		}
	}
	return n, nil
}

func cloneRoom(r *domain.Room) *domain.Room {
	cp := *r
	cp.Participants = make([]domain.Participant, len(r.Participants))
	copy(cp.Participants, r.Participants)
	return &cp
}
