package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/AydenGen/podcast-together/internal/core"
	"github.com/AydenGen/podcast-together/internal/domain"
)

const (
	roomKeyPrefix  = "pt:room:"
	ownerKeyPrefix = "pt:owner:"
	createdZSetKey = "pt:rooms:created"
)

// Redis stores room records as JSON values. The optimistic version check
// rides on WATCH: a concurrent write to the same key aborts the transaction
// and surfaces as core.ErrVersionConflict.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func roomKey(id domain.RoomID) string       { return roomKeyPrefix + string(id) }
func ownerKey(owner domain.ClientID) string { return ownerKeyPrefix + string(owner) }

func (s *Redis) Get(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	raw, err := s.rdb.Get(ctx, roomKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get room: %w", err)
	}
	return decodeRoom(raw)
}

func (s *Redis) Insert(ctx context.Context, r *domain.Room) error {
	r.Version = 1
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: encode room: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, roomKey(r.ID), raw, 0)
		pipe.ZAdd(ctx, createdZSetKey, redis.Z{Score: float64(r.CreateStamp), Member: string(r.ID)})
		if r.OState == domain.StateOK {
			pipe.Set(ctx, ownerKey(r.Owner), string(r.ID), 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: insert room: %w", err)
	}
	return nil
}

func (s *Redis) Update(ctx context.Context, r *domain.Room) error {
	key := roomKey(r.ID)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return core.ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		cur, err := decodeRoom(raw)
		if err != nil {
			return err
		}
		if cur.Version != r.Version {
			return core.ErrVersionConflict
		}
		next := *r
		next.Version++
		enc, err := json.Marshal(&next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, enc, 0)
			if next.OState != domain.StateOK {
				pipe.Del(ctx, ownerKey(next.Owner))
			}
			return nil
		})
		if err == nil {
			r.Version = next.Version
		}
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return core.ErrVersionConflict
	}
	return err
}

func (s *Redis) FindOwnedOK(ctx context.Context, owner domain.ClientID) (*domain.Room, error) {
	id, err := s.rdb.Get(ctx, ownerKey(owner)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: owner index: %w", err)
	}
	r, err := s.Get(ctx, domain.RoomID(id))
	if err != nil {
		return nil, err
	}
	if r.OState != domain.StateOK {
		// stale index entry, treat as no live room
		return nil, core.ErrRoomNotFound
	}
	return r, nil
}

func (s *Redis) ExpireBefore(ctx context.Context, cutoff int64) (int, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, createdZSetKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff-1),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("store: created index: %w", err)
	}
	n := 0
	for _, id := range ids {
		r, err := s.Get(ctx, domain.RoomID(id))
		if errors.Is(err, core.ErrRoomNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		if r.OState != domain.StateOK {
			continue
		}
		r.OState = domain.StateExpired
		if err := s.Update(ctx, r); err != nil {
			if errors.Is(err, core.ErrVersionConflict) {
				log.Debug().Str("module", "store.redis").Str("room", id).Msg("expiry lost race, skipping")
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

func decodeRoom(raw []byte) (*domain.Room, error) {
	var r domain.Room
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("store: decode room: %w", err)
	}
	return &r, nil
}
