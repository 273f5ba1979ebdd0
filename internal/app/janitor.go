package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AydenGen/podcast-together/internal/core"
)

// Janitor sweeps rooms past their lifetime into EXPIRED. The operation
// handlers check EXPIRED but never set it; expiry is this component's job.
type Janitor struct {
	Store  core.RoomStore
	TTL    time.Duration
	Period time.Duration
	Now    func() int64
}

func NewJanitor(store core.RoomStore, ttl, period time.Duration) *Janitor {
	return &Janitor{
		Store:  store,
		TTL:    ttl,
		Period: period,
		Now:    func() int64 { return time.Now().UnixMilli() },
	}
}

// Run blocks until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	t := time.NewTicker(j.Period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cutoff := j.Now() - j.TTL.Milliseconds()
			n, err := j.Store.ExpireBefore(ctx, cutoff)
			if err != nil {
				log.Error().Err(err).Str("module", "app.janitor").Msg("expiry sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Str("module", "app.janitor").Int("rooms", n).Msg("rooms expired")
			}
		}
	}
}
