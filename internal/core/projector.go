package core

import "github.com/AydenGen/podcast-together/internal/domain"

// ProjectPause freezes a room's virtual play-head. The server never observes
// the live position directly; the best proxy for where playback was when it
// stopped is the most recent liveness signal from any participant,
// extrapolated linearly from the last anchor at the configured speed.
//
// No-op when the room is already paused, so freezing is idempotent.
func ProjectPause(r *domain.Room, operator string, now int64) {
	if r.PlayStatus == domain.StatusPaused {
		return
	}
	lastHeartbeat := r.OperateStamp
	for i := range r.Participants {
		if hb := r.Participants[i].HeartbeatStamp; hb > lastHeartbeat {
			lastHeartbeat = hb
		}
	}
	elapsed := lastHeartbeat - r.OperateStamp
	r.ContentStamp += int64(float64(elapsed) * r.SpeedFactor())
	r.PlayStatus = domain.StatusPaused
	r.OperateStamp = now
	r.Operator = operator
}

// PositionAt computes the virtual play-head in milliseconds at the given
// instant. A paused head is frozen at contentStamp exactly.
func PositionAt(status domain.PlayStatus, contentStamp, operateStamp int64, speed float64, now int64) int64 {
	if status != domain.StatusPlaying {
		return contentStamp
	}
	return contentStamp + int64(float64(now-operateStamp)*speed)
}
