package client

import "github.com/AydenGen/podcast-together/internal/domain"

// PlayerEvent is a transport-change callback from the local playback engine.
// These events are the only trigger for reporting a local change upstream.
type PlayerEvent int

const (
	// EventReady fires once the engine has enough data to play. No
	// reconciliation touches the player before it.
	EventReady PlayerEvent = iota
	EventSeeked
	EventPlaying
	EventPaused
	EventRateChange
)

// Player is the capability surface of the local playback engine. Positions
// and durations are milliseconds; Duration returns 0 until the source
// metadata is parsed.
type Player interface {
	Position() int64
	Seek(ms int64)
	Play() error
	Pause()
	Rate() float64
	SetRate(rate float64)
	Duration() int64
	SetMuted(muted bool)
	Events() <-chan PlayerEvent
	Close()
}

// PlayerFactory builds a player for a room's content descriptor.
type PlayerFactory func(content domain.ContentData) (Player, error)
