// Package domain contains entity types without lifecycle logic, just meta-data.
package domain

import "strconv"

type (
	RoomID   string
	ClientID string // stable per-device identifier, carried as participant nonce
	GuestID  string // room-local public display id
)

// OperationalState is the room lifecycle state. Only StateOK accepts
// further operations; the other two are terminal.
type OperationalState string

const (
	StateOK      OperationalState = "OK"
	StateExpired OperationalState = "EXPIRED"
	StateDeleted OperationalState = "DELETED"
)

type PlayStatus string

const (
	StatusPlaying PlayStatus = "PLAYING"
	StatusPaused  PlayStatus = "PAUSED"
)

// DefaultSpeedRate is the only rate the protocol currently carries.
// The field stays a string on the wire, reserved for multi-speed support.
const DefaultSpeedRate = "1"

// Room is the authoritative shared playback session. ContentStamp is the
// virtual play-head position in milliseconds as of OperateStamp; while
// PLAYING the true position is ContentStamp + (now-OperateStamp)*speed.
type Room struct {
	ID           RoomID           `json:"id"`
	Content      ContentData      `json:"content"`
	OState       OperationalState `json:"oState"`
	PlayStatus   PlayStatus       `json:"playStatus"`
	SpeedRate    string           `json:"speedRate"`
	ContentStamp int64            `json:"contentStamp"`
	OperateStamp int64            `json:"operateStamp"`
	Operator     string           `json:"operator"`
	CreateStamp  int64            `json:"createStamp"`
	Owner        ClientID         `json:"owner"`
	Version      int64            `json:"version"`
	Participants []Participant    `json:"participants"`
}

// SpeedFactor parses SpeedRate, falling back to 1 for anything unparsable.
func (r *Room) SpeedFactor() float64 {
	f, err := strconv.ParseFloat(r.SpeedRate, 64)
	if err != nil || f <= 0 {
		return 1
	}
	return f
}

// FindParticipant looks a participant up by its identity key.
func (r *Room) FindParticipant(nonce ClientID) (*Participant, bool) {
	for i := range r.Participants {
		if r.Participants[i].Nonce == nonce {
			return &r.Participants[i], true
		}
	}
	return nil, false
}

// RemoveParticipant drops the entry with the given nonce, keeping join order.
func (r *Room) RemoveParticipant(nonce ClientID) bool {
	for i := range r.Participants {
		if r.Participants[i].Nonce == nonce {
			r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
			return true
		}
	}
	return false
}

// GuestIDs returns the display ids currently taken in the room.
func (r *Room) GuestIDs() []GuestID {
	ids := make([]GuestID, 0, len(r.Participants))
	for i := range r.Participants {
		ids = append(ids, r.Participants[i].GuestID)
	}
	return ids
}
