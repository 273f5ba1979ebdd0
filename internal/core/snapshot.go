package core

import "github.com/AydenGen/podcast-together/internal/domain"

// ParticipantView is the read-only participant shape exposed to clients.
// Nonce and UserAgent stay internal.
type ParticipantView struct {
	NickName       string         `json:"nickName"`
	GuestID        domain.GuestID `json:"guestId"`
	HeartbeatStamp int64          `json:"heartbeatStamp"`
	EnterStamp     int64          `json:"enterStamp"`
}

// RoomSnapshot is the room's public view returned by the operate endpoint.
// OperateStamp doubles as the ordering token clients compare snapshots by.
type RoomSnapshot struct {
	RoomID       domain.RoomID      `json:"roomId"`
	Content      domain.ContentData `json:"content"`
	PlayStatus   domain.PlayStatus  `json:"playStatus"`
	SpeedRate    string             `json:"speedRate"`
	Operator     string             `json:"operator"`
	ContentStamp int64              `json:"contentStamp"`
	OperateStamp int64              `json:"operateStamp"`
	Participants []ParticipantView  `json:"participants"`
	GuestID      domain.GuestID     `json:"guestId,omitempty"`
}

// RoomStatus is the compact transport-state view fanned out over the push
// channel; it omits content and membership.
type RoomStatus struct {
	RoomID       domain.RoomID     `json:"roomId"`
	PlayStatus   domain.PlayStatus `json:"playStatus"`
	SpeedRate    string            `json:"speedRate"`
	Operator     string            `json:"operator"`
	ContentStamp int64             `json:"contentStamp"`
	OperateStamp int64             `json:"operateStamp"`
}

// SnapshotOf reduces a room to its public view.
func SnapshotOf(r *domain.Room) RoomSnapshot {
	views := make([]ParticipantView, 0, len(r.Participants))
	for i := range r.Participants {
		p := &r.Participants[i]
		views = append(views, ParticipantView{
			NickName:       p.NickName,
			GuestID:        p.GuestID,
			HeartbeatStamp: p.HeartbeatStamp,
			EnterStamp:     p.EnterStamp,
		})
	}
	return RoomSnapshot{
		RoomID:       r.ID,
		Content:      r.Content,
		PlayStatus:   r.PlayStatus,
		SpeedRate:    r.SpeedRate,
		Operator:     r.Operator,
		ContentStamp: r.ContentStamp,
		OperateStamp: r.OperateStamp,
		Participants: views,
	}
}

// StatusOf reduces a room to its push-channel status view.
func StatusOf(r *domain.Room) RoomStatus {
	return RoomStatus{
		RoomID:       r.ID,
		PlayStatus:   r.PlayStatus,
		SpeedRate:    r.SpeedRate,
		Operator:     r.Operator,
		ContentStamp: r.ContentStamp,
		OperateStamp: r.OperateStamp,
	}
}

// Status converts a full snapshot into the compact status view so the
// polling path and the push path feed one reconciliation routine.
func (s *RoomSnapshot) Status() RoomStatus {
	return RoomStatus{
		RoomID:       s.RoomID,
		PlayStatus:   s.PlayStatus,
		SpeedRate:    s.SpeedRate,
		Operator:     s.Operator,
		ContentStamp: s.ContentStamp,
		OperateStamp: s.OperateStamp,
	}
}
