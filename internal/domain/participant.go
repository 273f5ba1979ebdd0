package domain

// MaxParticipants caps the number of concurrent listeners in one room.
const MaxParticipants = 15

// Participant represents one device bound to a room. Nonce is the identity
// key for membership lookups; GuestID is what other listeners see.
type Participant struct {
	NickName       string   `json:"nickName"`
	UserAgent      string   `json:"userAgent,omitempty"`
	Nonce          ClientID `json:"nonce"`
	GuestID        GuestID  `json:"guestId"`
	EnterStamp     int64    `json:"enterStamp"`
	HeartbeatStamp int64    `json:"heartbeatStamp"`
}

// NewParticipant avoids raw literals in the service layer and keeps
// construction obvious.
func NewParticipant(nickName string, nonce ClientID, guestID GuestID, ua string, now int64) Participant {
	return Participant{
		NickName:       nickName,
		UserAgent:      ua,
		Nonce:          nonce,
		GuestID:        guestID,
		EnterStamp:     now,
		HeartbeatStamp: now,
	}
}
