package core

import "github.com/AydenGen/podcast-together/internal/domain"

// Push-channel message contracts, shared by the server hub and the client
// engine transport.

const (
	ResponseConnected = "CONNECTED"
	ResponseNewStatus = "NEW_STATUS"
)

const (
	OpFirstSend = "FIRST_SEND"
	OpSetPlayer = "SET_PLAYER"
)

// PushEnvelope is a server-to-client push message.
type PushEnvelope struct {
	ResponseType string      `json:"responseType"`
	RoomStatus   *RoomStatus `json:"roomStatus,omitempty"`
}

// PushCommand is a client-to-server push message: FIRST_SEND announces
// presence after connect or reconnect, SET_PLAYER reports a locally-driven
// transport change.
type PushCommand struct {
	OperateType  string            `json:"operateType"`
	RoomID       domain.RoomID     `json:"roomId"`
	CallerID     domain.ClientID   `json:"callerId"`
	ClientStamp  int64             `json:"clientStamp"`
	PlayStatus   domain.PlayStatus `json:"playStatus,omitempty"`
	SpeedRate    string            `json:"speedRate,omitempty"`
	ContentStamp int64             `json:"contentStamp,omitempty"`
}
