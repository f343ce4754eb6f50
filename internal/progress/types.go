package progress

import "github.com/kapu/phantom-panel/internal/service/conversation"

const envelopeType = "panel.event"

// Envelope is the frame written to the progress socket.
type Envelope struct {
	Type  string             `json:"type"`
	Event conversation.Event `json:"event"`
}

type ConnState string

const (
	StateConnecting   ConnState = "CONNECTING"
	StateConnected    ConnState = "CONNECTED"
	StateDisconnected ConnState = "DISCONNECTED"
	StateReconnecting ConnState = "RECONNECTING"
	StateFailed       ConnState = "FAILED"
)

func (s ConnState) String() string {
	return string(s)
}
