package protocol

import "encoding/json"

const Version = "0.3"

// Message types.
const (
	TypeHello          = "HELLO"
	TypeWelcome        = "WELCOME"
	TypeSurfaceUpdate  = "SURFACE_UPDATE"
	TypeBeginRendering = "BEGIN_RENDERING"
	TypeEvent          = "EVENT"
	TypeAck            = "ACK"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
