package protocol

import "encoding/json"

// HELLO (remote party -> host)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	WidgetID        string `json:"widget_id"`
	PartyName       string `json:"party_name,omitempty"`
}

// WELCOME (host -> remote party). Echoes the widget's declared contract so
// the remote side can detect drift before streaming anything.
type WelcomeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	SessionID       string   `json:"session_id"`
	WidgetID        string   `json:"widget_id"`
	SurfaceIDs      []string `json:"surface_ids"`
	EventTypes      []string `json:"event_types"`
	PresetsDigest   string   `json:"presets_digest,omitempty"`
	Live            bool     `json:"live"`
}

// SURFACE_UPDATE (remote party -> host): merge a component set into one
// surface. Component identity is the map key; insertion order is irrelevant.
type SurfaceUpdateMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	MsgID           string          `json:"msg_id,omitempty"`
	SurfaceID       string          `json:"surface_id"`
	Components      []ComponentNode `json:"components"`
}

// BEGIN_RENDERING (remote party -> host): mark a surface renderable from
// the given root component.
type BeginRenderingMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	MsgID           string `json:"msg_id,omitempty"`
	SurfaceID       string `json:"surface_id"`
	Root            string `json:"root"`
}

// ComponentNode is one node of a streamed widget tree. Props are opaque to
// the host; only the identity and child wiring matter here.
type ComponentNode struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	Props    json.RawMessage `json:"props,omitempty"`
	Children []string        `json:"children,omitempty"`
}

// EVENT (host -> remote party): a user-originated event forwarded after the
// type allow-list check. Payload content is never inspected by the host.
type EventMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	SessionID       string          `json:"session_id,omitempty"`
	Event           EventBody       `json:"event"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

type EventBody struct {
	Type string `json:"type"`
}

// ACK (host -> remote party): the structured result for every inbound
// message. Denials carry one of the codes in errors.go.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
}
