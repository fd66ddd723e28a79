// Package session hosts the live mode of one widget: an explicitly
// user-gated state machine that applies streamed UI updates and forwards
// user events, both subject to the widget's declared allow-lists.
//
// A Session is owned by exactly one goroutine; all operations are
// synchronous and in-order. Denials are data (Result with a code), never
// error control flow.
package session

import (
	"encoding/json"
	"log"

	"github.com/google/uuid"

	"emberhost.ai/internal/manifest"
	"emberhost.ai/internal/protocol"
)

type Status int

const (
	StatusIdle Status = iota
	StatusLive
)

// Result is the structured outcome of every operation. Callers branch on
// Code, never on error types.
type Result struct {
	OK      bool
	Code    string
	Message string
}

func ok() Result { return Result{OK: true} }

func deny(code, msg string) Result { return Result{OK: false, Code: code, Message: msg} }

// SurfaceState is one logical UI surface built incrementally by applied
// messages. RootID stays empty until a beginRendering marks the surface
// renderable.
type SurfaceState struct {
	RootID     string
	Renderable bool
	Components map[string]protocol.ComponentNode
}

// Message is the closed set of live-protocol updates a session applies.
// Anything outside these variants is rejected by construction.
type Message interface{ isMessage() }

type SurfaceUpdate struct {
	SurfaceID  string
	Components []protocol.ComponentNode
}

type BeginRendering struct {
	SurfaceID string
	Root      string
}

func (SurfaceUpdate) isMessage()  {}
func (BeginRendering) isMessage() {}

// EventSink receives events forwarded to the remote party. The transport
// layer implements it; tests stub it.
type EventSink interface {
	SendEvent(msg protocol.EventMsg) error
}

// AuditLogger records session activity. Optional; implemented in
// internal/persistence.
type AuditLogger interface {
	WriteSessionAudit(entry AuditEntry) error
}

type AuditEntry struct {
	SessionID string `json:"session_id"`
	WidgetID  string `json:"widget_id"`
	Op        string `json:"op"` // "start", "surface_update", "begin_rendering", "dispatch_event"
	SurfaceID string `json:"surface_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Accepted  bool   `json:"accepted"`
	Code      string `json:"code,omitempty"`
}

// Session owns the live state of one widget instance. Discard the object
// to reset; there is no resume.
type Session struct {
	id     string
	widget manifest.Widget
	status Status

	surfaces map[string]*SurfaceState

	sink  EventSink
	audit AuditLogger
	log   *log.Logger
}

func New(widget manifest.Widget, sink EventSink, logger *log.Logger) *Session {
	return &Session{
		id:       uuid.NewString(),
		widget:   widget,
		status:   StatusIdle,
		surfaces: map[string]*SurfaceState{},
		sink:     sink,
		log:      logger,
	}
}

func (s *Session) SetAuditLogger(l AuditLogger) { s.audit = l }

func (s *Session) ID() string              { return s.id }
func (s *Session) Widget() manifest.Widget { return s.widget }

func (s *Session) IsLive() bool { return s.status == StatusLive }

// IsLiveBadgeVisible is defined to be exactly IsLive; there is no separate
// hidden state for the indicator.
func (s *Session) IsLiveBadgeVisible() bool { return s.IsLive() }

// Start transitions Idle -> Live only on an explicit user action. The host
// never self-promotes a widget to live status.
func (s *Session) Start(userInitiated bool) Result {
	if !userInitiated {
		return s.recordStart(deny(protocol.CodeUserGateRequired, "live session requires a user-initiated start"))
	}
	s.status = StatusLive
	return s.recordStart(ok())
}

func (s *Session) recordStart(r Result) Result {
	s.writeAudit(AuditEntry{Op: "start", Accepted: r.OK, Code: r.Code})
	return r
}

// Apply routes one live-protocol message. Callable only while Live.
func (s *Session) Apply(msg Message) Result {
	switch m := msg.(type) {
	case SurfaceUpdate:
		r := s.applySurfaceUpdate(m)
		s.writeAudit(AuditEntry{Op: "surface_update", SurfaceID: m.SurfaceID, Accepted: r.OK, Code: r.Code})
		return r
	case BeginRendering:
		r := s.applyBeginRendering(m)
		s.writeAudit(AuditEntry{Op: "begin_rendering", SurfaceID: m.SurfaceID, Accepted: r.OK, Code: r.Code})
		return r
	default:
		return deny(protocol.CodeProtoBadRequest, "unknown message kind")
	}
}

func (s *Session) applySurfaceUpdate(m SurfaceUpdate) Result {
	if r := s.gate(m.SurfaceID); !r.OK {
		return r
	}
	st := s.ensureSurface(m.SurfaceID)
	for _, c := range m.Components {
		if c.ID == "" {
			return deny(protocol.CodeBadRequest, "component without id")
		}
		st.Components[c.ID] = c
	}
	return ok()
}

func (s *Session) applyBeginRendering(m BeginRendering) Result {
	if r := s.gate(m.SurfaceID); !r.OK {
		return r
	}
	if m.Root == "" {
		return deny(protocol.CodeBadRequest, "missing root")
	}
	st := s.ensureSurface(m.SurfaceID)
	st.RootID = m.Root
	st.Renderable = true
	return ok()
}

// gate applies the two checks shared by all update messages: session must
// be live, and the surface must be in the widget's contract.
func (s *Session) gate(surfaceID string) Result {
	if s.status != StatusLive {
		return deny(protocol.CodeSessionNotLive, "session is not live")
	}
	if !s.widget.SurfaceAllowed(surfaceID) {
		return deny(protocol.CodeSurfaceNotAllowed, "surface not in widget contract: "+surfaceID)
	}
	return ok()
}

func (s *Session) ensureSurface(surfaceID string) *SurfaceState {
	st := s.surfaces[surfaceID]
	if st == nil {
		st = &SurfaceState{Components: map[string]protocol.ComponentNode{}}
		s.surfaces[surfaceID] = st
	}
	return st
}

// DispatchEvent forwards a user-originated event to the remote party after
// the type allow-list check. The payload is opaque; nothing beyond the
// type is inspected.
func (s *Session) DispatchEvent(eventType string, payload json.RawMessage) Result {
	r := s.dispatchEvent(eventType, payload)
	s.writeAudit(AuditEntry{Op: "dispatch_event", EventType: eventType, Accepted: r.OK, Code: r.Code})
	return r
}

func (s *Session) dispatchEvent(eventType string, payload json.RawMessage) Result {
	if s.status != StatusLive {
		return deny(protocol.CodeSessionNotLive, "session is not live")
	}
	if !s.widget.EventAllowed(eventType) {
		return deny(protocol.CodeEventNotAllowed, "event type not in widget contract: "+eventType)
	}
	if s.sink != nil {
		err := s.sink.SendEvent(protocol.EventMsg{
			Type:            protocol.TypeEvent,
			ProtocolVersion: protocol.Version,
			SessionID:       s.id,
			Event:           protocol.EventBody{Type: eventType},
			Payload:         payload,
		})
		if err != nil {
			if s.log != nil {
				s.log.Printf("session %s: event sink: %v", s.id, err)
			}
			return deny(protocol.CodeInternal, "event delivery failed")
		}
	}
	return ok()
}

// Surface returns a copy of the current state for the id, or false if no
// message has targeted it yet.
func (s *Session) Surface(surfaceID string) (SurfaceState, bool) {
	st := s.surfaces[surfaceID]
	if st == nil {
		return SurfaceState{}, false
	}
	out := SurfaceState{
		RootID:     st.RootID,
		Renderable: st.Renderable,
		Components: make(map[string]protocol.ComponentNode, len(st.Components)),
	}
	for id, c := range st.Components {
		out.Components[id] = c
	}
	return out, true
}

func (s *Session) writeAudit(e AuditEntry) {
	if s.audit == nil {
		return
	}
	e.SessionID = s.id
	e.WidgetID = s.widget.ID
	_ = s.audit.WriteSessionAudit(e)
}
