// Package ws carries the live session protocol between the host and the
// remote widget party. One connection hosts one session; every inbound
// update message is answered with an ACK carrying the structured result.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"emberhost.ai/internal/manifest"
	"emberhost.ai/internal/protocol"
	"emberhost.ai/internal/session"
	"emberhost.ai/internal/sim/fire"
)

// WidgetDirectory resolves a widget id from the HELLO against the widgets
// the host has admitted. The resolver pipeline populates it.
type WidgetDirectory interface {
	Widget(id string) (manifest.Widget, bool)
}

type Server struct {
	widgets WidgetDirectory
	audit   session.AuditLogger
	log     *log.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client // keyed by session id
}

type client struct {
	sess *session.Session
	out  chan []byte

	mu sync.Mutex // serializes session access between reader and host calls
}

func NewServer(widgets WidgetDirectory, audit session.AuditLogger, logger *log.Logger) *Server {
	return &Server{
		widgets: widgets,
		audit:   audit,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: map[string]*client{},
	}
}

// StartSession is the host-side user gate. Only the embedding application
// calls it, never the remote party.
func (s *Server) StartSession(sessionID string, userInitiated bool) (session.Result, bool) {
	c := s.client(sessionID)
	if c == nil {
		return session.Result{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.Start(userInitiated), true
}

// DispatchEvent forwards a user-originated event into the session. The ws
// writer delivers it to the remote party if the allow-list admits it.
func (s *Server) DispatchEvent(sessionID, eventType string, payload json.RawMessage) (session.Result, bool) {
	c := s.client(sessionID)
	if c == nil {
		return session.Result{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.DispatchEvent(eventType, payload), true
}

// Surface exposes the rendered state of a live session surface to the
// embedding application.
func (s *Server) Surface(sessionID, surfaceID string) (session.SurfaceState, bool) {
	c := s.client(sessionID)
	if c == nil {
		return session.SurfaceState{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.Surface(surfaceID)
}

// SessionLive reports the live badge state for a session id.
func (s *Server) SessionLive(sessionID string) (bool, bool) {
	c := s.client(sessionID)
	if c == nil {
		return false, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.IsLiveBadgeVisible(), true
}

func (s *Server) client(sessionID string) *client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients[sessionID]
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	s.clients[c.sess.ID()] = c
	s.mu.Unlock()
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c.sess.ID())
	s.mu.Unlock()
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := s.handshake(conn)
		if c == nil {
			return
		}
		s.register(c)
		defer s.unregister(c)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-c.out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				return
			}
			s.dispatch(c, msg)
		}
	}
}

// dispatch applies one inbound message to the session and queues the ACK.
// Malformed or unknown messages get a rejecting ACK instead of a silent
// drop; the session is never reached for those.
func (s *Server) dispatch(c *client, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.ProtocolVersion != protocol.Version {
		c.send(ackFor(c, "", session.Result{Code: protocol.CodeProtoBadRequest, Message: "malformed message"}))
		return
	}

	switch base.Type {
	case protocol.TypeSurfaceUpdate:
		var m protocol.SurfaceUpdateMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			c.send(ackFor(c, "", session.Result{Code: protocol.CodeProtoBadRequest, Message: "malformed surfaceUpdate"}))
			return
		}
		c.mu.Lock()
		r := c.sess.Apply(session.SurfaceUpdate{SurfaceID: m.SurfaceID, Components: m.Components})
		c.mu.Unlock()
		c.send(ackFor(c, m.MsgID, r))
	case protocol.TypeBeginRendering:
		var m protocol.BeginRenderingMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			c.send(ackFor(c, "", session.Result{Code: protocol.CodeProtoBadRequest, Message: "malformed beginRendering"}))
			return
		}
		c.mu.Lock()
		r := c.sess.Apply(session.BeginRendering{SurfaceID: m.SurfaceID, Root: m.Root})
		c.mu.Unlock()
		c.send(ackFor(c, m.MsgID, r))
	default:
		c.send(ackFor(c, "", session.Result{Code: protocol.CodeProtoBadRequest, Message: "unknown message type: " + base.Type}))
	}
}

func ackFor(c *client, msgID string, r session.Result) protocol.AckMsg {
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		SessionID:       c.sess.ID(),
		AckFor:          msgID,
		Accepted:        r.OK,
		Code:            r.Code,
		Message:         r.Message,
	}
}

// send queues an outbound message, dropping it if the writer is wedged.
func (c *client) send(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.out <- b:
	default:
	}
}

// chanSink adapts the outbound channel to the session's event sink.
type chanSink struct {
	c *client
}

func (s chanSink) SendEvent(msg protocol.EventMsg) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case s.c.out <- b:
		return nil
	default:
		return errSendQueueFull
	}
}

var errSendQueueFull = &queueFullError{}

type queueFullError struct{}

func (*queueFullError) Error() string { return "event send queue full" }

func (s *Server) handshake(conn *websocket.Conn) *client {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closePolicy(conn, "expected HELLO")
		return nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closePolicy(conn, "bad protocol_version")
		return nil
	}

	widget, found := s.widgets.Widget(hello.WidgetID)
	if !found {
		closePolicy(conn, "unknown widget: "+hello.WidgetID)
		return nil
	}

	c := &client{out: make(chan []byte, 16)}
	c.sess = session.New(widget, chanSink{c}, s.log)
	if s.audit != nil {
		c.sess.SetAuditLogger(s.audit)
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       c.sess.ID(),
		WidgetID:        widget.ID,
		SurfaceIDs:      widget.SurfaceContract.SurfaceIDs,
		EventTypes:      widget.EventTypes(),
		PresetsDigest:   fire.PresetsDigest(),
		Live:            false, // sessions always begin idle
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	return c
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
