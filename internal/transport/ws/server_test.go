package ws

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"emberhost.ai/internal/manifest"
	"emberhost.ai/internal/protocol"
)

type staticDirectory map[string]manifest.Widget

func (d staticDirectory) Widget(id string) (manifest.Widget, bool) {
	w, found := d[id]
	return w, found
}

func testDirectory() staticDirectory {
	return staticDirectory{
		"fire": {
			ID: "fire",
			SurfaceContract: manifest.SurfaceContract{
				Mode:       "single",
				SurfaceIDs: []string{"main"},
			},
			Events: []manifest.Event{{Type: "fire.applySettings"}},
		},
	}
}

func startTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(testDirectory(), nil, log.New(io.Discard, "", 0))
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/session", srv.Handler())
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/session"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readMsg(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return b
}

func handshakeFire(t *testing.T, conn *websocket.Conn) protocol.WelcomeMsg {
	t.Helper()
	sendJSON(t, conn, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		WidgetID:        "fire",
		PartyName:       "test-party",
	})
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readMsg(t, conn), &welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	if welcome.Type != protocol.TypeWelcome {
		t.Fatalf("expected WELCOME, got %s", welcome.Type)
	}
	return welcome
}

func readAck(t *testing.T, conn *websocket.Conn) protocol.AckMsg {
	t.Helper()
	var ack protocol.AckMsg
	if err := json.Unmarshal(readMsg(t, conn), &ack); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if ack.Type != protocol.TypeAck {
		t.Fatalf("expected ACK, got %s", ack.Type)
	}
	return ack
}

func TestHandshake_WelcomeEchoesContract(t *testing.T) {
	_, ts := startTestServer(t)
	conn := dial(t, ts)

	welcome := handshakeFire(t, conn)
	if welcome.SessionID == "" {
		t.Fatalf("welcome missing session id")
	}
	if welcome.WidgetID != "fire" || welcome.Live {
		t.Fatalf("welcome = %+v", welcome)
	}
	if len(welcome.SurfaceIDs) != 1 || welcome.SurfaceIDs[0] != "main" {
		t.Fatalf("surface ids = %v", welcome.SurfaceIDs)
	}
	if len(welcome.EventTypes) != 1 || welcome.EventTypes[0] != "fire.applySettings" {
		t.Fatalf("event types = %v", welcome.EventTypes)
	}
	if welcome.PresetsDigest == "" {
		t.Fatalf("welcome missing presets digest")
	}
}

func TestHandshake_RejectsBadVersion(t *testing.T) {
	_, ts := startTestServer(t)
	conn := dial(t, ts)

	sendJSON(t, conn, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: "0.0",
		WidgetID:        "fire",
	})
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected close on version mismatch")
	}
}

func TestHandshake_RejectsUnknownWidget(t *testing.T) {
	_, ts := startTestServer(t)
	conn := dial(t, ts)

	sendJSON(t, conn, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		WidgetID:        "ghost",
	})
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected close on unknown widget")
	}
}

func TestUpdate_BeforeStartIsDenied(t *testing.T) {
	_, ts := startTestServer(t)
	conn := dial(t, ts)
	handshakeFire(t, conn)

	sendJSON(t, conn, protocol.SurfaceUpdateMsg{
		Type:            protocol.TypeSurfaceUpdate,
		ProtocolVersion: protocol.Version,
		MsgID:           "m1",
		SurfaceID:       "main",
		Components:      []protocol.ComponentNode{{ID: "root", Kind: "Column"}},
	})
	ack := readAck(t, conn)
	if ack.Accepted || ack.Code != protocol.CodeSessionNotLive {
		t.Fatalf("ack = %+v", ack)
	}
	if ack.AckFor != "m1" {
		t.Fatalf("ack_for = %q", ack.AckFor)
	}
}

func TestLiveFlow_StartUpdateRenderEvent(t *testing.T) {
	srv, ts := startTestServer(t)
	conn := dial(t, ts)
	welcome := handshakeFire(t, conn)
	sid := welcome.SessionID

	if r, found := srv.StartSession(sid, false); !found || r.OK || r.Code != protocol.CodeUserGateRequired {
		t.Fatalf("ungated start = %+v found=%v", r, found)
	}
	if live, _ := srv.SessionLive(sid); live {
		t.Fatalf("session live before user gate")
	}
	if r, _ := srv.StartSession(sid, true); !r.OK {
		t.Fatalf("user start denied: %+v", r)
	}
	if live, _ := srv.SessionLive(sid); !live {
		t.Fatalf("session not live after start")
	}

	// Disallowed surface.
	sendJSON(t, conn, protocol.SurfaceUpdateMsg{
		Type:            protocol.TypeSurfaceUpdate,
		ProtocolVersion: protocol.Version,
		MsgID:           "m1",
		SurfaceID:       "preview",
	})
	if ack := readAck(t, conn); ack.Accepted || ack.Code != protocol.CodeSurfaceNotAllowed {
		t.Fatalf("ack = %+v", ack)
	}

	// Allowed update, then render marker.
	sendJSON(t, conn, protocol.SurfaceUpdateMsg{
		Type:            protocol.TypeSurfaceUpdate,
		ProtocolVersion: protocol.Version,
		MsgID:           "m2",
		SurfaceID:       "main",
		Components: []protocol.ComponentNode{
			{ID: "root", Kind: "Column", Children: []string{"t1"}},
			{ID: "t1", Kind: "Text", Props: json.RawMessage(`{"text":"hi"}`)},
		},
	})
	if ack := readAck(t, conn); !ack.Accepted {
		t.Fatalf("update ack = %+v", ack)
	}
	sendJSON(t, conn, protocol.BeginRenderingMsg{
		Type:            protocol.TypeBeginRendering,
		ProtocolVersion: protocol.Version,
		MsgID:           "m3",
		SurfaceID:       "main",
		Root:            "root",
	})
	if ack := readAck(t, conn); !ack.Accepted {
		t.Fatalf("render ack = %+v", ack)
	}

	st, found := srv.Surface(sid, "main")
	if !found || !st.Renderable || st.RootID != "root" || len(st.Components) != 2 {
		t.Fatalf("surface = %+v found=%v", st, found)
	}

	// Disallowed event never reaches the wire.
	if r, _ := srv.DispatchEvent(sid, "wallet.send", nil); r.OK || r.Code != protocol.CodeEventNotAllowed {
		t.Fatalf("event result = %+v", r)
	}
	// Allowed event arrives as an EVENT frame.
	if r, _ := srv.DispatchEvent(sid, "fire.applySettings", json.RawMessage(`{"heat":0.9}`)); !r.OK {
		t.Fatalf("event result = %+v", r)
	}
	var evt protocol.EventMsg
	if err := json.Unmarshal(readMsg(t, conn), &evt); err != nil {
		t.Fatalf("event: %v", err)
	}
	if evt.Type != protocol.TypeEvent || evt.Event.Type != "fire.applySettings" {
		t.Fatalf("event = %+v", evt)
	}
	if string(evt.Payload) != `{"heat":0.9}` {
		t.Fatalf("payload = %s", evt.Payload)
	}
}

func TestUnknownMessage_GetsRejectingAck(t *testing.T) {
	_, ts := startTestServer(t)
	conn := dial(t, ts)
	handshakeFire(t, conn)

	sendJSON(t, conn, map[string]any{
		"type":             "FORMAT_DISK",
		"protocol_version": protocol.Version,
	})
	if ack := readAck(t, conn); ack.Accepted || ack.Code != protocol.CodeProtoBadRequest {
		t.Fatalf("ack = %+v", ack)
	}
}

func TestConnectionClose_UnregistersSession(t *testing.T) {
	srv, ts := startTestServer(t)
	conn := dial(t, ts)
	welcome := handshakeFire(t, conn)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, found := srv.SessionLive(welcome.SessionID); !found {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session still registered after close")
}
