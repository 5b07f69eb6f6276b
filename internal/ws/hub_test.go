package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/oleg-messenger/oleg/internal/engine"
	"github.com/oleg-messenger/oleg/internal/roomkey"
)

func drain(c *Client) []Frame {
	var out []Frame
	for {
		select {
		case b := <-c.send:
			f, err := ParseFrame(b)
			if err == nil {
				out = append(out, f)
			}
		default:
			return out
		}
	}
}

func TestEmitTargets(t *testing.T) {
	h := NewHub(zerolog.Nop())
	a1 := newClient(h, nil, "alice")
	a2 := newClient(h, nil, "alice")
	b := newClient(h, nil, "bob")
	for _, c := range []*Client{a1, a2, b} {
		h.register(c)
	}
	lobby := roomkey.Named("lobby")
	h.Join(a1.id, lobby)
	h.Join(b.id, lobby)

	h.Emit("room_event", map[string]string{"x": "1"}, engine.ToRoom(lobby))
	h.Emit("user_event", nil, engine.ToUsers("alice", "alice"))
	h.Emit("conn_event", nil, engine.ToConn(b.id))
	h.Emit("all_event", nil, engine.ToAll())

	events := func(c *Client) []string {
		var names []string
		for _, f := range drain(c) {
			names = append(names, f.Event)
		}
		return names
	}
	if got := strings.Join(events(a1), ","); got != "room_event,user_event,all_event" {
		t.Fatalf("a1 got %s", got)
	}
	if got := strings.Join(events(a2), ","); got != "user_event,all_event" {
		t.Fatalf("a2 got %s", got)
	}
	if got := strings.Join(events(b), ","); got != "room_event,conn_event,all_event" {
		t.Fatalf("b got %s", got)
	}
}

func TestRoomsAndUnregister(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := newClient(h, nil, "alice")
	h.register(c)

	h.Join(c.id, roomkey.Named("b"))
	h.Join(c.id, roomkey.Named("a"))
	h.Join("unknown", roomkey.Named("a"))
	rooms := h.Rooms(c.id)
	if len(rooms) != 2 || rooms[0].String() != "a" || rooms[1].String() != "b" {
		t.Fatalf("rooms = %v", rooms)
	}

	h.Leave(c.id, roomkey.Named("a"))
	if len(h.Rooms(c.id)) != 1 {
		t.Fatalf("leave did not unsubscribe")
	}

	h.unregister(c)
	h.unregister(c)
	if h.Connections() != 0 || len(h.Rooms(c.id)) != 0 {
		t.Fatalf("client still tracked after unregister")
	}
	if _, ok := <-c.send; ok {
		t.Fatalf("send channel not closed")
	}
	h.Emit("after", nil, engine.ToAll())
}

func TestFullBufferDropsFrame(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := newClient(h, nil, "alice")
	h.register(c)

	for i := 0; i < sendBuffer+10; i++ {
		h.Emit("spam", i, engine.ToConn(c.id))
	}
	if n := len(drain(c)); n != sendBuffer {
		t.Fatalf("queued %d frames, want %d", n, sendBuffer)
	}
}

type call struct {
	kind string
	user string
	name string
	data string
}

type fakeEngine struct {
	hub   *Hub
	mu    sync.Mutex
	calls []call
	gone  chan struct{}
}

func (e *fakeEngine) record(c call) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, c)
}

func (e *fakeEngine) Connect(_ context.Context, user, _ string) {
	e.record(call{kind: "connect", user: user})
}

func (e *fakeEngine) Disconnect(_ context.Context, user, _ string) {
	e.record(call{kind: "disconnect", user: user})
	close(e.gone)
}

func (e *fakeEngine) HandleCommand(_ context.Context, user, conn, name string, raw json.RawMessage) error {
	e.record(call{kind: "command", user: user, name: name, data: string(raw)})
	e.hub.Emit("ack", map[string]string{"command": name}, engine.ToConn(conn))
	return nil
}

func TestServeWS(t *testing.T) {
	h := NewHub(zerolog.Nop())
	eng := &fakeEngine{hub: h, gone: make(chan struct{})}
	up := Upgrader(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(eng, up, w, r, "alice")
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteJSON(Frame{Event: "join_room", Data: json.RawMessage(`{"room":"lobby"}`)}); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Event != "ack" || string(f.Data) != `{"command":"join_room"}` {
		t.Fatalf("unexpected frame %s %s", f.Event, f.Data)
	}

	conn.Close()
	select {
	case <-eng.gone:
	case <-time.After(5 * time.Second):
		t.Fatalf("disconnect not reported")
	}

	eng.mu.Lock()
	defer eng.mu.Unlock()
	if len(eng.calls) != 3 {
		t.Fatalf("calls = %+v", eng.calls)
	}
	if eng.calls[0].kind != "connect" || eng.calls[1].data != `{"room":"lobby"}` || eng.calls[2].kind != "disconnect" {
		t.Fatalf("calls = %+v", eng.calls)
	}
}

func TestUpgraderOrigins(t *testing.T) {
	up := Upgrader([]string{"https://chat.example"})
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://evil.example")
	if up.CheckOrigin(r) {
		t.Fatalf("foreign origin accepted")
	}
	r.Header.Set("Origin", "https://chat.example")
	if !up.CheckOrigin(r) {
		t.Fatalf("allowed origin rejected")
	}
}
