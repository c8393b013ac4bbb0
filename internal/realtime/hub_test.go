package realtime

import (
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/salah0eldin/autonmous-iot-car/internal/control"
	"github.com/salah0eldin/autonmous-iot-car/internal/layout"
)

type syncRecorder struct {
	mu   sync.Mutex
	cmds []string
}

func (r *syncRecorder) Send(cmd control.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd.String())
}

func (r *syncRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.cmds...)
}

func (r *syncRecorder) waitFor(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := r.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d commands, got %v", n, r.snapshot())
	return nil
}

func newTestHub(t *testing.T) (*Hub, *syncRecorder, *httptest.Server) {
	t.Helper()
	dec, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	l, err := layout.Default()
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	rec := &syncRecorder{}
	hub := NewHub(dec, l, rec)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
	})
	return hub, rec, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestHubSendsReconciledStateOnConnect(t *testing.T) {
	_, _, srv := newTestHub(t)
	conn := dial(t, srv)
	defer conn.Close()

	msg := readMessage(t, conn)
	if msg.Type != "state" || msg.State == nil {
		t.Fatalf("expected initial state, got %+v", msg)
	}
	if !msg.State.ManualHome.Enabled || !msg.State.ManualHome.Active || msg.State.AutoHomeActive {
		t.Fatalf("unexpected initial state: %+v", msg.State)
	}
}

func TestHubPressReleaseAndDisconnect(t *testing.T) {
	hub, rec, srv := newTestHub(t)
	conn := dial(t, srv)
	readMessage(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"press","button":"btnF","pointer":1}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readMessage(t, conn)
	if msg.Type != "state" || len(msg.State.Pressed) != 1 {
		t.Fatalf("expected btnF held, got %+v", msg)
	}
	// A duplicate down event from the same contact is absorbed.
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"press","button":"btnF","pointer":1}`))
	readMessage(t, conn)
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"press","button":"btnL","pointer":2}`))
	readMessage(t, conn)

	if got := rec.waitFor(t, 2); got[0] != "/cmd?dir=F" || got[1] != "/cmd?dir=L" {
		t.Fatalf("unexpected commands: %v", got)
	}
	if hub.Sessions() != 1 {
		t.Fatalf("expected one open session, got %d", hub.Sessions())
	}

	// Dropping the connection releases both held buttons.
	_ = conn.Close()
	got := rec.waitFor(t, 4)
	if got[2] != "/cmd?dir=S" || got[3] != "/cmd?dir=S" || len(got) != 4 {
		t.Fatalf("unexpected commands after disconnect: %v", got)
	}
}

func TestHubRejectsInvalidFrames(t *testing.T) {
	_, rec, srv := newTestHub(t)
	conn := dial(t, srv)
	defer conn.Close()
	readMessage(t, conn)

	frames := []string{
		`not json`,
		`{"type":"press"}`,
		`{"type":"speed"}`,
		`{"type":"teleport"}`,
		`{"type":"press","button":"btnZ"}`,
		`{"type":"go_home","extra":1}`,
	}
	for _, f := range frames {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(f))
		if msg := readMessage(t, conn); msg.Type != "error" {
			t.Fatalf("frame %s: expected error, got %+v", f, msg)
		}
	}
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("invalid frames must not send, got %v", got)
	}
}

func TestHubAutoHomeFlow(t *testing.T) {
	_, rec, srv := newTestHub(t)
	conn := dial(t, srv)
	defer conn.Close()
	readMessage(t, conn)

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"toggle_auto_home"}`))
	msg := readMessage(t, conn)
	if !msg.State.AutoHomeActive || msg.State.ManualHome.Enabled {
		t.Fatalf("unexpected state after toggle: %+v", msg.State)
	}
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"go_home"}`))
	readMessage(t, conn)
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"speed","car":0}`))
	readMessage(t, conn)

	got := rec.waitFor(t, 2)
	if len(got) != 2 || got[0] != "/cmd?autoHome=1" || got[1] != "/speed?car=0" {
		t.Fatalf("unexpected commands: %v", got)
	}
}

func TestDecoder(t *testing.T) {
	dec, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	ev, err := dec.Decode([]byte(`{"type":"speed","steer":42}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != control.EventSpeed || ev.Steer == nil || *ev.Steer != 42 || ev.Car != nil {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if _, err := dec.Decode([]byte(`{"type":"speed","car":1.5}`)); !errors.Is(err, control.ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent for fractional speed, got %v", err)
	}
	if _, err := dec.Decode([]byte(`{"type":"pointer_cancel"}`)); err == nil {
		t.Fatalf("pointer_cancel without pointer must be rejected")
	}
}
