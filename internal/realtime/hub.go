package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/salah0eldin/autonmous-iot-car/internal/control"
	"github.com/salah0eldin/autonmous-iot-car/internal/observability"
)

const (
	pongWait   = 60 * time.Second
	pingEvery  = 25 * time.Second
	writeWait  = 5 * time.Second
	readLimit  = 1024
	sendBuffer = 16
)

// Hub serves WebSocket control sessions. Every connection gets its own
// control.Session; frames from one connection are applied in arrival order
// by that session's event loop.
type Hub struct {
	upgrader websocket.Upgrader
	decoder  *Decoder
	buttons  control.ButtonResolver
	send     control.Sender

	mu      sync.Mutex
	clients map[*client]struct{}
	wg      sync.WaitGroup
}

type client struct {
	conn    *websocket.Conn
	session *control.Session
	cancel  context.CancelFunc
	send    chan []byte
}

func NewHub(decoder *Decoder, buttons control.ButtonResolver, send control.Sender) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// The page is served from the same box on a local link.
				return true
			},
		},
		decoder: decoder,
		buttons: buttons,
		send:    send,
		clients: map[*client]struct{}{},
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		conn:    conn,
		session: control.NewSession(uuid.NewString(), h.buttons, h.send),
		cancel:  cancel,
		send:    make(chan []byte, sendBuffer),
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		c.session.Run(ctx)
	}()
	h.addClient(c)
	slog.Info("control session opened", "session", c.session.ID, "remote", r.RemoteAddr)

	if st, err := c.session.Snapshot(ctx); err == nil {
		h.push(c, Message{Type: "state", State: &st})
	}

	go h.writePump(c)
	h.readPump(c)
}

// Sessions returns the number of open control sessions.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close drops every connection and waits for their sessions to release any
// held buttons.
func (h *Hub) Close() {
	h.mu.Lock()
	for c := range h.clients {
		h.dropLocked(c)
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	observability.SessionsActive.Inc()
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	observability.SessionsActive.Dec()
	c.cancel()
	close(c.send)
	_ = c.conn.Close()
	slog.Info("control session closed", "session", c.session.ID)
}

func (h *Hub) push(c *client, msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
		// Slow client; drop it.
		h.dropLocked(c)
	}
}

func (h *Hub) readPump(c *client) {
	defer h.removeClient(c)
	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		ev, err := h.decoder.Decode(frame)
		if err != nil {
			h.push(c, Message{Type: "error", Error: err.Error()})
			continue
		}
		st, err := c.session.Apply(context.Background(), ev)
		if errors.Is(err, control.ErrSessionClosed) {
			return
		}
		if err != nil {
			h.push(c, Message{Type: "error", Error: err.Error(), State: &st})
			continue
		}
		h.push(c, Message{Type: "state", State: &st})
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
