package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hazyhaar/elemscope/inspector/message"
)

// CommandFunc answers a command received from a websocket client.
type CommandFunc func(ctx context.Context, cmd message.Command) message.Reply

const (
	wsSendBuffer   = 64
	wsWriteTimeout = 5 * time.Second
	wsReadTimeout  = 60 * time.Second
)

// Hub is a bidirectional websocket transport: every connected client
// receives each event, and may send commands back.
type Hub struct {
	mu       sync.Mutex
	clients  map[*wsClient]struct{}
	handler  CommandFunc
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// SetCommandHandler installs the function answering client commands.
func (h *Hub) SetCommandHandler(fn CommandFunc) {
	h.mu.Lock()
	h.handler = fn
	h.mu.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the client until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket: upgrade failed", "error", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("websocket: client connected", "remote", r.RemoteAddr)

	go c.writeLoop()
	h.readLoop(r.Context(), c)
	h.drop(c)
	h.logger.Info("websocket: client disconnected", "remote", r.RemoteAddr)
}

func (h *Hub) readLoop(ctx context.Context, c *wsClient) {
	c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var reply message.Reply
		cmd, err := message.UnmarshalCommand(data)
		switch {
		case err != nil:
			reply = message.Reply{Error: err.Error()}
		default:
			h.mu.Lock()
			fn := h.handler
			h.mu.Unlock()
			if fn == nil {
				reply = message.Reply{Error: "no command handler"}
			} else {
				reply = fn(ctx, cmd)
			}
		}

		out, err := json.Marshal(envelope{Type: "reply", Data: reply})
		if err != nil {
			continue
		}
		h.push(c, out)
	}
}

func (c *wsClient) writeLoop() {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
	c.conn.Close()
}

// push queues msg for c. A client whose buffer is full is dropped.
func (h *Hub) push(c *wsClient, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("websocket: slow client dropped")
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) Send(_ context.Context, ev message.Event) error {
	out, err := json.Marshal(envelope{Type: "event", Data: ev})
	if err != nil {
		return fmt.Errorf("websocket: marshal: %w", err)
	}
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.push(c, out)
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	return nil
}
