package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/models"
)

const (
	clientBuffer = 16
	writeTimeout = 10 * time.Second
)

// Conn is the write side of a websocket connection.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

type deadliner interface {
	SetWriteDeadline(t time.Time) error
}

type client struct {
	conn   Conn
	userID string
	role   models.Role
	out    chan Event
	done   chan struct{}
	once   sync.Once
}

// Hub delivers events to the connected clients they are addressed to. Each
// client has its own writer goroutine, so a slow connection only delays itself.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	ch      chan Event
	log     *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients: map[*client]struct{}{},
		ch:      make(chan Event, 64),
		log:     log.With("component", "Hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case ev := <-h.ch:
			h.deliver(ev)
		case <-ctx.Done():
			h.mu.Lock()
			all := make([]*client, 0, len(h.clients))
			for c := range h.clients {
				all = append(all, c)
			}
			h.mu.Unlock()
			for _, c := range all {
				h.drop(c)
			}
			return
		}
	}
}

func (h *Hub) deliver(ev Event) {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if ev.For(c.userID, c.role) {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()
	for _, c := range targets {
		select {
		case c.out <- ev:
		case <-c.done:
		default:
			h.log.Warn("client buffer full, dropping client", "user_id", c.userID)
			h.drop(c)
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.out:
			if d, ok := c.conn.(deadliner); ok {
				_ = d.SetWriteDeadline(time.Now().Add(writeTimeout))
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				h.log.Debug("dropping client after write error", "user_id", c.userID, "error", err)
				h.drop(c)
				return
			}
		}
	}
}

// Broadcast queues ev, dropping it when the hub is saturated.
func (h *Hub) Broadcast(ev Event) {
	select {
	case h.ch <- ev:
	default:
		h.log.Warn("hub queue full, dropping event", "type", ev.Type)
	}
}

// Add registers conn and returns the function that unregisters it.
func (h *Hub) Add(conn Conn, userID string, role models.Role) func() {
	c := &client{
		conn:   conn,
		userID: userID,
		role:   role,
		out:    make(chan Event, clientBuffer),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	go h.writeLoop(c)
	return func() { h.remove(c) }
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.once.Do(func() { close(c.done) })
}

func (h *Hub) drop(c *client) {
	h.remove(c)
	_ = c.conn.Close()
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
