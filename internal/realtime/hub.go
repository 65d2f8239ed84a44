package realtime

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/trackchat-backend/internal/observability"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
)

var ErrConnClosed = errors.New("connection closed")

const DefaultSendBuffer = 64

// Hub routes envelopes to every connection subscribed to a room. A connection
// whose outbound queue is full is dropped rather than waited on.
type Hub struct {
	mu         sync.RWMutex
	log        *logger.Logger
	metrics    *observability.Metrics
	sendBuffer int

	rooms  map[string]map[*Conn]bool
	conns  map[*Conn]bool
	byKind map[ConnKind]int
}

func NewHub(log *logger.Logger, sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Hub{
		log:        log.With("component", "Hub"),
		metrics:    observability.Current(),
		sendBuffer: sendBuffer,
		rooms:      make(map[string]map[*Conn]bool),
		conns:      make(map[*Conn]bool),
		byKind:     make(map[ConnKind]int),
	}
}

// NewConn registers a connection that is not yet in any room.
func (h *Hub) NewConn(kind ConnKind, subject string) *Conn {
	c := &Conn{
		ID:       uuid.New(),
		Kind:     kind,
		Subject:  subject,
		Outbound: make(chan Envelope, h.sendBuffer),
		rooms:    make(map[string]bool),
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	h.conns[c] = true
	h.byKind[kind]++
	n := h.byKind[kind]
	h.mu.Unlock()

	h.metrics.SetConnections(string(kind), n)
	h.log.Debug("connection registered", "conn_id", c.ID, "kind", kind)
	return c
}

// Join adds c to room. Joining twice is a no-op.
func (h *Hub) Join(room string, c *Conn) error {
	return h.Subscribe(c, room)
}

// Subscribe adds c to every room atomically: either all joins happen or, for a
// closed connection, none do.
func (h *Hub) Subscribe(c *Conn, rooms ...string) error {
	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return ErrConnClosed
	}
	for _, room := range rooms {
		room = strings.TrimSpace(room)
		if room == "" {
			continue
		}
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*Conn]bool)
			h.rooms[room] = members
		}
		members[c] = true
		c.rooms[room] = true
	}
	nRooms := len(h.rooms)
	h.mu.Unlock()

	h.metrics.SetRooms(nRooms)
	h.log.Debug("connection subscribed", "conn_id", c.ID, "rooms", rooms)
	return nil
}

// Leave removes c from room and drops the room once empty.
func (h *Hub) Leave(room string, c *Conn) {
	h.mu.Lock()
	h.leaveLocked(room, c)
	nRooms := len(h.rooms)
	h.mu.Unlock()
	h.metrics.SetRooms(nRooms)
}

func (h *Hub) leaveLocked(room string, c *Conn) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Broadcast enqueues env for every member of room and returns how many
// connections accepted it.
func (h *Hub) Broadcast(room string, env Envelope) int {
	return h.Publish(env, room)
}

// Publish enqueues env once per distinct connection across rooms, so a
// connection subscribed to several of them still sees a single copy.
func (h *Hub) Publish(env Envelope, rooms ...string) int {
	var overflow []*Conn
	delivered := 0

	h.mu.RLock()
	seen := make(map[*Conn]bool)
	for _, room := range rooms {
		for c := range h.rooms[room] {
			if seen[c] {
				continue
			}
			seen[c] = true
			select {
			case c.Outbound <- env:
				delivered++
			default:
				overflow = append(overflow, c)
			}
		}
	}
	h.mu.RUnlock()

	h.metrics.AddDelivered(delivered)
	for _, c := range overflow {
		h.log.Warn("dropping connection; outbound queue full", "conn_id", c.ID, "kind", c.Kind)
		h.metrics.IncDropped("queue_full")
		h.Close(c)
	}
	return delivered
}

// Send enqueues env for c alone. It reports false when c is closed or full;
// a full connection is dropped.
func (h *Hub) Send(c *Conn, env Envelope) bool {
	h.mu.RLock()
	if c.closed {
		h.mu.RUnlock()
		return false
	}
	ok := true
	select {
	case c.Outbound <- env:
	default:
		ok = false
	}
	h.mu.RUnlock()

	if !ok {
		h.metrics.IncDropped("queue_full")
		h.Close(c)
	}
	return ok
}

// Close removes c from every room and closes its outbound queue. Safe to call
// more than once and from any goroutine.
func (h *Hub) Close(c *Conn) {
	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return
	}
	for room := range c.rooms {
		h.leaveLocked(room, c)
	}
	c.closed = true
	delete(h.conns, c)
	h.byKind[c.Kind]--
	n := h.byKind[c.Kind]
	nRooms := len(h.rooms)
	c.closeOnce.Do(func() {
		close(c.Outbound)
		close(c.done)
	})
	h.mu.Unlock()

	h.metrics.SetConnections(string(c.Kind), n)
	h.metrics.SetRooms(nRooms)
	h.log.Debug("connection closed", "conn_id", c.ID, "kind", c.Kind)
}

// Members returns a snapshot of room's connections.
func (h *Hub) Members(room string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Conn, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		out = append(out, c)
	}
	return out
}

// Rooms returns the rooms c currently belongs to.
func (h *Hub) Rooms(c *Conn) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	return out
}

func (h *Hub) Stats() (conns int, rooms int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns), len(h.rooms)
}

// Shutdown closes every registered connection.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	all := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.Close(c)
	}
	h.log.Info("hub drained", "connections", len(all))
}
