package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vietddude/explorer/internal/core/domain"
	"github.com/vietddude/explorer/internal/core/recent"
	"github.com/vietddude/explorer/internal/indexing/bus"
	"github.com/vietddude/explorer/internal/indexing/metrics"
)

// Hub tracks room membership and fans bus events out to joined connections.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Conn]struct{}
	blocks *recent.Store[*domain.Block]
	log    *slog.Logger
}

// NewHub creates a hub. blocks, when set, supplies the enriched block for
// block pushes whose event it was admitted from.
func NewHub(blocks *recent.Store[*domain.Block]) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Conn]struct{}),
		blocks: blocks,
		log:    slog.Default().With("component", "hub"),
	}
}

// Register subscribes the hub to every entity type on b.
func (h *Hub) Register(b *bus.Bus) []*bus.Subscription {
	subs := make([]*bus.Subscription, 0, len(domain.Entities))
	for _, entity := range domain.Entities {
		subs = append(subs, b.Subscribe(entity, "gateway", h.handle))
	}
	return subs
}

// Join adds c to room.
func (h *Hub) Join(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Conn]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// Leave removes c from room.
func (h *Hub) Leave(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Conn, room string) {
	delete(c.rooms, room)
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Remove drops c from every room it joined.
func (h *Hub) Remove(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
}

// Members returns the number of connections joined to room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) handle(_ context.Context, ev *domain.Event) error {
	payload := ev.Payload
	if ev.Entity == domain.EntityBlock && ev.Op != domain.OpDelete && h.blocks != nil {
		// Only the copy admitted from this very event is pushed in its place.
		// A skipped update leaves an older version in the store.
		if b, ok := h.blocks.Get(ev.Key); ok && ev.Seq != 0 && b.Seq == ev.Seq {
			data, err := json.Marshal(b)
			if err != nil {
				return fmt.Errorf("failed to encode block %s: %w", ev.Key, err)
			}
			payload = data
		}
	}

	h.Emit(PushFrame{
		Type:    framePush,
		Event:   ev.Name(),
		Key:     ev.Key,
		Payload: payload,
	}, ev.Entity.Room(), ev.Key)
	return nil
}

// Emit pushes frame to every connection joined to any of rooms. A
// connection in several of the rooms receives the frame once, labeled with
// the first matching room. Connections whose push buffer is full are dropped.
func (h *Hub) Emit(frame PushFrame, rooms ...string) {
	type target struct {
		conn *Conn
		room string
	}

	h.mu.RLock()
	seen := make(map[*Conn]struct{})
	var targets []target
	for _, room := range rooms {
		for c := range h.rooms[room] {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			targets = append(targets, target{conn: c, room: room})
		}
	}
	h.mu.RUnlock()

	for _, t := range targets {
		frame.Room = t.room
		data, err := json.Marshal(frame)
		if err != nil {
			h.log.Error("Failed to encode push", "event", frame.Event, "key", frame.Key, "error", err)
			return
		}
		if t.conn.push(data) {
			metrics.GatewayPushesTotal.WithLabelValues(t.room, "delivered").Inc()
			continue
		}
		metrics.GatewayPushesTotal.WithLabelValues(t.room, "dropped").Inc()
		h.log.Warn("Dropping slow client", "conn", t.conn.ID(), "room", t.room)
		go t.conn.Close()
	}
}
