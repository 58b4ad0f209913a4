// Package hub delivers domain events to connected terminals over websockets.
// Connections are grouped in rooms; a room exists while it has members.
package hub

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/restaurant-pos/internal/config"
	"github.com/vasiliy-maslov/restaurant-pos/internal/events"
)

type Config struct {
	SendBuffer     int
	PingPeriod     time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
}

func ConfigFrom(c config.HubConfig) Config {
	return Config{
		SendBuffer:     c.SendBuffer,
		PingPeriod:     c.PingPeriod,
		WriteWait:      c.WriteWait,
		MaxMessageSize: c.MaxMessageSize,
		AllowedOrigins: c.AllowedOrigins,
	}
}

func (c Config) withDefaults() Config {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = 30 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	return c
}

// Hub owns room membership for this process. It is safe for concurrent use.
type Hub struct {
	cfg Config

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func New(cfg Config) *Hub {
	return &Hub{
		cfg:   cfg.withDefaults(),
		rooms: make(map[string]map[*Client]struct{}),
	}
}

// Join adds c to room, creating the room on first use.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// Leave removes c from room and drops the room once empty.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Client, room string) {
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

// remove tears down every membership of c and closes its send queue.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return
	}
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	c.closed = true
	close(c.send)
}

// Publish delivers each event once to every connection in the union of its
// rooms. Delivery is fire-and-forget: a connection whose queue is full misses
// the event.
func (h *Hub) Publish(_ context.Context, evs ...events.Event) {
	for _, ev := range evs {
		msg, err := ev.Encode()
		if err != nil {
			log.Error().Err(err).Str("event", ev.Name).Msg("hub: failed to encode event")
			continue
		}

		h.mu.RLock()
		delivered := make(map[*Client]struct{})
		for _, room := range ev.Rooms {
			for c := range h.rooms[room] {
				if _, dup := delivered[c]; dup {
					continue
				}
				delivered[c] = struct{}{}
				c.enqueue(msg)
			}
		}
		h.mu.RUnlock()

		log.Debug().Str("event", ev.Name).Strs("rooms", ev.Rooms).Int("recipients", len(delivered)).Msg("hub: event published")
	}
}

// RoomSize reports how many connections are in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms lists the rooms that currently have members.
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.rooms))
	for room := range h.rooms {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}
