package hub

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/restaurant-pos/internal/auth"
	"github.com/vasiliy-maslov/restaurant-pos/internal/events"
)

const (
	SubscribeTable    = "subscribe:table"
	UnsubscribeTable  = "unsubscribe:table"
	SubscribeLayout   = "subscribe:layout"
	UnsubscribeLayout = "unsubscribe:layout"
	eventConnected    = "connected"
	eventSubscribed   = "subscribed"
	eventUnsubscribed = "unsubscribed"
)

// Client is one admitted connection.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	principal auth.Principal
	send      chan []byte

	// Guarded by hub.mu.
	rooms  map[string]struct{}
	closed bool
}

func newClient(h *Hub, conn *websocket.Conn, p auth.Principal) *Client {
	return &Client{
		hub:       h,
		conn:      conn,
		principal: p,
		send:      make(chan []byte, h.cfg.SendBuffer),
		rooms:     make(map[string]struct{}),
	}
}

func (c *Client) Principal() auth.Principal {
	return c.principal
}

// enqueue never blocks. Callers hold hub.mu, so send is not closed under them.
func (c *Client) enqueue(msg []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		log.Warn().Stringer("user_id", c.principal.Subject).Msg("hub: send queue full, dropping event")
	}
}

type clientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// target reads the single id a client message carries, either as a bare
// string or as {"id": "..."}.
func (m clientMessage) target() (uuid.UUID, bool) {
	var raw string
	if err := json.Unmarshal(m.Data, &raw); err != nil {
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(m.Data, &obj); err != nil {
			return uuid.Nil, false
		}
		raw = obj.ID
	}
	id, err := uuid.FromString(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// handle applies one client message. Malformed messages and ids are ignored.
func (c *Client) handle(payload []byte) {
	var m clientMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		log.Debug().Err(err).Stringer("user_id", c.principal.Subject).Msg("hub: ignoring undecodable client message")
		return
	}

	var (
		room string
		join bool
	)
	switch m.Event {
	case SubscribeTable, UnsubscribeTable:
		id, ok := m.target()
		if !ok {
			return
		}
		room, join = events.TableRoom(id), m.Event == SubscribeTable
	case SubscribeLayout, UnsubscribeLayout:
		id, ok := m.target()
		if !ok {
			return
		}
		room, join = events.LayoutRoom(id), m.Event == SubscribeLayout
	default:
		return
	}

	ack := eventUnsubscribed
	if join {
		c.hub.Join(c, room)
		ack = eventSubscribed
	} else {
		c.hub.Leave(c, room)
	}
	c.reply(ack, map[string]string{"room": room})
}

func (c *Client) reply(name string, payload any) {
	msg, err := events.New(name, payload).Encode()
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	c.enqueue(msg)
	c.hub.mu.RUnlock()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()

	pongWait := c.hub.cfg.PingPeriod + c.hub.cfg.WriteWait
	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Stringer("user_id", c.principal.Subject).Msg("hub: connection closed unexpectedly")
			}
			return
		}
		c.handle(payload)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
