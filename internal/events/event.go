// Package events defines the domain event envelope, the room names events are
// addressed to and the publishers that carry them.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofrs/uuid"
)

const (
	OrderCreated = "order:created"
	OrderUpdated = "order:updated"
	OrderDeleted = "order:deleted"
	OrderPaid    = "order:paid"
	TableUpdated = "table:updated"
)

// Fixed rooms every admitted connection joins.
const (
	RoomOrders   = "orders"
	RoomTables   = "tables"
	RoomMenu     = "menu"
	RoomStock    = "stock"
	RoomUsers    = "users"
	RoomManagers = "managers"
)

// GlobalRooms are joined automatically on admission. RoomManagers is not
// among them; it is joined only by manager principals.
var GlobalRooms = []string{RoomOrders, RoomTables, RoomMenu, RoomStock, RoomUsers}

func TableRoom(id uuid.UUID) string  { return "table:" + id.String() }
func LayoutRoom(id uuid.UUID) string { return "layout:" + id.String() }

// TableRooms returns the per-table room of every id.
func TableRooms(ids []uuid.UUID) []string {
	rooms := make([]string, 0, len(ids))
	for _, id := range ids {
		rooms = append(rooms, TableRoom(id))
	}
	return rooms
}

type Event struct {
	Name       string    `json:"event"`
	Rooms      []string  `json:"-"`
	Payload    any       `json:"data"`
	OccurredAt time.Time `json:"occurred_at"`
}

func New(name string, payload any, rooms ...string) Event {
	return Event{Name: name, Rooms: rooms, Payload: payload, OccurredAt: time.Now().UTC()}
}

// Encode is the wire form sent to connections and external sinks.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events after the originating transaction has committed.
// Implementations never report delivery failures to the caller.
type Publisher interface {
	Publish(ctx context.Context, evs ...Event)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(context.Context, ...Event) {}
