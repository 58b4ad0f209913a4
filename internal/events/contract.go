package events

import (
	"encoding/json"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/restaurant-pos/internal/apperr"
)

// collaboratorPayload is the part of a collaborator payload the router reads.
type collaboratorPayload struct {
	ID       string `json:"id"`
	LayoutID string `json:"layout_id"`
}

// Route resolves the rooms of an event published by an out-of-process
// collaborator (menu, tables, layouts, stock, users). Names outside the
// contract, and payloads missing the ids a name needs, are validation errors.
func Route(name string, payload json.RawMessage) ([]string, error) {
	var p collaboratorPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, apperr.Field("data", "payload must be a JSON object")
		}
	}

	prefix, action, ok := strings.Cut(name, ":")
	if !ok || action == "" {
		return nil, apperr.Fieldf("event", "malformed event name %q", name)
	}

	switch prefix {
	case "table":
		if action != "created" && action != "updated" && action != "deleted" {
			break
		}
		id, err := requireID("data.id", p.ID)
		if err != nil {
			return nil, err
		}
		rooms := []string{RoomTables, TableRoom(id)}
		if p.LayoutID != "" {
			layoutID, err := requireID("data.layout_id", p.LayoutID)
			if err != nil {
				return nil, err
			}
			rooms = append(rooms, LayoutRoom(layoutID))
		}
		return rooms, nil
	case "layout":
		id, err := requireID("data.id", p.ID)
		if err != nil {
			return nil, err
		}
		return []string{RoomTables, LayoutRoom(id)}, nil
	case "menu", "category", "tag":
		return []string{RoomMenu}, nil
	case "stock":
		return []string{RoomStock}, nil
	case "user":
		return []string{RoomUsers}, nil
	}

	return nil, apperr.Fieldf("event", "event %q is not part of the collaborator contract", name)
}

func requireID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.FromString(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, apperr.Fieldf(field, "invalid id %q", raw)
	}
	return id, nil
}
