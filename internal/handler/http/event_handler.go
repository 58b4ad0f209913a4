package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/restaurant-pos/internal/auth"
	"github.com/vasiliy-maslov/restaurant-pos/internal/events"
)

// MenuInvalidator drops cached menu entries; satisfied by catalog.CachedMenu.
type MenuInvalidator interface {
	Invalidate(ctx context.Context, id uuid.UUID) error
}

type PublishEventRequest struct {
	Event string          `json:"event" validate:"required"`
	Data  json.RawMessage `json:"data"`
}

// EventHandler lets out-of-process collaborators publish through the hub.
type EventHandler struct {
	publisher events.Publisher
	menu      MenuInvalidator
	validate  *validator.Validate
}

// NewEventHandler builds the handler. menu may be nil when no cache is configured.
func NewEventHandler(publisher events.Publisher, menu MenuInvalidator) *EventHandler {
	return &EventHandler{
		publisher: publisher,
		menu:      menu,
		validate:  newValidator(),
	}
}

func (h *EventHandler) RegisterRoutes(router chi.Router) {
	router.With(auth.Require(auth.CapPublishEvents)).Post("/events", h.handlePublish)
}

func (h *EventHandler) handlePublish(w http.ResponseWriter, r *http.Request) {
	var requestPayload PublishEventRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	rooms, err := events.Route(requestPayload.Event, requestPayload.Data)
	if err != nil {
		respondWithServiceError(w, r, err, "publish collaborator event")
		return
	}

	if requestPayload.Event == "menu:updated" || requestPayload.Event == "menu:deleted" {
		h.evictMenuItem(r.Context(), requestPayload.Data)
	}

	h.publisher.Publish(r.Context(), events.New(requestPayload.Event, requestPayload.Data, rooms...))

	log.Info().Str("event", requestPayload.Event).Strs("rooms", rooms).Msg("Collaborator event published")
	respondWithJSON(w, http.StatusAccepted, map[string]any{"event": requestPayload.Event, "rooms": rooms})
}

func (h *EventHandler) evictMenuItem(ctx context.Context, data json.RawMessage) {
	if h.menu == nil {
		return
	}
	var item struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(data, &item); err != nil || item.ID == uuid.Nil {
		log.Warn().Err(err).Msg("Menu event without a usable id, cache left as is")
		return
	}
	if err := h.menu.Invalidate(ctx, item.ID); err != nil {
		log.Error().Err(err).Stringer("menu_item_id", item.ID).Msg("Failed to evict cached menu item")
	}
}
