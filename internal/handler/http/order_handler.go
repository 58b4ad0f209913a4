package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/restaurant-pos/internal/order"
)

type CreateOrderRequest struct {
	TableIDs   []string    `json:"table_ids" validate:"required,min=1"`
	MenuItemID string      `json:"menu_item_id" validate:"required"`
	Notes      string      `json:"notes" validate:"max=500"`
	Price      json.Number `json:"price" validate:"required"`
}

func (r CreateOrderRequest) toDomain() order.NewOrder {
	return order.NewOrder{
		TableIDs:   r.TableIDs,
		MenuItemID: r.MenuItemID,
		Notes:      r.Notes,
		Price:      r.Price.String(),
	}
}

type CreateOrdersRequest struct {
	Orders []CreateOrderRequest `json:"orders" validate:"required,min=1,dive"`
}

type UpdateOrderRequest struct {
	Status *string      `json:"status"`
	Notes  *string      `json:"notes" validate:"omitempty,max=500"`
	Price  *json.Number `json:"price"`
}

type OrdersResponse struct {
	Orders []order.Order `json:"orders"`
}

type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: newValidator(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders", h.handleCreateOrder)
	router.Post("/orders/batch", h.handleCreateOrders)
	router.Get("/orders", h.handleListOrders)
	router.Get("/orders/{id}", h.handleGetOrder)
	router.Patch("/orders/{id}", h.handleUpdateOrder)
	router.Delete("/orders/{id}", h.handleDeleteOrder)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var requestPayload CreateOrderRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	created, err := h.service.CreateOrder(r.Context(), requestPayload.toDomain())
	if err != nil {
		respondWithServiceError(w, r, err, "create order")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *OrderHandler) handleCreateOrders(w http.ResponseWriter, r *http.Request) {
	var requestPayload CreateOrdersRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	specs := make([]order.NewOrder, 0, len(requestPayload.Orders))
	for _, o := range requestPayload.Orders {
		specs = append(specs, o.toDomain())
	}

	created, err := h.service.CreateOrders(r.Context(), specs)
	if err != nil {
		respondWithServiceError(w, r, err, "create order batch")
		return
	}

	respondWithJSON(w, http.StatusCreated, OrdersResponse{Orders: created})
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	found, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		respondWithServiceError(w, r, err, "get order")
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

// handleListOrders serves the refetch terminals run after reconnecting.
// Query: table_id, status, include_paid.
func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	var filter order.Filter
	query := r.URL.Query()

	if raw := query.Get("table_id"); raw != "" {
		tableID, err := order.ParseID("table_id", raw)
		if err != nil {
			respondWithServiceError(w, r, err, "list orders")
			return
		}
		filter.TableID = &tableID
	}
	if raw := query.Get("include_paid"); raw != "" {
		includePaid, err := strconv.ParseBool(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid include_paid parameter")
			return
		}
		filter.IncludePaid = includePaid
	}
	if raw := query.Get("status"); raw != "" {
		status := order.Status(raw)
		if status == order.StatusPaid {
			filter.IncludePaid = true
		} else if _, err := order.ParseStatus("status", raw); err != nil {
			respondWithServiceError(w, r, err, "list orders")
			return
		}
		filter.Status = &status
	}

	orders, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, r, err, "list orders")
		return
	}

	respondWithJSON(w, http.StatusOK, OrdersResponse{Orders: orders})
}

func (h *OrderHandler) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var requestPayload UpdateOrderRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	patch := order.OrderPatch{Status: requestPayload.Status, Notes: requestPayload.Notes}
	if requestPayload.Price != nil {
		price := requestPayload.Price.String()
		patch.Price = &price
	}

	updated, err := h.service.UpdateOrder(r.Context(), orderID, patch)
	if err != nil {
		respondWithServiceError(w, r, err, "update order")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteOrder(r.Context(), orderID); err != nil {
		respondWithServiceError(w, r, err, "delete order")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idParam := chi.URLParam(r, "id")
	id, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return uuid.Nil, false
	}
	return id, true
}
