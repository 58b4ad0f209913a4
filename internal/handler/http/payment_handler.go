package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/restaurant-pos/internal/auth"
	"github.com/vasiliy-maslov/restaurant-pos/internal/payment"
)

type PaymentMethodRequest struct {
	Method string          `json:"method" validate:"required,oneof=cash card mbway"`
	Amount decimal.Decimal `json:"amount"`
}

type DiscountRequest struct {
	Type   string          `json:"type" validate:"required,oneof=percentage fixed"`
	Value  decimal.Decimal `json:"value"`
	Reason string          `json:"reason" validate:"max=200"`
}

type SettleRequest struct {
	OrderItemIDs   []uuid.UUID            `json:"order_item_ids" validate:"required,min=1"`
	PaymentMethods []PaymentMethodRequest `json:"payment_methods" validate:"required,min=1,dive"`
	CashReceived   *decimal.Decimal       `json:"cash_received"`
	TipAmount      decimal.Decimal        `json:"tip_amount"`
	Discount       *DiscountRequest       `json:"discount" validate:"omitempty"`
	CustomerName   string                 `json:"customer_name" validate:"max=120"`
	Notes          string                 `json:"notes" validate:"max=500"`
}

func (r SettleRequest) toDomain() payment.Request {
	req := payment.Request{
		OrderIDs:     r.OrderItemIDs,
		Methods:      make([]payment.MethodAmount, 0, len(r.PaymentMethods)),
		CashReceived: r.CashReceived,
		Tip:          r.TipAmount,
		CustomerName: r.CustomerName,
		Notes:        r.Notes,
	}
	for _, m := range r.PaymentMethods {
		req.Methods = append(req.Methods, payment.MethodAmount{Method: payment.Method(m.Method), Amount: m.Amount})
	}
	if r.Discount != nil {
		req.Discount = &payment.Discount{
			Type:   payment.DiscountType(r.Discount.Type),
			Value:  r.Discount.Value,
			Reason: r.Discount.Reason,
		}
	}
	return req
}

type PaymentsResponse struct {
	Payments []payment.Payment `json:"payments"`
}

type PaymentHandler struct {
	service  payment.Service
	validate *validator.Validate
}

func NewPaymentHandler(service payment.Service) *PaymentHandler {
	return &PaymentHandler{
		service:  service,
		validate: newValidator(),
	}
}

func (h *PaymentHandler) RegisterRoutes(router chi.Router) {
	router.Post("/payments", h.handleSettle)
	router.With(auth.Require(auth.CapManage)).Get("/payments", h.handleListPayments)
	router.Get("/payments/{id}", h.handleGetPayment)
	router.Get("/payments/{id}/qrcode", h.handleReceiptQRCode)
}

func (h *PaymentHandler) handleSettle(w http.ResponseWriter, r *http.Request) {
	var requestPayload SettleRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	settled, err := h.service.Settle(r.Context(), requestPayload.toDomain())
	if err != nil {
		respondWithServiceError(w, r, err, "settle payment")
		return
	}

	respondWithJSON(w, http.StatusCreated, settled)
}

func (h *PaymentHandler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	found, err := h.service.GetPayment(r.Context(), paymentID)
	if err != nil {
		respondWithServiceError(w, r, err, "get payment")
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

// handleListPayments is manager only. Query: from, to (RFC 3339), limit.
func (h *PaymentHandler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	var filter payment.Filter
	query := r.URL.Query()

	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := query.Get(bound.name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			log.Warn().Err(err).Str(bound.name, raw).Msg("Failed to parse time parameter")
			respondWithError(w, http.StatusBadRequest, "Invalid "+bound.name+" parameter")
			return
		}
		*bound.dst = &ts
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		filter.Limit = limit
	}

	payments, err := h.service.ListPayments(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, r, err, "list payments")
		return
	}

	respondWithJSON(w, http.StatusOK, PaymentsResponse{Payments: payments})
}

func (h *PaymentHandler) handleReceiptQRCode(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	png, err := h.service.ReceiptQRCode(r.Context(), paymentID)
	if err != nil {
		respondWithServiceError(w, r, err, "render receipt code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		log.Error().Err(err).Stringer("payment_id", paymentID).Msg("Failed to write receipt code")
	}
}
