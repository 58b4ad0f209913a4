package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/vasiliy-maslov/restaurant-pos/internal/auth"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthHandler struct {
	service  auth.Service
	validate *validator.Validate
}

func NewAuthHandler(service auth.Service) *AuthHandler {
	return &AuthHandler{
		service:  service,
		validate: newValidator(),
	}
}

// RegisterPublicRoutes mounts the routes reachable without a token.
func (h *AuthHandler) RegisterPublicRoutes(router chi.Router) {
	router.Post("/auth/login", h.handleLogin)
}

func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Get("/auth/me", h.handleMe)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var requestPayload LoginRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	session, err := h.service.Login(r.Context(), requestPayload.Email, requestPayload.Password)
	if err != nil {
		respondWithServiceError(w, r, err, "log in")
		return
	}

	respondWithJSON(w, http.StatusOK, session)
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing access token")
		return
	}
	respondWithJSON(w, http.StatusOK, principal)
}
