package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/restaurant-pos/internal/apperr"
	"github.com/vasiliy-maslov/restaurant-pos/internal/auth"
)

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		field := strings.SplitN(fe.Namespace(), ".", 2)
		name := fe.Field()
		if len(field) == 2 {
			name = field[1]
		}
		switch fe.Tag() {
		case "required":
			details[name] = "is required"
		case "min":
			details[name] = fmt.Sprintf("must have at least %s element(s)", fe.Param())
		case "max":
			details[name] = fmt.Sprintf("must be at most %s characters", fe.Param())
		case "oneof":
			details[name] = fmt.Sprintf("must be one of: %s", fe.Param())
		case "email":
			details[name] = "must be a valid email address"
		default:
			details[name] = fmt.Sprintf("failed on the '%s' rule", fe.Tag())
		}
	}
	return details
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondWithServiceError writes err in the shape its kind calls for.
// Internal failures are logged in full and answered with a generic message.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	code := mapErrorToStatusCode(err)
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msgf("Failed to %s", action)
		respondWithError(w, code, "Internal server error")
		return
	}
	log.Warn().Err(err).Str("path", r.URL.Path).Int("status", code).Msgf("Rejected %s", action)

	var fe *apperr.FieldError
	switch {
	case errors.As(err, &fe):
		respondWithJSON(w, code, ValidationErrorResponse{
			Error:   "Validation failed",
			Details: map[string]string{fe.Field: fe.Message},
		})
	case code == http.StatusUnauthorized:
		respondWithError(w, code, auth.Reason(err))
	default:
		respondWithError(w, code, err.Error())
	}
}

// decodeAndValidate reads a JSON body into dst and runs the struct rules.
// It answers the request itself and returns false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload: %v", err))
		return false
	}

	if err := v.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Error:   "Validation failed",
				Details: formatValidationErrors(validationErrors),
			})
			return false
		}
		log.Error().Err(err).Type("validation_error_type", err).Msg("Unexpected error type during validation")
		respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		return false
	}
	return true
}
