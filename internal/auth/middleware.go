package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/restaurant-pos/internal/apperr"
)

// TokenFromRequest extracts the access token from the Authorization header,
// the token query parameter or the websocket subprotocol pair
// "access_token, <token>", in that order.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if protocols := r.Header.Get("Sec-WebSocket-Protocol"); protocols != "" {
		parts := strings.Split(protocols, ",")
		for i := 0; i+1 < len(parts); i++ {
			if strings.TrimSpace(parts[i]) == "access_token" {
				return strings.TrimSpace(parts[i+1])
			}
		}
	}
	return ""
}

// Middleware rejects requests without a valid token and stores the principal
// in the request context.
func Middleware(svc Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := svc.Authenticate(r.Context(), TokenFromRequest(r))
			if err != nil {
				if errors.Is(err, apperr.ErrUnauthorized) {
					writeError(w, http.StatusUnauthorized, Reason(err))
					return
				}
				log.Error().Err(err).Msg("auth: authentication failed")
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// Require answers 403 unless the principal in context holds capability c.
func Require(c Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing access token")
				return
			}
			if !p.Can(c) {
				writeError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Reason strips the sentinel suffix so only the client-safe part is returned.
func Reason(err error) string {
	return strings.TrimSuffix(err.Error(), ": "+apperr.ErrUnauthorized.Error())
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
