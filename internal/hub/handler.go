package hub

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/restaurant-pos/internal/apperr"
	"github.com/vasiliy-maslov/restaurant-pos/internal/auth"
	"github.com/vasiliy-maslov/restaurant-pos/internal/events"
)

type connectedPayload struct {
	Principal auth.Principal `json:"principal"`
	Manager   bool           `json:"manager"`
	Rooms     []string       `json:"rooms"`
}

func (h *Hub) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// Browsers pass the token as the subprotocol pair "access_token, <jwt>".
		Subprotocols: []string{"access_token"},
		CheckOrigin:  h.checkOrigin,
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

// ServeWS admits a connection only after its token resolves to a current user;
// refused connections never reach the upgrade and join no room.
func (h *Hub) ServeWS(authSvc auth.Service) http.HandlerFunc {
	up := h.upgrader()

	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := authSvc.Authenticate(r.Context(), auth.TokenFromRequest(r))
		if err != nil {
			if errors.Is(err, apperr.ErrUnauthorized) {
				log.Warn().Str("reason", auth.Reason(err)).Str("remote", r.RemoteAddr).Msg("hub: connection refused")
				refuse(w, http.StatusUnauthorized, auth.Reason(err))
				return
			}
			log.Error().Err(err).Msg("hub: failed to authenticate connection")
			refuse(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Stringer("user_id", principal.Subject).Msg("hub: websocket upgrade failed")
			return
		}

		c := newClient(h, conn, principal)
		rooms := append([]string(nil), events.GlobalRooms...)
		if principal.IsManager() {
			rooms = append(rooms, events.RoomManagers)
		}
		for _, room := range rooms {
			h.Join(c, room)
		}
		c.reply(eventConnected, connectedPayload{Principal: principal, Manager: principal.IsManager(), Rooms: rooms})

		log.Info().Stringer("user_id", principal.Subject).Bool("manager", principal.IsManager()).Msg("hub: connection admitted")

		go c.writePump()
		c.readPump()
	}
}

func refuse(w http.ResponseWriter, code int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": reason})
}
