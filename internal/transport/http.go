package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/restaurant-pos/internal/auth"
	"github.com/vasiliy-maslov/restaurant-pos/internal/catalog"
	"github.com/vasiliy-maslov/restaurant-pos/internal/config"
	"github.com/vasiliy-maslov/restaurant-pos/internal/events"
	httpHandler "github.com/vasiliy-maslov/restaurant-pos/internal/handler/http"
	"github.com/vasiliy-maslov/restaurant-pos/internal/hub"
	"github.com/vasiliy-maslov/restaurant-pos/internal/order"
	"github.com/vasiliy-maslov/restaurant-pos/internal/payment"
)

// Deps are the long-lived resources the router wires services from.
// Redis is optional.
type Deps struct {
	Config    config.Config
	Pool      *pgxpool.Pool
	Catalog   *sqlx.DB
	Redis     *redis.Client
	Hub       *hub.Hub
	Publisher events.Publisher
}

func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   d.Config.App.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler)

	r.Get("/health", healthHandler(d.Pool))

	catalogRepo := catalog.NewRepository(d.Catalog)
	var menu catalog.MenuReader = catalogRepo
	var menuCache httpHandler.MenuInvalidator
	if d.Redis != nil {
		cached := catalog.NewCachedMenu(catalogRepo, d.Redis, d.Config.Redis.MenuTTL)
		menu, menuCache = cached, cached
	}

	authSvc := auth.NewService(catalogRepo, auth.NewTokens(d.Config.Auth.JWTSecret, d.Config.Auth.TokenTTL))
	orderSvc := order.NewService(order.NewRepository(d.Pool), menu, d.Publisher)
	paymentSvc := payment.NewService(payment.NewRepository(d.Pool), d.Publisher, payment.ReceiptQR{BaseURL: d.Config.App.PublicURL})

	authHandler := httpHandler.NewAuthHandler(authSvc)

	// Hijacked by the upgrade, so kept out of the timeout and access log.
	r.Get("/ws", d.Hub.ServeWS(authSvc))

	r.Group(func(api chi.Router) {
		api.Use(hlog.NewHandler(log.Logger))
		api.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("HTTP request")
		}))
		if d.Config.App.RequestTimeout > 0 {
			api.Use(middleware.Timeout(d.Config.App.RequestTimeout))
		}

		authHandler.RegisterPublicRoutes(api)

		api.Group(func(private chi.Router) {
			private.Use(auth.Middleware(authSvc))

			authHandler.RegisterRoutes(private)
			httpHandler.NewOrderHandler(orderSvc).RegisterRoutes(private)
			httpHandler.NewPaymentHandler(paymentSvc).RegisterRoutes(private)
			httpHandler.NewEventHandler(d.Publisher, menuCache).RegisterRoutes(private)
		})
	})

	return r
}

func healthHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("Health check failed")
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("OK"))
	}
}
