package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/restaurant-pos/internal/config"
	"github.com/vasiliy-maslov/restaurant-pos/internal/db"
	"github.com/vasiliy-maslov/restaurant-pos/internal/events"
	"github.com/vasiliy-maslov/restaurant-pos/internal/hub"
	"github.com/vasiliy-maslov/restaurant-pos/internal/transport"
	pkgdb "github.com/vasiliy-maslov/restaurant-pos/pkg/db"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	setupLogger(cfg.App)
	log.Info().Msg("POS service starting...")

	ctx := context.Background()

	if err := db.Migrate(cfg.Postgres); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	pg, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pg.Close()

	catalogDB, err := pkgdb.Connect(pkgdb.Config{
		DSN:             cfg.Postgres.DSN(),
		MaxOpenConns:    int(cfg.Postgres.MaxConns),
		MaxIdleConns:    int(cfg.Postgres.MinConns),
		ConnMaxLifetime: cfg.Postgres.MaxConnLifetime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to reference database")
	}
	defer catalogDB.Close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, menu cache will fall back to the database")
		}
		defer redisClient.Close()
	}

	eventHub := hub.New(hub.ConfigFrom(cfg.Hub))

	sinks, err := eventSinks(cfg.Events)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up event sink")
	}
	fanout := events.NewFanout(eventHub, sinks...)
	defer fanout.Close()

	router := transport.NewRouter(transport.Deps{
		Config:    *cfg,
		Pool:      pg.Pool,
		Catalog:   catalogDB,
		Redis:     redisClient,
		Hub:       eventHub,
		Publisher: fanout,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}

func setupLogger(app config.AppConfig) {
	level, err := zerolog.ParseLevel(app.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if app.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", "pos-service").Logger()
}

func eventSinks(cfg config.EventsConfig) ([]events.Sink, error) {
	switch cfg.Sink {
	case "kafka":
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("Publishing events to Kafka")
		return []events.Sink{events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.PublishTimeout)}, nil
	case "rabbitmq":
		sink, err := events.DialRabbit(cfg.AMQPURL, cfg.AMQPExchange, cfg.PublishTimeout)
		if err != nil {
			return nil, err
		}
		log.Info().Str("exchange", cfg.AMQPExchange).Msg("Publishing events to RabbitMQ")
		return []events.Sink{sink}, nil
	default:
		return nil, nil
	}
}
