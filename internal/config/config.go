package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Port            string        `yaml:"port"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	PublicURL       string        `yaml:"public_url"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

// DSN is the key/value connection string understood by both pgx and lib/pq.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// MigrateURL is the URL form golang-migrate's pgx5 driver expects, with the
// credentials escaped.
func (p PostgresConfig) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(p.Host, p.Port),
		Path:     "/" + p.DBName,
		RawQuery: url.Values{"sslmode": {p.SSLMode}}.Encode(),
	}
	return u.String()
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// RedisConfig is optional; an empty Addr disables the menu cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	MenuTTL  time.Duration `yaml:"menu_ttl"`
}

type EventsConfig struct {
	Sink           string        `yaml:"sink"` // none, kafka or rabbitmq
	KafkaBrokers   []string      `yaml:"kafka_brokers"`
	KafkaTopic     string        `yaml:"kafka_topic"`
	AMQPURL        string        `yaml:"amqp_url"`
	AMQPExchange   string        `yaml:"amqp_exchange"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

type HubConfig struct {
	SendBuffer     int           `yaml:"send_buffer"`
	PingPeriod     time.Duration `yaml:"ping_period"`
	WriteWait      time.Duration `yaml:"write_wait"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type Config struct {
	App      AppConfig      `yaml:"app"`
	Postgres PostgresConfig `yaml:"postgres"`
	Auth     AuthConfig     `yaml:"auth"`
	Redis    RedisConfig    `yaml:"redis"`
	Events   EventsConfig   `yaml:"events"`
	Hub      HubConfig      `yaml:"hub"`
}

// Default returns the configuration used when nothing overrides a field.
func Default() Config {
	return Config{
		App: AppConfig{
			Port:            "8080",
			LogLevel:        "info",
			LogFormat:       "json",
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Postgres: PostgresConfig{
			Port:            "5432",
			SSLMode:         "disable",
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
			MigrationsPath:  "migrations",
		},
		Auth: AuthConfig{
			TokenTTL: 12 * time.Hour,
		},
		Redis: RedisConfig{
			MenuTTL: 5 * time.Minute,
		},
		Events: EventsConfig{
			Sink:           "none",
			KafkaTopic:     "restaurant.events",
			AMQPExchange:   "restaurant.events",
			PublishTimeout: 3 * time.Second,
		},
		Hub: HubConfig{
			SendBuffer:     64,
			PingPeriod:     30 * time.Second,
			WriteWait:      10 * time.Second,
			MaxMessageSize: 4096,
		},
	}
}

// NewConfig loads .env (if present), then the YAML file named by CONFIG_FILE
// (if set), then applies environment variables on top.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return Load(os.Getenv("CONFIG_FILE"))
}

// Load builds a Config from defaults, an optional YAML file and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("invalid config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.Postgres.Host == "" {
		missing = append(missing, "DB_HOST")
	}
	if c.Postgres.User == "" {
		missing = append(missing, "DB_USER")
	}
	if c.Postgres.DBName == "" {
		missing = append(missing, "DB_NAME")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	switch c.Events.Sink {
	case "none", "kafka", "rabbitmq":
	default:
		return fmt.Errorf("unknown events sink %q", c.Events.Sink)
	}
	if c.Events.Sink == "kafka" && len(c.Events.KafkaBrokers) == 0 {
		return errors.New("EVENTS_KAFKA_BROKERS is required for the kafka sink")
	}
	if c.Events.Sink == "rabbitmq" && c.Events.AMQPURL == "" {
		return errors.New("EVENTS_AMQP_URL is required for the rabbitmq sink")
	}
	return nil
}

func applyEnv(c *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = splitList(v)
		}
	}

	str("APP_PORT", &c.App.Port)
	str("LOG_LEVEL", &c.App.LogLevel)
	str("LOG_FORMAT", &c.App.LogFormat)
	list("CORS_ALLOWED_ORIGINS", &c.App.AllowedOrigins)
	str("APP_PUBLIC_URL", &c.App.PublicURL)

	str("DB_HOST", &c.Postgres.Host)
	str("DB_PORT", &c.Postgres.Port)
	str("DB_USER", &c.Postgres.User)
	str("DB_PASSWORD", &c.Postgres.Password)
	str("DB_NAME", &c.Postgres.DBName)
	str("DB_SSLMODE", &c.Postgres.SSLMode)
	str("DB_MIGRATIONS_PATH", &c.Postgres.MigrationsPath)

	str("JWT_SECRET", &c.Auth.JWTSecret)

	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)

	str("EVENTS_SINK", &c.Events.Sink)
	list("EVENTS_KAFKA_BROKERS", &c.Events.KafkaBrokers)
	str("EVENTS_KAFKA_TOPIC", &c.Events.KafkaTopic)
	str("EVENTS_AMQP_URL", &c.Events.AMQPURL)
	str("EVENTS_AMQP_EXCHANGE", &c.Events.AMQPExchange)

	list("HUB_ALLOWED_ORIGINS", &c.Hub.AllowedOrigins)

	durations := map[string]*time.Duration{
		"APP_SHUTDOWN_TIMEOUT":   &c.App.ShutdownTimeout,
		"APP_REQUEST_TIMEOUT":    &c.App.RequestTimeout,
		"DB_MAX_CONN_LIFETIME":   &c.Postgres.MaxConnLifetime,
		"JWT_TTL":                &c.Auth.TokenTTL,
		"REDIS_MENU_TTL":         &c.Redis.MenuTTL,
		"EVENTS_PUBLISH_TIMEOUT": &c.Events.PublishTimeout,
		"HUB_PING_PERIOD":        &c.Hub.PingPeriod,
	}
	for key, dst := range durations {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
	}

	ints := map[string]func(int) {
		"DB_MAX_CONNS":    func(n int) { c.Postgres.MaxConns = int32(n) },
		"DB_MIN_CONNS":    func(n int) { c.Postgres.MinConns = int32(n) },
		"REDIS_DB":        func(n int) { c.Redis.DB = n },
		"HUB_SEND_BUFFER": func(n int) { c.Hub.SendBuffer = n },
	}
	for key, set := range ints {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		set(n)
	}

	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
