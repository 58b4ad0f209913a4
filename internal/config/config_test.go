package config_test

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/restaurant-pos/internal/config"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_NAME", "restaurant")
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoad_EnvOnly(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_PORT", "9090")
	t.Setenv("JWT_TTL", "1h")
	t.Setenv("DB_MAX_CONNS", "20")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://till-1.local, http://till-2.local")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, int32(20), cfg.Postgres.MaxConns)
	assert.Equal(t, []string{"http://till-1.local", "http://till-2.local"}, cfg.App.AllowedOrigins)
	assert.Equal(t, "none", cfg.Events.Sink)
	assert.Equal(t, "host=localhost port=5432 user=postgres password= dbname=restaurant sslmode=disable", cfg.Postgres.DSN())
}

func TestPostgresConfig_MigrateURL(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		password string
		want     string
	}{
		{name: "plain", user: "postgres", password: "secret", want: "pgx5://postgres:secret@db:5432/restaurant?sslmode=disable"},
		{name: "reserved_characters", user: "pos@till", password: "p@ss/w:rd?#", want: "pgx5://pos%40till:p%40ss%2Fw%3Ard%3F%23@db:5432/restaurant?sslmode=disable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.PostgresConfig{Host: "db", Port: "5432", User: tt.user, Password: tt.password, DBName: "restaurant", SSLMode: "disable"}

			got := cfg.MigrateURL()
			assert.Equal(t, tt.want, got)

			u, err := url.Parse(got)
			require.NoError(t, err)
			password, _ := u.User.Password()
			assert.Equal(t, tt.user, u.User.Username())
			assert.Equal(t, tt.password, password)
		})
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte(`
app:
  port: "7070"
postgres:
  host: db.internal
  user: pos
  dbname: pos
auth:
  jwt_secret: from-file
events:
  sink: kafka
  kafka_brokers: ["kafka:9092"]
`), 0o600)
	require.NoError(t, err)

	t.Setenv("APP_PORT", "6060")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "6060", cfg.App.Port, "env overrides the file")
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Events.KafkaBrokers)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T)
	}{
		{
			name:  "missing_required",
			setup: func(t *testing.T) { t.Setenv("DB_HOST", "localhost") },
		},
		{
			name: "bad_duration",
			setup: func(t *testing.T) {
				setRequiredEnv(t)
				t.Setenv("JWT_TTL", "forever")
			},
		},
		{
			name: "unknown_sink",
			setup: func(t *testing.T) {
				setRequiredEnv(t)
				t.Setenv("EVENTS_SINK", "carrier-pigeon")
			},
		},
		{
			name: "kafka_without_brokers",
			setup: func(t *testing.T) {
				setRequiredEnv(t)
				t.Setenv("EVENTS_SINK", "kafka")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"DB_HOST", "DB_USER", "DB_NAME", "JWT_SECRET", "EVENTS_SINK", "EVENTS_KAFKA_BROKERS"} {
				t.Setenv(key, "")
				os.Unsetenv(key)
			}
			tt.setup(t)

			_, err := config.Load("")
			assert.Error(t, err)
		})
	}
}
