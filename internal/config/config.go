// Package config loads server configuration from the environment,
// with optional .env file support for local development.
package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Config holds the server settings.
type Config struct {
	Addr         string
	DBPath       string
	JWTSecret    string
	AMQPURL      string
	AMQPExchange string
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first if present; real environment
// variables take precedence over it.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	cfg := Config{
		Addr:         env("LENDHUB_ADDR", ":8080"),
		DBPath:       env("LENDHUB_DB_PATH", "lendhub.sqlite3"),
		JWTSecret:    env("LENDHUB_JWT_SECRET", ""),
		AMQPURL:      env("LENDHUB_AMQP_URL", ""),
		AMQPExchange: env("LENDHUB_AMQP_EXCHANGE", "lendhub.notifications"),
	}
	return cfg
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
