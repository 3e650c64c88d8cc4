/*
Package config loads server configuration from the environment.

PURPOSE:
  One place that names every knob the server understands, with defaults
  that run out of the box on an embedded SQLite database and no cache.

PRECEDENCE:
  DATABASE_URL set   -> PostgreSQL
  otherwise          -> SQLite at SQLITE_PATH
  REDIS_ADDR set     -> Redis follow-up cache
  otherwise          -> no caching
*/
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the full server configuration.
type Config struct {
	Port       string // HTTP listen port
	SQLitePath string // used when DatabaseURL is empty
	DatabaseURL string

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	FollowUpCacheTTL time.Duration

	AllowedOrigin string // CORS origin for browser clients
	LogLevel      string
}

// Load reads configuration from the environment, applying defaults.
func Load() Config {
	return Config{
		Port:             getEnv("PORT", "8080"),
		SQLitePath:       getEnv("SQLITE_PATH", "./data/procurement.db"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		FollowUpCacheTTL: time.Duration(getEnvInt("FOLLOWUP_CACHE_TTL_SECONDS", 30)) * time.Second,
		AllowedOrigin:    getEnv("ALLOWED_ORIGIN", "*"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
