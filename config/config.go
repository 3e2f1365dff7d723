/*
Package config loads runtime configuration and constructs the logger.

PURPOSE:
  Environment variables (loaded from .env when present) cover secrets and
  deployment knobs; command-line flags cover the port and database path.

ENVIRONMENT:
  LEDGER_SHARE_SECRET     HMAC secret for share-link tokens (required in
                          production; a random secret is generated when
                          absent, which invalidates links across restarts)
  LEDGER_RETENTION_DAYS   retention window for the purge sweep (default 3)
  LOG_LEVEL               logrus level string (default "info")
  LOG_FORMAT              "json" for JSON output, anything else for text
  BASE_URL                public base URL for share links

SEE ALSO:
  - cmd/server/main.go: flag parsing and wiring
*/
package config

import (
	"crypto/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const defaultRetentionDays = 3

// Config is the environment-derived runtime configuration.
type Config struct {
	ShareSecret []byte
	Retention   time.Duration
	BaseURL     string
	LogLevel    string
	LogFormat   string
}

// Load reads .env (if present) and the process environment.
func Load() Config {
	godotenv.Load()

	cfg := Config{
		ShareSecret: []byte(os.Getenv("LEDGER_SHARE_SECRET")),
		Retention:   time.Duration(intFromEnv("LEDGER_RETENTION_DAYS", defaultRetentionDays)) * 24 * time.Hour,
		BaseURL:     strings.TrimRight(os.Getenv("BASE_URL"), "/"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		LogFormat:   os.Getenv("LOG_FORMAT"),
	}
	if len(cfg.ShareSecret) == 0 {
		cfg.ShareSecret = randomSecret()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	return cfg
}

// NewLogger builds a logrus logger honoring LOG_LEVEL and LOG_FORMAT.
func NewLogger(cfg Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if strings.EqualFold(cfg.LogFormat, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func randomSecret() []byte {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("failed to generate share secret: " + err.Error())
	}
	return b
}
