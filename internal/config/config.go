// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
)

type Config struct {
	Port         string `envconfig:"PORT" default:"8080"`
	StoreBackend string `envconfig:"STORE_BACKEND" default:"postgres"`
	DBURL        string `envconfig:"DB_URL"`
	// BADGER_PATH empty keeps the embedded store in memory
	BadgerPath string `envconfig:"BADGER_PATH" default:"data/badger"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	JWTIssuer string        `envconfig:"JWT_ISS" default:"skillxchange"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"168h"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	MaxContentLength int `envconfig:"MAX_CONTENT_LENGTH" default:"2000"`
	ClientBuffer     int `envconfig:"CLIENT_BUFFER" default:"64"`

	MessageRate       int           `envconfig:"MESSAGE_RATE" default:"30"`
	MessageRateWindow time.Duration `envconfig:"MESSAGE_RATE_WINDOW" default:"1m"`
	TypingRate        int           `envconfig:"TYPING_RATE" default:"20"`
	TypingRateWindow  time.Duration `envconfig:"TYPING_RATE_WINDOW" default:"10s"`
	HTTPRate          int           `envconfig:"HTTP_RATE" default:"300"`
	HTTPRateWindow    time.Duration `envconfig:"HTTP_RATE_WINDOW" default:"1m"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("internal/config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DBURL == "" {
			return errors.New("internal/config: DB_URL is required for the postgres backend")
		}
	case BackendBadger:
	default:
		return fmt.Errorf("internal/config: unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.JWTSecret == "" {
		return errors.New("internal/config: JWT_SECRET must not be empty")
	}
	if c.MaxContentLength <= 0 {
		return errors.New("internal/config: MAX_CONTENT_LENGTH must be positive")
	}
	return nil
}

func (c Config) Addr() string {
	return "0.0.0.0:" + c.Port
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
