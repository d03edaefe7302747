package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"maestro/internal/applications"
)

// Record store backends
const (
	StoreAPI    = "api"
	StoreMongo  = "mongo"
	StoreSQLite = "sqlite"
)

type Config struct {
	Port     string
	LogLevel slog.Level

	RecordStore string
	APIBaseURL  string
	MongoURI    string
	MongoDB     string
	SQLitePath  string
	HTTPTimeout time.Duration

	IdentityURL    string
	IdentityAPIKey string
	SecureCookies  bool
	SessionTTL     time.Duration
	SessionSweep   time.Duration
	SyncInterval   time.Duration

	Flow applications.FlowConfig
}

// Load reads a .env file if present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, applying defaults.
func FromEnv(getenv func(string) string) (*Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	var errs []error
	duration := func(key string, def time.Duration) time.Duration {
		raw := env(key, "")
		if raw == "" {
			return def
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return def
		}
		return d
	}
	float := func(key string, def float64) float64 {
		raw := env(key, "")
		if raw == "" {
			return def
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f < 0 || f > 1 {
			errs = append(errs, fmt.Errorf("%s: want a fraction between 0 and 1, got %q", key, raw))
			return def
		}
		return f
	}
	integer := func(key string, def int) int {
		raw := env(key, "")
		if raw == "" {
			return def
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("%s: want a non-negative integer, got %q", key, raw))
			return def
		}
		return n
	}
	boolean := func(key string, def bool) bool {
		raw := env(key, "")
		if raw == "" {
			return def
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return def
		}
		return b
	}

	defFlow := applications.DefaultFlowConfig()
	cfg := &Config{
		Port:        env("PORT", "7521"),
		RecordStore: strings.ToLower(env("RECORD_STORE", StoreAPI)),
		APIBaseURL:  env("API_BASE_URL", "http://localhost:8000"),
		MongoURI:    env("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDB:     env("MONGODB_DATABASE", "maestro"),
		SQLitePath:  env("SQLITE_PATH", "maestro.sqlite"),
		HTTPTimeout: duration("HTTP_TIMEOUT", 15*time.Second),

		IdentityURL:    env("IDENTITY_URL", ""),
		IdentityAPIKey: env("IDENTITY_API_KEY", ""),
		SecureCookies:  boolean("SECURE_COOKIES", false),
		SessionTTL:     duration("SESSION_TTL", 24*time.Hour),
		SessionSweep:   duration("SESSION_SWEEP_INTERVAL", 10*time.Minute),
		SyncInterval:   duration("SYNC_INTERVAL", time.Minute),

		Flow: applications.FlowConfig{
			DirectRejectShare:    float("FLOW_DIRECT_REJECT_SHARE", defFlow.DirectRejectShare),
			InterviewRejectShare: float("FLOW_INTERVIEW_REJECT_SHARE", defFlow.InterviewRejectShare),
			MinEdgeWeight:        integer("FLOW_MIN_EDGE_WEIGHT", defFlow.MinEdgeWeight),
			ClampEmptyEdges:      boolean("FLOW_CLAMP_EMPTY_EDGES", defFlow.ClampEmptyEdges),
		},
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(env("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	switch cfg.RecordStore {
	case StoreAPI, StoreMongo, StoreSQLite:
	default:
		errs = append(errs, fmt.Errorf("RECORD_STORE: unknown backend %q (want api, mongo or sqlite)", cfg.RecordStore))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Anonymous reports whether the server runs without an identity provider
func (c *Config) Anonymous() bool { return c.IdentityURL == "" }
