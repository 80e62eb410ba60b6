package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"clinichire.app/scout/core/db"
)

type Config struct {
	OTel         OTelConfig
	Extract      ExtractConfig
	Fetch        FetchConfig
	Events       EventsConfig
	Env          string
	Port         string
	DashboardURL string
	APIKey       string
	DB           db.Config
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
	Environment    string  // mirrors Config.Env
	SampleRatio    float64 // share of non-extraction root traces kept
}

type LLMConfig struct {
	Provider string // "openai", "anthropic" or "gemini"
	APIKey   string
	BaseURL  string // Optional: for custom endpoints
	Model    string
	Timeout  time.Duration
}

type ExtractConfig struct {
	LLM                LLMConfig
	DegradeOnFailure   bool
	PositionMaxChars   int
	CompetitorMaxChars int
}

type FetchConfig struct {
	Timeout           time.Duration
	MaxBytes          int64
	UserAgent         string
	AllowPrivateHosts bool
}

// EventsConfig covers the extraction event stream. The server publishes to
// it; the worker drains it into Postgres.
type EventsConfig struct {
	RedisURL       string
	RedisStream    string
	RedisGroup     string
	RedisConsumer  string
	RedisDLQStream string
	MaxAttempts    int
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeWorker ServiceType = "worker"
	ServiceTypeCLI    ServiceType = "cli"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.server for the API server
//   - .env.worker for the event worker
//   - .env.cli for the extract command
//
// Falls back to .env if service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("SCOUT_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:          getEnv("SCOUT_ENV", "development"),
		Port:         getEnv("PORT", "8080"),
		DashboardURL: getEnv("DASHBOARD_URL", "http://localhost:3000"),
		APIKey:       getEnv("API_KEY", ""),
		DB: db.Config{
			DSN:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 5),
			MinConns: getEnvInt32("DB_MIN_CONNS", 1),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "scout"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			SampleRatio:    getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
		Extract: ExtractConfig{
			LLM: LLMConfig{
				Provider: getEnv("EXTRACT_LLM_PROVIDER", "openai"),
				APIKey:   getEnv("EXTRACT_LLM_API_KEY", ""),
				BaseURL:  getEnv("EXTRACT_LLM_BASE_URL", ""),
				Model:    getEnv("EXTRACT_LLM_MODEL", ""),
				Timeout:  getEnvDuration("EXTRACT_LLM_TIMEOUT", 60*time.Second),
			},
			DegradeOnFailure:   getEnvBool("EXTRACT_DEGRADE_ON_FAILURE", true),
			PositionMaxChars:   getEnvInt("EXTRACT_POSITION_MAX_CHARS", 8000),
			CompetitorMaxChars: getEnvInt("EXTRACT_COMPETITOR_MAX_CHARS", 10000),
		},
		Fetch: FetchConfig{
			Timeout:           getEnvDuration("FETCH_TIMEOUT", 15*time.Second),
			MaxBytes:          int64(getEnvInt("FETCH_MAX_BYTES", 5<<20)),
			UserAgent:         getEnv("FETCH_USER_AGENT", ""),
			AllowPrivateHosts: getEnvBool("FETCH_ALLOW_PRIVATE_HOSTS", false),
		},
		Events: EventsConfig{
			RedisURL:       getEnv("REDIS_URL", ""),
			RedisStream:    getEnv("EXTRACTION_EVENT_STREAM", "scout_extractions"),
			RedisGroup:     getEnv("EXTRACTION_EVENT_GROUP", "scout_run_log"),
			RedisConsumer:  getEnv("EXTRACTION_EVENT_CONSUMER", hostname()),
			RedisDLQStream: getEnv("EXTRACTION_EVENT_DLQ_STREAM", "scout_extractions_dlq"),
			MaxAttempts:    getEnvInt("EXTRACTION_EVENT_MAX_ATTEMPTS", 5),
		},
	}

	cfg.OTel.Environment = cfg.Env

	if cfg.OTel.SampleRatio < 0 || cfg.OTel.SampleRatio > 1 {
		return Config{}, fmt.Errorf("OTEL_TRACES_SAMPLER_ARG must be between 0 and 1")
	}

	if cfg.Extract.PositionMaxChars <= 0 || cfg.Extract.CompetitorMaxChars <= 0 {
		return Config{}, fmt.Errorf("EXTRACT_POSITION_MAX_CHARS and EXTRACT_COMPETITOR_MAX_CHARS must be positive")
	}

	if serviceType == ServiceTypeWorker && (!cfg.Events.Enabled() || !cfg.DB.Enabled()) {
		return Config{}, fmt.Errorf("REDIS_URL and DATABASE_URL are required for the worker")
	}

	if serviceType == ServiceTypeServer && cfg.IsProduction() && cfg.APIKey == "" {
		return Config{}, fmt.Errorf("API_KEY is required in production")
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Enabled reports whether live inference is configured; without a key the
// service runs in demo mode.
func (c LLMConfig) Enabled() bool {
	return c.APIKey != ""
}

func (c EventsConfig) Enabled() bool {
	return c.RedisURL != ""
}

func hostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "scout-worker"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("15s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if s, err := strconv.Atoi(value); err == nil && s > 0 {
		return time.Duration(s) * time.Second
	}
	return fallback
}
