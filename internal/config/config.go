package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mr1hm/go-live-alerts/internal/logging"
)

type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Store     StoreConfig
	Ingestion IngestionConfig
	Severity  SeverityConfig
	Seismic   SeismicConfig
	River     RiverConfig
	Realtime  RealtimeConfig
	Relay     RelayConfig
	Export    ExportConfig
}

type ServerConfig struct {
	Host      string
	Port      int
	RateLimit int // requests per second across all clients
}

type LoggingConfig struct {
	Level string
}

type StoreConfig struct {
	Backend string // "sqlite", "pebble" or "memory"
	Path    string
	Key     string
}

type IngestionConfig struct {
	MaxEvents       int
	DedupMaxAge     time.Duration
	DedupMaxEntries int
}

type SeverityConfig struct {
	QuakeMedium float64
	QuakeHigh   float64
	FloodMedium float64
	FloodHigh   float64
}

type SeismicConfig struct {
	Enabled      bool
	URL          string
	PollInterval time.Duration
	Window       time.Duration
	Limit        int
	Timeout      time.Duration
}

type RiverConfig struct {
	Enabled      bool
	URL          string
	PollInterval time.Duration
	Timeout      time.Duration
}

type RealtimeConfig struct {
	Enabled   bool
	RedisAddr string
	Channel   string
	TokenURL  string
	Token     string        // credential handed out by the token endpoint
	TokenTTL  time.Duration // lifetime advertised with Token
}

type RelayConfig struct {
	Enabled    bool
	URL        string
	Workers    int
	BufferSize int
	Timeout    time.Duration
}

type ExportConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:      getEnv("SERVER_HOST", "localhost"),
			Port:      getEnvInt("SERVER_PORT", 8080),
			RateLimit: getEnvInt("RATE_LIMIT_RPS", 5),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Store: StoreConfig{
			Backend: getEnv("STORE_BACKEND", "sqlite"),
			Path:    getEnv("STORE_PATH", "./data/live-alerts.db"),
			Key:     getEnv("STORE_SEEN_KEY", "live-alerts:seen-ids"),
		},
		Ingestion: IngestionConfig{
			MaxEvents:       getEnvInt("MAX_EVENTS", 200),
			DedupMaxAge:     getEnvDuration("DEDUP_MAX_AGE", 7*24*time.Hour),
			DedupMaxEntries: getEnvInt("DEDUP_MAX_ENTRIES", 500),
		},
		Severity: SeverityConfig{
			QuakeMedium: getEnvFloat("SEVERITY_QUAKE_MEDIUM", 4),
			QuakeHigh:   getEnvFloat("SEVERITY_QUAKE_HIGH", 6),
			FloodMedium: getEnvFloat("SEVERITY_FLOOD_MEDIUM", 2000),
			FloodHigh:   getEnvFloat("SEVERITY_FLOOD_HIGH", 5000),
		},
		Seismic: SeismicConfig{
			Enabled:      getEnvBool("SEISMIC_ENABLED", true),
			URL:          getEnv("SEISMIC_URL", "https://earthquake.usgs.gov/fdsnws/event/1/query"),
			PollInterval: getEnvDuration("SEISMIC_POLL_INTERVAL", time.Minute),
			Window:       getEnvDuration("SEISMIC_WINDOW", 6*time.Hour),
			Limit:        getEnvInt("SEISMIC_LIMIT", 200),
			Timeout:      getEnvDuration("SEISMIC_TIMEOUT", 15*time.Second),
		},
		River: RiverConfig{
			Enabled:      getEnvBool("RIVER_ENABLED", true),
			URL:          getEnv("RIVER_URL", "https://flood-api.open-meteo.com/v1/flood"),
			PollInterval: getEnvDuration("RIVER_POLL_INTERVAL", 30*time.Minute),
			Timeout:      getEnvDuration("RIVER_TIMEOUT", 15*time.Second),
		},
		Realtime: RealtimeConfig{
			Enabled:   getEnvBool("REALTIME_ENABLED", true),
			RedisAddr: getEnv("REALTIME_REDIS_ADDR", "localhost:6379"),
			Channel:   getEnv("REALTIME_CHANNEL", "disaster-alerts"),
			TokenURL:  getEnv("REALTIME_TOKEN_URL", ""),
			Token:     getEnv("REALTIME_TOKEN", ""),
			TokenTTL:  getEnvDuration("REALTIME_TOKEN_TTL", time.Hour),
		},
		Relay: RelayConfig{
			Enabled:    getEnvBool("RELAY_ENABLED", true),
			URL:        getEnv("RELAY_URL", "http://localhost:8080/api/broadcast"),
			Workers:    getEnvInt("RELAY_WORKERS", 2),
			BufferSize: getEnvInt("RELAY_BUFFER_SIZE", 256),
			Timeout:    getEnvDuration("RELAY_TIMEOUT", 10*time.Second),
		},
		Export: ExportConfig{
			KafkaBrokers: getEnvList("EXPORT_KAFKA_BROKERS"),
			KafkaTopic:   getEnv("EXPORT_KAFKA_TOPIC", "disaster-events"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimit < 1 {
		return fmt.Errorf("rate limit must be at least 1 req/s")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	switch c.Store.Backend {
	case "sqlite", "pebble", "memory":
	default:
		return fmt.Errorf("invalid store backend: %s", c.Store.Backend)
	}

	if c.Ingestion.MaxEvents < 1 {
		return fmt.Errorf("max events must be positive")
	}
	if c.Ingestion.DedupMaxEntries < 1 {
		return fmt.Errorf("dedup max entries must be positive")
	}
	if c.Ingestion.DedupMaxAge <= 0 {
		return fmt.Errorf("dedup max age must be positive")
	}

	if c.Severity.QuakeMedium > c.Severity.QuakeHigh {
		return fmt.Errorf("earthquake medium threshold exceeds high threshold")
	}
	if c.Severity.FloodMedium > c.Severity.FloodHigh {
		return fmt.Errorf("flood medium threshold exceeds high threshold")
	}

	if c.Seismic.PollInterval < time.Minute {
		return fmt.Errorf("seismic poll interval must be at least 1 minute")
	}
	if c.Seismic.Window <= 0 {
		return fmt.Errorf("seismic window must be positive")
	}
	if c.Seismic.Limit < 1 {
		return fmt.Errorf("seismic limit must be positive")
	}
	if c.River.PollInterval < time.Minute {
		return fmt.Errorf("river poll interval must be at least 1 minute")
	}

	if c.Realtime.Enabled && c.Realtime.Channel == "" {
		return fmt.Errorf("realtime channel is required when realtime is enabled")
	}
	if c.Relay.Enabled && c.Relay.URL == "" {
		return fmt.Errorf("relay URL is required when relay is enabled")
	}
	if c.Relay.Enabled && c.Seismic.Enabled && c.Relay.BufferSize < c.Seismic.Limit {
		return fmt.Errorf("relay buffer size must hold one seismic poll (%d events)", c.Seismic.Limit)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
