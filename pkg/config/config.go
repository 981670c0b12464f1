// Package config loads server configuration from environment variables.
// Configuration is read once at boot; invalid values abort startup.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Cache strategy names accepted by CACHE_STRATEGY.
const (
	StrategyTimeBased = "time-based"
	StrategyLRU       = "lru"
)

// Config holds the full server configuration.
type Config struct {
	// MCPPort is the HTTP listen port for the MCP surface.
	MCPPort int

	// MAASAPIURL is the upstream API root, e.g.
	// http://maas.example.com:5240/MAAS/api/2.0
	MAASAPIURL string
	// MAASAPIKey is the OAuth1 credential triple "consumer:token:secret".
	MAASAPIKey string
	// MAASAPITimeout bounds each upstream HTTP request.
	MAASAPITimeout time.Duration

	CacheEnabled  bool
	CacheStrategy string
	CacheMaxSize  int
	// CacheMaxAge is the default TTL for cache entries.
	CacheMaxAge time.Duration

	// HeartbeatInterval is the period between per-subscription heartbeats.
	HeartbeatInterval time.Duration
	// DisconnectTimeout is the grace period after the last subscriber
	// disconnects before the operation is cancelled.
	DisconnectTimeout time.Duration
	// EventBufferSize sizes the per-operation ring, the fan-out channel,
	// and subscription delivery channels.
	EventBufferSize int

	LogLevel slog.Level
}

// LoadFromEnv reads configuration from the process environment.
func LoadFromEnv() (Config, error) {
	cfg := Config{}

	port, err := intFromEnv("MCP_PORT", 3002)
	if err != nil {
		return Config{}, err
	}
	if port < 1 || port > 65535 {
		return Config{}, fmt.Errorf("invalid MCP_PORT: %d out of range", port)
	}
	cfg.MCPPort = port

	cfg.MAASAPIURL = strings.TrimRight(os.Getenv("MAAS_API_URL"), "/")
	if cfg.MAASAPIURL == "" {
		return Config{}, fmt.Errorf("MAAS_API_URL is required")
	}
	cfg.MAASAPIKey = os.Getenv("MAAS_API_KEY")
	if cfg.MAASAPIKey == "" {
		return Config{}, fmt.Errorf("MAAS_API_KEY is required")
	}
	if parts := strings.Split(cfg.MAASAPIKey, ":"); len(parts) != 3 {
		return Config{}, fmt.Errorf("invalid MAAS_API_KEY: expected consumer:token:secret")
	}

	apiTimeoutMS, err := intFromEnv("MAAS_API_TIMEOUT_MS", 30000)
	if err != nil {
		return Config{}, err
	}
	cfg.MAASAPITimeout = time.Duration(apiTimeoutMS) * time.Millisecond

	cfg.CacheEnabled, err = boolFromEnv("CACHE_ENABLED", true)
	if err != nil {
		return Config{}, err
	}

	cfg.CacheStrategy = getEnvOrDefault("CACHE_STRATEGY", StrategyTimeBased)
	if cfg.CacheStrategy != StrategyTimeBased && cfg.CacheStrategy != StrategyLRU {
		return Config{}, fmt.Errorf("invalid CACHE_STRATEGY: %q (want %q or %q)",
			cfg.CacheStrategy, StrategyTimeBased, StrategyLRU)
	}

	cfg.CacheMaxSize, err = intFromEnv("CACHE_MAX_SIZE", 1000)
	if err != nil {
		return Config{}, err
	}
	if cfg.CacheMaxSize < 1 {
		return Config{}, fmt.Errorf("invalid CACHE_MAX_SIZE: must be >= 1")
	}

	maxAgeSec, err := intFromEnv("CACHE_MAX_AGE", 300)
	if err != nil {
		return Config{}, err
	}
	if maxAgeSec < 0 {
		return Config{}, fmt.Errorf("invalid CACHE_MAX_AGE: must be >= 0")
	}
	cfg.CacheMaxAge = time.Duration(maxAgeSec) * time.Second

	heartbeatMS, err := intFromEnv("HEARTBEAT_INTERVAL_MS", 30000)
	if err != nil {
		return Config{}, err
	}
	if heartbeatMS < 1 {
		return Config{}, fmt.Errorf("invalid HEARTBEAT_INTERVAL_MS: must be >= 1")
	}
	cfg.HeartbeatInterval = time.Duration(heartbeatMS) * time.Millisecond

	disconnectMS, err := intFromEnv("DISCONNECT_TIMEOUT_MS", 30000)
	if err != nil {
		return Config{}, err
	}
	if disconnectMS < 1 {
		return Config{}, fmt.Errorf("invalid DISCONNECT_TIMEOUT_MS: must be >= 1")
	}
	cfg.DisconnectTimeout = time.Duration(disconnectMS) * time.Millisecond

	cfg.EventBufferSize, err = intFromEnv("EVENT_BUFFER_SIZE", 100)
	if err != nil {
		return Config{}, err
	}
	if cfg.EventBufferSize < 1 {
		return Config{}, fmt.Errorf("invalid EVENT_BUFFER_SIZE: must be >= 1")
	}

	cfg.LogLevel, err = logLevelFromEnv("LOG_LEVEL", slog.LevelInfo)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// MAASCredentials splits the API key triple into consumer key, token key and
// token secret. LoadFromEnv has already validated the shape.
func (c Config) MAASCredentials() (consumerKey, tokenKey, tokenSecret string) {
	parts := strings.SplitN(c.MAASAPIKey, ":", 3)
	return parts[0], parts[1], parts[2]
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func intFromEnv(key string, defaultVal int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func boolFromEnv(key string, defaultVal bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func logLevelFromEnv(key string, defaultVal slog.Level) (slog.Level, error) {
	switch raw := strings.ToLower(os.Getenv(key)); raw {
	case "":
		return defaultVal, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
}
