package app

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	APIBaseURL string // Required: base URL of the exam platform REST API
	EventsURL  string // Optional: websocket events endpoint (default: derived from APIBaseURL)

	StateDir  string // Optional: directory for local state (default: ~/.examdesk)
	StateFile string // Optional: shared state file name (default: state.json)
	KeyFile   string // Optional: encryption key file name (default: state.key)
	CacheFile string // Optional: notification cache database file name (default: cache.db)

	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: json)

	CheckInterval     time.Duration // Session expiry watch cadence (default: 60s)
	RefreshThreshold  time.Duration // Remaining token lifetime that triggers a refresh (default: 5m)
	HeartbeatInterval time.Duration // Channel liveness probe cadence (default: 30s)
	ReconnectDelay    time.Duration // Fixed wait before a channel reconnect (default: 5s)
	PollInterval      time.Duration // Notification polling fallback cadence (default: 30s)
	ToastTTL          time.Duration // In-app toast auto-dismiss delay (default: 5s)
}

func LoadConfig() Config {
	cfg := Config{
		APIBaseURL: os.Getenv("EXAMDESK_API_URL"),
		EventsURL:  os.Getenv("EXAMDESK_EVENTS_URL"), // Optional: derived when empty
		StateDir:   getEnvOrDefault("EXAMDESK_STATE_DIR", defaultStateDir()),
		StateFile:  getEnvOrDefault("EXAMDESK_STATE_FILE", "state.json"),
		KeyFile:    getEnvOrDefault("EXAMDESK_KEY_FILE", "state.key"),
		CacheFile:  getEnvOrDefault("EXAMDESK_CACHE_FILE", "cache.db"),

		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),

		CheckInterval:     getEnvDurationOrDefault("EXAMDESK_CHECK_INTERVAL", 60*time.Second),
		RefreshThreshold:  getEnvDurationOrDefault("EXAMDESK_REFRESH_THRESHOLD", 5*time.Minute),
		HeartbeatInterval: getEnvDurationOrDefault("EXAMDESK_HEARTBEAT_INTERVAL", 30*time.Second),
		ReconnectDelay:    getEnvDurationOrDefault("EXAMDESK_RECONNECT_DELAY", 5*time.Second),
		PollInterval:      getEnvDurationOrDefault("EXAMDESK_POLL_INTERVAL", 30*time.Second),
		ToastTTL:          getEnvDurationOrDefault("EXAMDESK_TOAST_TTL", 5*time.Second),
	}

	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:8080"
	}

	return cfg
}

// StatePath returns the absolute path of the shared state file.
func (c Config) StatePath() string { return filepath.Join(c.StateDir, c.StateFile) }

// KeyPath returns the absolute path of the encryption key file.
func (c Config) KeyPath() string { return filepath.Join(c.StateDir, c.KeyFile) }

// CachePath returns the absolute path of the cache database.
func (c Config) CachePath() string { return filepath.Join(c.StateDir, c.CacheFile) }

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".examdesk"
	}
	return filepath.Join(home, ".examdesk")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
