package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"

	"github.com/MimeLyc/clipscribe/internal/transcript"
)

// Config holds all application configuration.
// Supports environment variables with sensible defaults.
//
// Environment Variables:
// Fetch Configuration:
// - PREFERRED_LANGUAGE: transcript language to prefer, or "auto" (default: en)
// - ALLOW_AUTO_FALLBACK: fall back to auto-generated transcripts (default: true)
// - INCLUDE_TIMESTAMPS: prefix each segment with its start time (default: false)
//
// Cache Configuration:
// - CACHE_MAX_ENTRIES: maximum cached transcripts (default: 100)
// - DATA_DIR: data directory for index, blobs and settings
//   (default: <user config dir>/clipscribe)
//
// Watch Configuration:
// - WATCH_MODE: "poll" or "signal" (default: poll)
// - POLL_INTERVAL_MS: clipboard poll interval (default: 500)
//
// System Configuration:
// - LOG_LEVEL: debug/info/warn/error (default: info)
// - SWEEP_CRON: cron expression for cache consistency sweeps (default: 0 * * * *)
// - HTTP_ADDR: listen address for the local settings API, empty disables (default: 127.0.0.1:8731)
// - NOTIFICATIONS: desktop notifications on success/failure (default: true)

type Config struct {
	Fetch  FetchConfig  `json:"fetch"`
	Cache  CacheConfig  `json:"cache"`
	Watch  WatchConfig  `json:"watch"`
	System SystemConfig `json:"system"`
}

type FetchConfig struct {
	PreferredLanguage string `json:"preferred_language"`
	AllowAutoFallback bool   `json:"allow_auto_fallback"`
	IncludeTimestamps bool   `json:"include_timestamps"`
}

type CacheConfig struct {
	MaxEntries int    `json:"max_entries"`
	DataDir    string `json:"data_dir"`
}

type WatchConfig struct {
	Mode           string `json:"mode"`
	PollIntervalMS int    `json:"poll_interval_ms"`
}

type SystemConfig struct {
	LogLevel      string `json:"log_level"`
	SweepCronExpr string `json:"sweep_cron"`
	HTTPAddr      string `json:"http_addr"`
	Notifications bool   `json:"notifications"`
}

const (
	WatchModePoll   = "poll"
	WatchModeSignal = "signal"
)

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment
// variables and options.
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		Fetch: FetchConfig{
			PreferredLanguage: getEnvString("PREFERRED_LANGUAGE", "en"),
			AllowAutoFallback: getEnvBool("ALLOW_AUTO_FALLBACK", true),
			IncludeTimestamps: getEnvBool("INCLUDE_TIMESTAMPS", false),
		},
		Cache: CacheConfig{
			MaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 100),
			DataDir:    getEnvString("DATA_DIR", defaultDataDir()),
		},
		Watch: WatchConfig{
			Mode:           getEnvString("WATCH_MODE", WatchModePoll),
			PollIntervalMS: getEnvInt("POLL_INTERVAL_MS", 500),
		},
		System: SystemConfig{
			LogLevel:      getEnvString("LOG_LEVEL", "info"),
			SweepCronExpr: getEnvString("SWEEP_CRON", "0 * * * *"),
			HTTPAddr:      getEnvString("HTTP_ADDR", "127.0.0.1:8731"),
			Notifications: getEnvBool("NOTIFICATIONS", true),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ".clipscribe"
	}
	return filepath.Join(base, "clipscribe")
}

// DBPath is the location of the cache index database.
func (c *Config) DBPath() string {
	return filepath.Join(c.Cache.DataDir, "clipscribe.db")
}

// BlobDir is the directory holding one transcript blob per cache entry.
func (c *Config) BlobDir() string {
	return filepath.Join(c.Cache.DataDir, "transcripts")
}

// PollInterval returns the watch poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Watch.PollIntervalMS) * time.Millisecond
}

// FetchOptions converts the fetch configuration into pipeline options.
func (c *Config) FetchOptions() transcript.FetchOptions {
	return transcript.FetchOptions{
		PreferredLanguage: c.Fetch.PreferredLanguage,
		AllowAutoFallback: c.Fetch.AllowAutoFallback,
		IncludeTimestamps: c.Fetch.IncludeTimestamps,
	}
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.Fetch.PreferredLanguage != transcript.PreferredLanguageAuto {
		if _, err := language.Parse(c.Fetch.PreferredLanguage); err != nil {
			return fmt.Errorf("invalid PREFERRED_LANGUAGE %q: %w", c.Fetch.PreferredLanguage, err)
		}
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive")
	}
	if c.Watch.Mode != WatchModePoll && c.Watch.Mode != WatchModeSignal {
		return fmt.Errorf("invalid WATCH_MODE %q", c.Watch.Mode)
	}
	if c.Watch.PollIntervalMS <= 0 {
		return fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}
	if _, err := cron.ParseStandard(c.System.SweepCronExpr); err != nil {
		return fmt.Errorf("invalid SWEEP_CRON: %w", err)
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean value from environment variables with default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
