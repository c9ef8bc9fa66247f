package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"

	"github.com/MimeLyc/clipscribe/internal/transcript"
)

const runtimeSettingsFileName = "settings.json"

// RuntimeSettings are the knobs the settings UI may change while the
// daemon runs. They carry the FetchOptions contract plus cache and watch
// tuning.
type RuntimeSettings struct {
	PreferredLanguage string `json:"preferred_language"`
	AllowAutoFallback bool   `json:"allow_auto_fallback"`
	IncludeTimestamps bool   `json:"include_timestamps"`
	CacheMaxEntries   int    `json:"cache_max_entries"`
	PollIntervalMS    int    `json:"poll_interval_ms"`
	SweepCronExpr     string `json:"sweep_cron"`
}

// RuntimeSettingsFilePath is where settings live inside the data directory.
func (c *Config) RuntimeSettingsFilePath() string {
	return filepath.Join(c.Cache.DataDir, runtimeSettingsFileName)
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.PreferredLanguage) == "" {
		return fmt.Errorf("preferred_language is required")
	}
	if s.PreferredLanguage != transcript.PreferredLanguageAuto {
		if _, err := language.Parse(s.PreferredLanguage); err != nil {
			return fmt.Errorf("invalid preferred_language: %w", err)
		}
	}
	if s.CacheMaxEntries <= 0 {
		return fmt.Errorf("cache_max_entries must be positive")
	}
	if s.PollIntervalMS <= 0 {
		return fmt.Errorf("poll_interval_ms must be positive")
	}
	if strings.TrimSpace(s.SweepCronExpr) == "" {
		return fmt.Errorf("sweep_cron is required")
	}
	if _, err := cron.ParseStandard(s.SweepCronExpr); err != nil {
		return fmt.Errorf("invalid sweep_cron: %w", err)
	}
	return nil
}

// FetchOptions converts the settings into pipeline options.
func (s RuntimeSettings) FetchOptions() transcript.FetchOptions {
	return transcript.FetchOptions{
		PreferredLanguage: s.PreferredLanguage,
		AllowAutoFallback: s.AllowAutoFallback,
		IncludeTimestamps: s.IncludeTimestamps,
	}
}

// RuntimeSettings derives the initial settings from the startup config.
func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		PreferredLanguage: c.Fetch.PreferredLanguage,
		AllowAutoFallback: c.Fetch.AllowAutoFallback,
		IncludeTimestamps: c.Fetch.IncludeTimestamps,
		CacheMaxEntries:   c.Cache.MaxEntries,
		PollIntervalMS:    c.Watch.PollIntervalMS,
		SweepCronExpr:     c.System.SweepCronExpr,
	}
}

// WithRuntimeSettings overlays persisted settings onto an env-derived config.
func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if strings.TrimSpace(settings.PreferredLanguage) != "" {
			c.Fetch.PreferredLanguage = settings.PreferredLanguage
		}
		c.Fetch.AllowAutoFallback = settings.AllowAutoFallback
		c.Fetch.IncludeTimestamps = settings.IncludeTimestamps
		if settings.CacheMaxEntries > 0 {
			c.Cache.MaxEntries = settings.CacheMaxEntries
		}
		if settings.PollIntervalMS > 0 {
			c.Watch.PollIntervalMS = settings.PollIntervalMS
		}
		if strings.TrimSpace(settings.SweepCronExpr) != "" {
			c.System.SweepCronExpr = settings.SweepCronExpr
		}
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// RuntimeSettingsStore serializes reads and updates of the settings file.
type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}
