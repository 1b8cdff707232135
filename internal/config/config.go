package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Defaults used when a field is missing from config.toml.
const (
	DefaultProfile           = "main"
	DefaultAPIBaseURL        = "https://api.meeple.app"
	DefaultRealtimeURL       = "wss://api.meeple.app"
	DefaultChatNamespace     = "/chat"
	DefaultAPITimeout        = 15 * time.Second
	DefaultMaxRPS            = 10
	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = time.Second
	DefaultReconnectDelayMax = 5 * time.Second
	DefaultLogLevel          = "info"
	DefaultCacheTTL          = 2 * time.Minute
)

// Config represents the global ~/.meeple/config.toml.
type Config struct {
	DefaultProfile string         `toml:"default_profile"`
	API            APIConfig      `toml:"api"`
	Realtime       RealtimeConfig `toml:"realtime"`
	Cache          CacheConfig    `toml:"cache"`
	Log            LogConfig      `toml:"log"`
}

// APIConfig holds the REST backend origin and client limits.
type APIConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout Duration `toml:"timeout"`
	MaxRPS  float64  `toml:"max_rps"`
}

// RealtimeConfig holds the WebSocket origin and reconnection policy.
type RealtimeConfig struct {
	URL               string   `toml:"url"`
	ChatNamespace     string   `toml:"chat_namespace"`
	ReconnectAttempts int      `toml:"reconnect_attempts"`
	ReconnectDelay    Duration `toml:"reconnect_delay"`
	ReconnectDelayMax Duration `toml:"reconnect_delay_max"`
}

// CacheConfig holds how long fetched views (feed, events, friends) stay fresh.
type CacheConfig struct {
	TTL Duration `toml:"ttl"`
}

// LogConfig holds the log level (debug, info, warn, error).
type LogConfig struct {
	Level string `toml:"level"`
}

// Duration is a time.Duration that round-trips through TOML as "15s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns a config with every field populated.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.DefaultProfile == "" {
		c.DefaultProfile = DefaultProfile
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultAPIBaseURL
	}
	if c.API.Timeout.Duration <= 0 {
		c.API.Timeout.Duration = DefaultAPITimeout
	}
	if c.API.MaxRPS <= 0 {
		c.API.MaxRPS = DefaultMaxRPS
	}
	if c.Realtime.URL == "" {
		c.Realtime.URL = DefaultRealtimeURL
	}
	if c.Realtime.ChatNamespace == "" {
		c.Realtime.ChatNamespace = DefaultChatNamespace
	}
	if c.Realtime.ReconnectAttempts <= 0 {
		c.Realtime.ReconnectAttempts = DefaultReconnectAttempts
	}
	if c.Realtime.ReconnectDelay.Duration <= 0 {
		c.Realtime.ReconnectDelay.Duration = DefaultReconnectDelay
	}
	if c.Realtime.ReconnectDelayMax.Duration <= 0 {
		c.Realtime.ReconnectDelayMax.Duration = DefaultReconnectDelayMax
	}
	if c.Realtime.ReconnectDelayMax.Duration < c.Realtime.ReconnectDelay.Duration {
		c.Realtime.ReconnectDelayMax = c.Realtime.ReconnectDelay
	}
	if c.Cache.TTL.Duration <= 0 {
		c.Cache.TTL.Duration = DefaultCacheTTL
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Load reads config from the given path. Missing fields take their defaults.
// Returns an error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadOrDefault behaves like Load but returns Default() when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Environment variables that override config.toml.
const (
	EnvAPIURL      = "MEEPLE_API_URL"
	EnvRealtimeURL = "MEEPLE_REALTIME_URL"
	EnvLogLevel    = "MEEPLE_LOG_LEVEL"
)

// ApplyEnv overrides fields from the process environment, falling back to the
// variables in dotenvPath when it exists. Process variables win.
func (c *Config) ApplyEnv(dotenvPath string) error {
	file := map[string]string{}
	if dotenvPath != "" {
		vals, err := godotenv.Read(dotenvPath)
		switch {
		case err == nil:
			file = vals
		case !errors.Is(err, fs.ErrNotExist):
			return err
		}
	}
	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v
		}
		return file[key]
	}
	if v := lookup(EnvAPIURL); v != "" {
		c.API.BaseURL = v
	}
	if v := lookup(EnvRealtimeURL); v != "" {
		c.Realtime.URL = v
	}
	if v := lookup(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	return nil
}
