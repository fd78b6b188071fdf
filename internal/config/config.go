package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultModel           = "gpt-4o-mini"
	DefaultMaxTokens       = 300
	DefaultTemperature     = 0.85
	DefaultMemoryWindow    = 20
	DefaultMaxInboundChars = 1500
	DefaultBufSize         = 100

	DefaultEngageSweep       = "10m"
	DefaultEngageIdleGap     = "30m"
	DefaultEngageMinInterval = "2h"
	DefaultSessionSweep      = "1h"
	DefaultSessionTTL        = "168h"
)

type Config struct {
	Provider ProviderConfig `json:"provider"`
	Agent    AgentConfig    `json:"agent"`
	Channels ChannelsConfig `json:"channels"`
	Engage   EngageConfig   `json:"engage"`
	Session  SessionConfig  `json:"session"`
	DBPath   string         `json:"dbPath,omitempty"`
}

type ProviderConfig struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type AgentConfig struct {
	Model           string  `json:"model"`
	MaxTokens       int     `json:"maxTokens"`
	Temperature     float64 `json:"temperature"`
	MemoryWindow    int     `json:"memoryWindow"`
	MaxInboundChars int     `json:"maxInboundChars"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

type EngageConfig struct {
	Enabled     bool   `json:"enabled"`
	Sweep       string `json:"sweep,omitempty"`
	IdleGap     string `json:"idleGap,omitempty"`
	MinInterval string `json:"minInterval,omitempty"`
}

type SessionConfig struct {
	Sweep string `json:"sweep,omitempty"`
	TTL   string `json:"ttl,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{},
		Agent: AgentConfig{
			Model:           DefaultModel,
			MaxTokens:       DefaultMaxTokens,
			Temperature:     DefaultTemperature,
			MemoryWindow:    DefaultMemoryWindow,
			MaxInboundChars: DefaultMaxInboundChars,
		},
		Channels: ChannelsConfig{},
		Engage: EngageConfig{
			Enabled:     true,
			Sweep:       DefaultEngageSweep,
			IdleGap:     DefaultEngageIdleGap,
			MinInterval: DefaultEngageMinInterval,
		},
		Session: SessionConfig{
			Sweep: DefaultSessionSweep,
			TTL:   DefaultSessionTTL,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".mio")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func DataDir() string {
	return filepath.Join(ConfigDir(), "data")
}

func LoadConfig() (*Config, error) {
	return LoadConfigFrom(ConfigPath())
}

func LoadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("MIO_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if url := os.Getenv("MIO_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" && cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("MIO_MODEL"); model != "" {
		cfg.Agent.Model = model
	}
	if token := os.Getenv("MIO_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
		cfg.Channels.Telegram.Enabled = true
	}

	return cfg, nil
}

func (c *Config) Save() error {
	return c.SaveTo(ConfigPath())
}

func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Duration parses a config duration string, falling back when the value is
// empty or malformed.
func Duration(value, fallback string) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	d, err := time.ParseDuration(fallback)
	if err != nil {
		return time.Hour
	}
	return d
}
