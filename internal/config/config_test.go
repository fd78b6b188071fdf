package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Agent.Model != DefaultModel {
		t.Fatalf("expected default model %q, got %q", DefaultModel, cfg.Agent.Model)
	}
	if cfg.Agent.Temperature != DefaultTemperature {
		t.Fatalf("expected temperature %v, got %v", DefaultTemperature, cfg.Agent.Temperature)
	}
	if cfg.Agent.MaxTokens != DefaultMaxTokens {
		t.Fatalf("expected max tokens %d, got %d", DefaultMaxTokens, cfg.Agent.MaxTokens)
	}
	if !cfg.Engage.Enabled {
		t.Fatalf("expected proactive engagement enabled by default")
	}
}

func TestLoadConfigFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigFrom(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadConfigFrom error: %v", err)
	}
	if cfg.Agent.Model != DefaultModel {
		t.Fatalf("expected defaults for missing file")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"agent":{"model":"my-model","maxTokens":123},"channels":{"telegram":{"enabled":true,"token":"tok"}}}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom error: %v", err)
	}
	if cfg.Agent.Model != "my-model" {
		t.Fatalf("expected model override, got %q", cfg.Agent.Model)
	}
	if cfg.Agent.MaxTokens != 123 {
		t.Fatalf("expected maxTokens override, got %d", cfg.Agent.MaxTokens)
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.Token != "tok" {
		t.Fatalf("expected telegram config, got %+v", cfg.Channels.Telegram)
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfigFrom(path); err == nil {
		t.Fatalf("expected error for malformed config")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MIO_API_KEY", "env-key")
	t.Setenv("MIO_BASE_URL", "https://example.test/v1")
	t.Setenv("MIO_TELEGRAM_TOKEN", "env-token")

	cfg, err := LoadConfigFrom(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadConfigFrom error: %v", err)
	}
	if cfg.Provider.APIKey != "env-key" {
		t.Fatalf("expected env api key, got %q", cfg.Provider.APIKey)
	}
	if cfg.Provider.BaseURL != "https://example.test/v1" {
		t.Fatalf("expected env base url, got %q", cfg.Provider.BaseURL)
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.Token != "env-token" {
		t.Fatalf("expected telegram enabled via env token")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := DefaultConfig()
	cfg.Agent.Model = "saved-model"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo error: %v", err)
	}

	loaded, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom error: %v", err)
	}
	if loaded.Agent.Model != "saved-model" {
		t.Fatalf("expected round-tripped model, got %q", loaded.Agent.Model)
	}
}

func TestDuration(t *testing.T) {
	if d := Duration("45m", "10m"); d != 45*time.Minute {
		t.Fatalf("expected 45m, got %v", d)
	}
	if d := Duration("", "10m"); d != 10*time.Minute {
		t.Fatalf("expected fallback 10m, got %v", d)
	}
	if d := Duration("garbage", "10m"); d != 10*time.Minute {
		t.Fatalf("expected fallback for garbage, got %v", d)
	}
}
