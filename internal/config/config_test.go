package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config fixture: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
[telegram]
token = "test-token"
polling_timeout = 30

[proxy]
enabled = true
url = "http://127.0.0.1:7890"

[gemini]
api_keys = ["key-a", "key-b"]
model = "gemini-2.0-flash-exp-image-generation"
use_relay = true
relay_url = "https://relay.example.com"
timeout = 120
max_retries = 5
translate_prompts = true

[session]
conversation_ttl = 300
max_turns = 6

[storage]
save_dir = "images"
retention_hours = 12

[logging]
level = "debug"
output = "stdout"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Telegram.Token != "test-token" {
		t.Errorf("Unexpected token: %s", cfg.Telegram.Token)
	}
	if cfg.Telegram.PollingTimeout != 30 {
		t.Errorf("Unexpected polling timeout: %d", cfg.Telegram.PollingTimeout)
	}
	if !cfg.Proxy.Enabled || cfg.Proxy.URL != "http://127.0.0.1:7890" {
		t.Error("Proxy settings not loaded")
	}
	if len(cfg.Gemini.APIKeys) != 2 {
		t.Errorf("Expected 2 API keys, got %d", len(cfg.Gemini.APIKeys))
	}
	if !cfg.Gemini.UseRelay || cfg.Gemini.RelayURL != "https://relay.example.com" {
		t.Error("Relay settings not loaded")
	}
	if !cfg.Gemini.TranslatePrompts {
		t.Error("translate_prompts not loaded")
	}
	if cfg.Session.ConversationTTL != 300 || cfg.Session.MaxTurns != 6 {
		t.Error("Session settings not loaded")
	}
	if cfg.Storage.SaveDir != "images" || cfg.Storage.RetentionHours != 12 {
		t.Error("Storage settings not loaded")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Unexpected log level: %s", cfg.Logging.Level)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[telegram]
token = "test-token"

[gemini]
api_keys = ["key-a"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Telegram.PollingTimeout != 60 {
		t.Errorf("Expected default polling timeout 60, got %d", cfg.Telegram.PollingTimeout)
	}
	if cfg.Gemini.Model != "gemini-2.0-flash-exp-image-generation" {
		t.Errorf("Unexpected default model: %s", cfg.Gemini.Model)
	}
	if cfg.Gemini.BaseURL != "https://generativelanguage.googleapis.com" {
		t.Errorf("Unexpected default base URL: %s", cfg.Gemini.BaseURL)
	}
	if cfg.Gemini.MaxRetries != 3 {
		t.Errorf("Expected default max retries 3, got %d", cfg.Gemini.MaxRetries)
	}
	if cfg.Session.ConversationTTL != 600 {
		t.Errorf("Expected default conversation TTL 600, got %d", cfg.Session.ConversationTTL)
	}
	if cfg.Session.ImageCacheTTL != 300 {
		t.Errorf("Expected default image cache TTL 300, got %d", cfg.Session.ImageCacheTTL)
	}
	if cfg.Session.MaxTurns != 10 {
		t.Errorf("Expected default max turns 10, got %d", cfg.Session.MaxTurns)
	}
	if cfg.Storage.SaveDir != "temp" {
		t.Errorf("Expected default save dir temp, got %s", cfg.Storage.SaveDir)
	}
	if cfg.Storage.RetentionHours != 24 {
		t.Errorf("Expected default retention 24h, got %d", cfg.Storage.RetentionHours)
	}
	if len(cfg.Commands.Generate) == 0 || cfg.Commands.Generate[0] != "#生成图片" {
		t.Errorf("Unexpected default generate commands: %v", cfg.Commands.Generate)
	}
	if len(cfg.Commands.Exit) != 4 {
		t.Errorf("Expected 4 default exit commands, got %d", len(cfg.Commands.Exit))
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadCustomCommandsOverrideDefaults(t *testing.T) {
	path := writeConfig(t, `
[telegram]
token = "test-token"

[gemini]
api_keys = ["key-a"]

[commands]
generate = ["/draw"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if len(cfg.Commands.Generate) != 1 || cfg.Commands.Generate[0] != "/draw" {
		t.Errorf("Custom generate commands not honored: %v", cfg.Commands.Generate)
	}
	// Untouched lists still fall back to defaults
	if len(cfg.Commands.Edit) != 2 {
		t.Errorf("Expected default edit commands, got %v", cfg.Commands.Edit)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := writeConfig(t, "this is not [valid toml")
	if _, err := Load(path); err == nil {
		t.Error("Expected error for invalid TOML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "missing telegram token",
			mutate:    func(c *Config) { c.Telegram.Token = "" },
			wantField: "telegram.token",
		},
		{
			name:      "proxy enabled without URL",
			mutate:    func(c *Config) { c.Proxy.Enabled = true; c.Proxy.URL = "" },
			wantField: "proxy.url",
		},
		{
			name:      "no API keys",
			mutate:    func(c *Config) { c.Gemini.APIKeys = nil },
			wantField: "gemini.api_keys",
		},
		{
			name:      "relay enabled without URL",
			mutate:    func(c *Config) { c.Gemini.UseRelay = true; c.Gemini.RelayURL = "" },
			wantField: "gemini.relay_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Telegram: TelegramConfig{Token: "token"},
				Gemini:   GeminiConfig{APIKeys: []string{"key"}},
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Expected valid config, got %v", err)
				}
				return
			}

			cfgErr, ok := err.(*ConfigError)
			if !ok {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("Expected error on %s, got %s", tt.wantField, cfgErr.Field)
			}
		})
	}
}
