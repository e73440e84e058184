package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	log "github.com/sirupsen/logrus"
)

// Config represents the entire configuration structure
type Config struct {
	Telegram TelegramConfig `toml:"telegram"`
	Proxy    ProxyConfig    `toml:"proxy"`
	Gemini   GeminiConfig   `toml:"gemini"`
	Commands CommandsConfig `toml:"commands"`
	Session  SessionConfig  `toml:"session"`
	Storage  StorageConfig  `toml:"storage"`
	Logging  LoggingConfig  `toml:"logging"`
}

// TelegramConfig contains Telegram Bot settings
type TelegramConfig struct {
	Token          string `toml:"token"`
	PollingTimeout int    `toml:"polling_timeout"`
	PollingLimit   int    `toml:"polling_limit"`
}

// ProxyConfig contains HTTP proxy settings. The proxy wraps the Telegram
// client and, when the relay is disabled, the direct Gemini calls.
type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
}

// GeminiConfig contains Gemini API settings
type GeminiConfig struct {
	APIKeys          []string `toml:"api_keys"`
	Model            string   `toml:"model"`
	BaseURL          string   `toml:"base_url"`
	UseRelay         bool     `toml:"use_relay"`
	RelayURL         string   `toml:"relay_url"`
	Timeout          int      `toml:"timeout"`
	MaxRetries       int      `toml:"max_retries"`
	RetryBaseDelayMs int      `toml:"retry_base_delay_ms"`
	TranslatePrompts bool     `toml:"translate_prompts"`
}

// CommandsConfig contains the chat command prefix lists
type CommandsConfig struct {
	Generate  []string `toml:"generate"`
	Edit      []string `toml:"edit"`
	Merge     []string `toml:"merge"`
	Reverse   []string `toml:"reverse"`
	Analyze   []string `toml:"analyze"`
	Translate []string `toml:"translate"`
	Exit      []string `toml:"exit"`
}

// SessionConfig contains conversation state settings (seconds)
type SessionConfig struct {
	ConversationTTL int `toml:"conversation_ttl"`
	ImageCacheTTL   int `toml:"image_cache_ttl"`
	MaxTurns        int `toml:"max_turns"`
	KeyPinTTL       int `toml:"key_pin_ttl"`
}

// StorageConfig contains image file storage settings
type StorageConfig struct {
	SaveDir         string `toml:"save_dir"`
	RetentionHours  int    `toml:"retention_hours"`
	CleanupInterval int    `toml:"cleanup_interval"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Output string `toml:"output"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	// If no config path provided, try default locations
	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	log.Infof("Loading configuration from: %s", configPath)

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set default values if not specified
	setDefaults(&cfg)

	return &cfg, nil
}

// getDefaultConfigPath returns the default configuration file path
func getDefaultConfigPath() string {
	// First try current directory
	if _, err := os.Stat("config.toml"); err == nil {
		return "config.toml"
	}

	// Then try config directory
	configDir := "config"
	if _, err := os.Stat(filepath.Join(configDir, "config.toml")); err == nil {
		return filepath.Join(configDir, "config.toml")
	}

	// Default to current directory
	return "config.toml"
}

// setDefaults applies default values to configuration fields
func setDefaults(cfg *Config) {
	if cfg.Telegram.PollingTimeout == 0 {
		cfg.Telegram.PollingTimeout = 60
	}
	if cfg.Telegram.PollingLimit == 0 {
		cfg.Telegram.PollingLimit = 100
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.0-flash-exp-image-generation"
	}
	if cfg.Gemini.BaseURL == "" {
		cfg.Gemini.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Gemini.Timeout == 0 {
		cfg.Gemini.Timeout = 60
	}
	if cfg.Gemini.MaxRetries == 0 {
		cfg.Gemini.MaxRetries = 3
	}
	if cfg.Gemini.RetryBaseDelayMs == 0 {
		cfg.Gemini.RetryBaseDelayMs = 500
	}
	if len(cfg.Commands.Generate) == 0 {
		cfg.Commands.Generate = []string{"#生成图片", "#画图", "#图片生成"}
	}
	if len(cfg.Commands.Edit) == 0 {
		cfg.Commands.Edit = []string{"#编辑图片", "#修改图片"}
	}
	if len(cfg.Commands.Merge) == 0 {
		cfg.Commands.Merge = []string{"#合成图片"}
	}
	if len(cfg.Commands.Reverse) == 0 {
		cfg.Commands.Reverse = []string{"#反推提示词"}
	}
	if len(cfg.Commands.Analyze) == 0 {
		cfg.Commands.Analyze = []string{"#解析图片", "#分析图片"}
	}
	if len(cfg.Commands.Translate) == 0 {
		cfg.Commands.Translate = []string{"#翻译开关"}
	}
	if len(cfg.Commands.Exit) == 0 {
		cfg.Commands.Exit = []string{"#结束对话", "#退出对话", "#关闭对话", "#结束"}
	}
	if cfg.Session.ConversationTTL == 0 {
		cfg.Session.ConversationTTL = 600
	}
	if cfg.Session.ImageCacheTTL == 0 {
		cfg.Session.ImageCacheTTL = 300
	}
	if cfg.Session.MaxTurns == 0 {
		cfg.Session.MaxTurns = 10
	}
	if cfg.Session.KeyPinTTL == 0 {
		cfg.Session.KeyPinTTL = 600
	}
	if cfg.Storage.SaveDir == "" {
		cfg.Storage.SaveDir = "temp"
	}
	if cfg.Storage.RetentionHours == 0 {
		cfg.Storage.RetentionHours = 24
	}
	if cfg.Storage.CleanupInterval == 0 {
		cfg.Storage.CleanupInterval = 60
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "bot.log"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return &ConfigError{Field: "telegram.token", Message: "telegram token is required"}
	}
	if c.Proxy.Enabled && c.Proxy.URL == "" {
		return &ConfigError{Field: "proxy.url", Message: "proxy URL is required when proxy is enabled"}
	}
	if len(c.Gemini.APIKeys) == 0 {
		return &ConfigError{Field: "gemini.api_keys", Message: "at least one Gemini API key is required"}
	}
	if c.Gemini.UseRelay && c.Gemini.RelayURL == "" {
		return &ConfigError{Field: "gemini.relay_url", Message: "relay URL is required when relay is enabled"}
	}
	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
