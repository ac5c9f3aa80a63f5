// Package config provides configuration management for FlowStudio.
//
// Values come from built-in defaults, an optional flowstudio.yaml (in the data
// directory or the working directory) and the environment, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/jxucoder/flowstudio/internal/copilot"
)

// Config holds all configuration for the FlowStudio server.
type Config struct {
	// ServerAddr is the address the HTTP server listens on (e.g., ":7080").
	ServerAddr string `mapstructure:"addr"`

	// DataDir is the directory for persistent data (SQLite DB, etc.).
	DataDir string `mapstructure:"data_dir"`

	// DatabasePath is the full path to the SQLite database file.
	DatabasePath string `mapstructure:"database_path"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	LLM     LLMConfig     `mapstructure:"llm"`
	Copilot CopilotConfig `mapstructure:"copilot"`

	// Slack integration (optional -- Socket Mode).
	// SlackBotToken is the Bot User OAuth Token (xoxb-...).
	SlackBotToken string `mapstructure:"slack_bot_token"`
	// SlackAppToken is the App-Level Token (xapp-...) required for Socket Mode.
	SlackAppToken string `mapstructure:"slack_app_token"`

	// TelegramBotToken is the token from @BotFather (optional -- long polling).
	TelegramBotToken string `mapstructure:"telegram_bot_token"`

	// GitHubToken enables build handoff issues (optional).
	GitHubToken string `mapstructure:"github_token"`

	// GitHubWebhookSecret enables the issue comment webhook (optional, needs
	// GitHubToken to reply).
	GitHubWebhookSecret string `mapstructure:"github_webhook_secret"`
}

// LLMConfig selects and tunes the completion provider.
type LLMConfig struct {
	Provider        string  `mapstructure:"provider"`
	Model           string  `mapstructure:"model"`
	BaseURL         string  `mapstructure:"base_url"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	AnthropicAPIKey string  `mapstructure:"anthropic_api_key"`
	OpenAIAPIKey    string  `mapstructure:"openai_api_key"`
}

// CopilotConfig tunes the synthesis pipeline.
type CopilotConfig struct {
	ContextWindow int    `mapstructure:"context_window"`
	DefaultAck    string `mapstructure:"default_ack"`
}

// Load builds a Config from defaults, an optional config file and the
// environment. It creates the data directory.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FLOWSTUDIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindConventionalEnv(v)

	v.SetConfigName("flowstudio")
	v.SetConfigType("yaml")
	v.AddConfigPath(v.GetString("data_dir"))
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "flowstudio.db")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := copilot.DefaultSettings()

	v.SetDefault("addr", ":7080")
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("database_path", "")
	v.SetDefault("log_level", "info")

	v.SetDefault("llm.provider", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", d.Temperature)
	v.SetDefault("llm.max_tokens", d.MaxTokens)
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.openai_api_key", "")

	v.SetDefault("copilot.context_window", d.ContextWindow)
	v.SetDefault("copilot.default_ack", d.DefaultAck)

	v.SetDefault("slack_bot_token", "")
	v.SetDefault("slack_app_token", "")
	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("github_token", "")
	v.SetDefault("github_webhook_secret", "")
}

// bindConventionalEnv maps the provider-standard variable names, so existing
// shells work without FLOWSTUDIO_ prefixes.
func bindConventionalEnv(v *viper.Viper) {
	_ = v.BindEnv("llm.anthropic_api_key", "FLOWSTUDIO_LLM_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("llm.openai_api_key", "FLOWSTUDIO_LLM_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("slack_bot_token", "FLOWSTUDIO_SLACK_BOT_TOKEN", "SLACK_BOT_TOKEN")
	_ = v.BindEnv("slack_app_token", "FLOWSTUDIO_SLACK_APP_TOKEN", "SLACK_APP_TOKEN")
	_ = v.BindEnv("telegram_bot_token", "FLOWSTUDIO_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("github_token", "FLOWSTUDIO_GITHUB_TOKEN", "GITHUB_TOKEN")
	_ = v.BindEnv("github_webhook_secret", "FLOWSTUDIO_GITHUB_WEBHOOK_SECRET", "GITHUB_WEBHOOK_SECRET")
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.LLM.AnthropicAPIKey == "" && c.LLM.OpenAIAPIKey == "" {
		return fmt.Errorf("at least one of ANTHROPIC_API_KEY or OPENAI_API_KEY is required")
	}
	switch c.LLM.Provider {
	case "", "anthropic", "openai":
	default:
		return fmt.Errorf("unknown llm.provider %q (want anthropic or openai)", c.LLM.Provider)
	}
	if c.Copilot.ContextWindow < 1 {
		return fmt.Errorf("copilot.context_window must be at least 1")
	}
	return nil
}

// LLMProvider resolves the provider name and API key to use. Anthropic wins
// when both keys are set and no provider is named.
func (c *Config) LLMProvider() (provider, apiKey string) {
	switch c.LLM.Provider {
	case "openai":
		return "openai", c.LLM.OpenAIAPIKey
	case "anthropic":
		return "anthropic", c.LLM.AnthropicAPIKey
	}
	if c.LLM.AnthropicAPIKey != "" {
		return "anthropic", c.LLM.AnthropicAPIKey
	}
	return "openai", c.LLM.OpenAIAPIKey
}

// CopilotSettings builds the explicit settings value passed to copilot.New.
func (c *Config) CopilotSettings() copilot.Settings {
	s := copilot.DefaultSettings()
	s.ContextWindow = c.Copilot.ContextWindow
	if c.Copilot.DefaultAck != "" {
		s.DefaultAck = c.Copilot.DefaultAck
	}
	s.Temperature = c.LLM.Temperature
	if c.LLM.MaxTokens > 0 {
		s.MaxTokens = c.LLM.MaxTokens
	}
	switch {
	case c.LLM.Model != "":
		s.Model = c.LLM.Model
	case c.resolvedProvider() == "openai":
		s.Model = "gpt-4o"
	}
	return s
}

func (c *Config) resolvedProvider() string {
	p, _ := c.LLMProvider()
	return p
}

// SlackEnabled returns true if Slack Socket Mode is configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackAppToken != ""
}

// TelegramEnabled returns true if the Telegram bot is configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

// GitHubEnabled returns true if build handoff to GitHub is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubToken != ""
}

// GitHubWebhookEnabled returns true if comments on handoff issues are routed
// back into conversations.
func (c *Config) GitHubWebhookEnabled() bool {
	return c.GitHubEnabled() && c.GitHubWebhookSecret != ""
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowstudio"
	}
	return filepath.Join(home, ".flowstudio")
}
