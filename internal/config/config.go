package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const (
	DefaultConfigPath       = "config.toml"
	DefaultHTTPAddr         = ":8080"
	DefaultLarkRegion       = "lark"
	DefaultLarkTimeout      = 10
	DefaultAnthropicBaseURL = "https://api.anthropic.com"
	DefaultAnthropicModel   = "claude-sonnet-4-20250514"
	DefaultAnthropicVersion = "2023-06-01"
	DefaultAnthropicTimeout = 60
	DefaultMaxTokens        = 1024
	DefaultDedupTTLSeconds  = 300
	DefaultErrorNoticeText  = "Sorry, I couldn't process that message. Please try again."
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Lark      LarkConfig      `toml:"lark"`
	Anthropic AnthropicConfig `toml:"anthropic"`
	Relay     RelayConfig     `toml:"relay"`
}

type LogConfig struct {
	Level  string `toml:"level" envconfig:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
	Format string `toml:"format" envconfig:"LOG_FORMAT" validate:"omitempty,oneof=text json"`
}

type ServerConfig struct {
	Addr string `toml:"addr" envconfig:"RELAY_ADDR"`
}

type LarkConfig struct {
	AppID             string `toml:"app_id" envconfig:"LARK_APP_ID" validate:"required"`
	AppSecret         string `toml:"app_secret" envconfig:"LARK_APP_SECRET" validate:"required"`
	Region            string `toml:"region" envconfig:"LARK_REGION" validate:"omitempty,oneof=feishu lark"`
	BaseURL           string `toml:"base_url" envconfig:"LARK_BASE_URL" validate:"omitempty,url"`
	VerificationToken string `toml:"verification_token" envconfig:"LARK_VERIFICATION_TOKEN"`
	EncryptKey        string `toml:"encrypt_key" envconfig:"LARK_ENCRYPT_KEY"`
	TimeoutSeconds    int    `toml:"timeout_seconds" envconfig:"LARK_TIMEOUT_SECONDS" validate:"gte=0"`
}

type AnthropicConfig struct {
	APIKey         string `toml:"api_key" envconfig:"CLAUDE_API_KEY" validate:"required"`
	BaseURL        string `toml:"base_url" envconfig:"CLAUDE_BASE_URL" validate:"omitempty,url"`
	Model          string `toml:"model" envconfig:"CLAUDE_MODEL" validate:"required"`
	MaxTokens      int    `toml:"max_tokens" envconfig:"CLAUDE_MAX_TOKENS" validate:"gt=0"`
	Version        string `toml:"version" envconfig:"CLAUDE_API_VERSION"`
	TimeoutSeconds int    `toml:"timeout_seconds" envconfig:"CLAUDE_TIMEOUT_SECONDS" validate:"gte=0"`
	SystemPrompt   string `toml:"system_prompt" envconfig:"CLAUDE_SYSTEM_PROMPT"`
}

type RelayConfig struct {
	DedupTTLSeconds int    `toml:"dedup_ttl_seconds" envconfig:"RELAY_DEDUP_TTL_SECONDS" validate:"gte=0"`
	ErrorNotice     string `toml:"error_notice" envconfig:"RELAY_ERROR_NOTICE"`
}

func (c LarkConfig) Timeout() time.Duration {
	return secondsOr(c.TimeoutSeconds, DefaultLarkTimeout)
}

func (c AnthropicConfig) Timeout() time.Duration {
	return secondsOr(c.TimeoutSeconds, DefaultAnthropicTimeout)
}

func (c RelayConfig) DedupTTL() time.Duration {
	if c.DedupTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.DedupTTLSeconds) * time.Second
}

func secondsOr(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

// Default returns the configuration used when neither a file nor the
// environment overrides a value.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Lark: LarkConfig{
			Region:         DefaultLarkRegion,
			TimeoutSeconds: DefaultLarkTimeout,
		},
		Anthropic: AnthropicConfig{
			BaseURL:        DefaultAnthropicBaseURL,
			Model:          DefaultAnthropicModel,
			MaxTokens:      DefaultMaxTokens,
			Version:        DefaultAnthropicVersion,
			TimeoutSeconds: DefaultAnthropicTimeout,
		},
		Relay: RelayConfig{
			DedupTTLSeconds: DefaultDedupTTLSeconds,
			ErrorNotice:     DefaultErrorNoticeText,
		},
	}
}

// Load reads defaults, then the TOML file at path (if it exists), then
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	sections := []struct {
		name   string
		target any
	}{
		{"log", &cfg.Log},
		{"server", &cfg.Server},
		{"lark", &cfg.Lark},
		{"anthropic", &cfg.Anthropic},
		{"relay", &cfg.Relay},
	}
	for _, s := range sections {
		if err := envconfig.Process("", s.target); err != nil {
			return fmt.Errorf("env %s: %w", s.name, err)
		}
	}
	return nil
}

// Validate checks required credentials and value ranges. Errors name the
// offending fields only; values are never included.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) {
			names := make([]string, 0, len(fields))
			for _, f := range fields {
				names = append(names, fmt.Sprintf("%s (%s)", f.Namespace(), f.Tag()))
			}
			return fmt.Errorf("invalid config: %v", names)
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
