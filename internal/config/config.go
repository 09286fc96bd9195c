// ABOUTME: Configuration loading and parsing for model-router
// ABOUTME: YAML or TOML files with .env loading, environment expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/2389/model-router/internal/conversation"
)

// EnvConfigPath names the environment variable that points at a config file.
const EnvConfigPath = "MODEL_ROUTER_CONFIG"

// DefaultDotEnvFiles are loaded before the config is expanded. Missing files
// are ignored and variables already set in the environment win.
var DefaultDotEnvFiles = []string{".env", ".env.gpt5"}

// Config represents the complete model-router configuration
type Config struct {
	Server        ServerConfig        `yaml:"server" toml:"server"`
	Tailscale     TailscaleConfig     `yaml:"tailscale" toml:"tailscale"`
	Database      DatabaseConfig      `yaml:"database" toml:"database"`
	Conversations ConversationsConfig `yaml:"conversations" toml:"conversations"`
	Prompts       PromptsConfig       `yaml:"prompts" toml:"prompts"`
	Dispatch      DispatchConfig      `yaml:"dispatch" toml:"dispatch"`
	Providers     ProvidersConfig     `yaml:"providers" toml:"providers"`
	Logging       LoggingConfig       `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr      string   `yaml:"http_addr" toml:"http_addr"`
	FallbackAddrs []string `yaml:"fallback_addrs" toml:"fallback_addrs"` // tried in order when HTTPAddr is busy
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve TLS with a Tailscale cert
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // expose publicly (implies HTTPS)
}

// DatabaseConfig holds the usage ledger location
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// ConversationsConfig holds conversation store and eviction settings
type ConversationsConfig struct {
	Retention        time.Duration `yaml:"-" toml:"-"`
	EvictionSchedule string        `yaml:"eviction_schedule" toml:"eviction_schedule"`
	Shards           int           `yaml:"shards" toml:"shards"`

	// Raw string values for unmarshaling
	RetentionRaw string `yaml:"retention" toml:"retention"`
}

// PromptsConfig holds prompt template file settings
type PromptsConfig struct {
	Path  string `yaml:"path" toml:"path"`
	Watch *bool  `yaml:"watch" toml:"watch"`
}

// WatchEnabled reports whether the prompt file should be hot reloaded.
func (p PromptsConfig) WatchEnabled() bool {
	return p.Watch == nil || *p.Watch
}

// DispatchConfig holds dispatcher settings
type DispatchConfig struct {
	RequestTimeout    time.Duration `yaml:"-" toml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout" toml:"request_timeout"`
}

// ProvidersConfig holds per-vendor credentials and endpoints
type ProvidersConfig struct {
	OpenAI    ProviderConfig `yaml:"openai" toml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic" toml:"anthropic"`
	XAI       ProviderConfig `yaml:"xai" toml:"xai"`
	Gemini    ProviderConfig `yaml:"gemini" toml:"gemini"`
}

// ProviderConfig configures one vendor. An empty APIKey leaves the vendor's
// models registered but failing every call.
type ProviderConfig struct {
	APIKey    string        `yaml:"api_key" toml:"api_key"`
	BaseURL   string        `yaml:"base_url" toml:"base_url"`
	MaxTokens int           `yaml:"max_tokens" toml:"max_tokens"`
	Timeout   time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			HTTPAddr:      ":3791",
			FallbackAddrs: []string{":3003"},
		},
		Database: DatabaseConfig{Path: ":memory:"},
		Conversations: ConversationsConfig{
			RetentionRaw:     "480h",
			EvictionSchedule: conversation.DefaultEvictionSchedule,
			Shards:           conversation.DefaultShards,
		},
		Prompts:  PromptsConfig{Path: "prompts.xml"},
		Dispatch: DispatchConfig{RequestTimeoutRaw: "10m"},
		Providers: ProvidersConfig{
			OpenAI:    ProviderConfig{APIKey: os.Getenv("OPENAI_API_KEY"), BaseURL: "https://api.openai.com/v1"},
			Anthropic: ProviderConfig{APIKey: os.Getenv("ANTHROPIC_API_KEY"), MaxTokens: 4000},
			XAI:       ProviderConfig{APIKey: os.Getenv("XAI_API_KEY"), BaseURL: "https://api.x.ai/v1"},
			Gemini:    ProviderConfig{APIKey: os.Getenv("GEMINI_API_KEY")},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
	if err := parseDurations(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML. Keys the
// file omits keep their Default value. Environment variables in the format
// ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads each existing file into the process environment without
// overriding variables that are already set.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ResolvePath picks the config file location. An explicit flag wins, then
// MODEL_ROUTER_CONFIG, then the XDG config directory, then ~/.config. The
// second return value is true when the path was requested explicitly, in which
// case a missing file is an error rather than a reason to use Default.
func ResolvePath(flagPath string) (string, bool) {
	if flagPath != "" {
		return flagPath, true
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, true
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "model-router", "config.yaml"), false
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml", false
	}
	return filepath.Join(home, ".config", "model-router", "config.yaml"), false
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Conversations.Retention <= 0 {
		return fmt.Errorf("conversations.retention must be positive")
	}

	if err := conversation.ValidateSchedule(c.Conversations.EvictionSchedule); err != nil {
		return fmt.Errorf("conversations.eviction_schedule: %w", err)
	}

	if c.Conversations.Shards < 1 || c.Conversations.Shards > 1024 {
		return fmt.Errorf("conversations.shards must be between 1 and 1024, got %d", c.Conversations.Shards)
	}

	if c.Dispatch.RequestTimeout <= 0 {
		return fmt.Errorf("dispatch.request_timeout must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Conversations.RetentionRaw != "" {
		cfg.Conversations.Retention, err = time.ParseDuration(cfg.Conversations.RetentionRaw)
		if err != nil {
			return fmt.Errorf("parsing retention %q: %w", cfg.Conversations.RetentionRaw, err)
		}
	}

	if cfg.Dispatch.RequestTimeoutRaw != "" {
		cfg.Dispatch.RequestTimeout, err = time.ParseDuration(cfg.Dispatch.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Dispatch.RequestTimeoutRaw, err)
		}
	}

	providers := map[string]*ProviderConfig{
		"openai":    &cfg.Providers.OpenAI,
		"anthropic": &cfg.Providers.Anthropic,
		"xai":       &cfg.Providers.XAI,
		"gemini":    &cfg.Providers.Gemini,
	}
	for name, p := range providers {
		if p.TimeoutRaw == "" {
			continue
		}
		p.Timeout, err = time.ParseDuration(p.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing providers.%s.timeout %q: %w", name, p.TimeoutRaw, err)
		}
	}

	return nil
}
