// Package config handles Axis configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// KeyringService is the OS keyring service name used when
// llm.api_key_from_keyring is enabled. The keyring user is the provider
// name ("openai", "anthropic").
const KeyringService = "axis"

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/axis/config.yaml, /etc/axis/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "axis", "config.yaml"))
	}

	paths = append(paths, "/etc/axis/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Axis configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	PublicURL  string           `yaml:"public_url"`
	DataDir    string           `yaml:"data_dir"`
	Database   DatabaseConfig   `yaml:"database"`
	LLM        LLMConfig        `yaml:"llm"`
	Agent      AgentConfig      `yaml:"agent"`
	Reschedule RescheduleConfig `yaml:"reschedule"`
	Auth       AuthConfig       `yaml:"auth"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	LogLevel   string           `yaml:"log_level"`
	LogFormat  string           `yaml:"log_format"`
	LogFile    LogFileConfig    `yaml:"log_file"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// DatabaseConfig selects the SQLite driver. "sqlite3" is the cgo
// mattn driver; "sqlite" is the pure-Go modernc driver.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
}

// LLMConfig defines the remote model used by the assistant and the
// schedule generator.
type LLMConfig struct {
	Provider          string  `yaml:"provider"` // openai, anthropic, ollama
	Model             string  `yaml:"model"`
	APIKey            string  `yaml:"api_key"`
	APIKeyFromKeyring bool    `yaml:"api_key_from_keyring"`
	BaseURL           string  `yaml:"base_url"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	TimeoutSec        int     `yaml:"timeout_sec"`
}

// AgentConfig bounds a single assistant conversation. These are product
// policy, not invariants: the point is that they are finite.
type AgentConfig struct {
	MaxSteps  int `yaml:"max_steps"`
	MaxTasks  int `yaml:"max_tasks"`
	MaxHabits int `yaml:"max_habits"`
}

// RescheduleConfig tunes the one-shot schedule generation call.
type RescheduleConfig struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// AuthConfig defines session token and password hashing settings.
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
	BcryptCost    int    `yaml:"bcrypt_cost"`
}

// RateLimitConfig limits requests per client IP on the login,
// registration and assistant endpoints. A zero RequestsPerMinute
// disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// MQTTConfig defines the optional planner summary publisher.
type MQTTConfig struct {
	Broker            string `yaml:"broker"` // e.g. mqtt://localhost:1883
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	DeviceName        string `yaml:"device_name"`
	PublishTimeoutSec int    `yaml:"publish_timeout_sec"`
}

// Configured reports whether a broker has been set.
func (c MQTTConfig) Configured() bool {
	return c.Broker != ""
}

// LogFileConfig enables a rotated log file in addition to stdout.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads configuration from a YAML file, expands environment
// variables, and fills defaults for anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

// Default returns a configuration with every default applied. It is
// what an empty config file produces.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 3000
	}
	if c.PublicURL == "" {
		c.PublicURL = fmt.Sprintf("http://localhost:%d", c.Listen.Port)
	}
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		switch c.LLM.Provider {
		case "anthropic":
			c.LLM.Model = "claude-sonnet-4-20250514"
		case "ollama":
			c.LLM.Model = "qwen3:8b"
		default:
			c.LLM.Model = "gpt-4o-mini"
		}
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.3
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 900
	}
	if c.LLM.TimeoutSec == 0 {
		c.LLM.TimeoutSec = 60
	}

	if c.Agent.MaxSteps == 0 {
		c.Agent.MaxSteps = 6
	}
	if c.Agent.MaxTasks == 0 {
		c.Agent.MaxTasks = 120
	}
	if c.Agent.MaxHabits == 0 {
		c.Agent.MaxHabits = 80
	}

	if c.Reschedule.Temperature == 0 {
		c.Reschedule.Temperature = 0.2
	}
	if c.Reschedule.MaxTokens == 0 {
		c.Reschedule.MaxTokens = 2500
	}

	if c.Auth.TokenTTLHours == 0 {
		c.Auth.TokenTTLHours = 24 * 7
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = 12
	}

	if c.RateLimit.Burst == 0 && c.RateLimit.RequestsPerMinute > 0 {
		c.RateLimit.Burst = c.RateLimit.RequestsPerMinute
	}

	if c.MQTT.DeviceName == "" {
		c.MQTT.DeviceName = "axis"
	}
	if c.MQTT.PublishTimeoutSec == 0 {
		c.MQTT.PublishTimeoutSec = 5
	}

	if c.LogFile.MaxSizeMB == 0 {
		c.LogFile.MaxSizeMB = 10
	}
	if c.LogFile.MaxBackups == 0 {
		c.LogFile.MaxBackups = 3
	}
	if c.LogFile.MaxAgeDays == 0 {
		c.LogFile.MaxAgeDays = 28
	}
}

// Validate checks the configuration for values that would fail later
// at runtime. It does not require a JWT secret; serving does, and
// [Config.ValidateServe] checks that separately.
func (c *Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case "openai", "anthropic", "ollama":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported (valid: openai, anthropic, ollama)", c.LLM.Provider))
	}
	switch c.Database.Driver {
	case "sqlite3", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported (valid: sqlite3, sqlite)", c.Database.Driver))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q is not supported (valid: text, json)", c.LogFormat))
	}
	if c.Agent.MaxSteps < 1 || c.Agent.MaxSteps > 20 {
		errs = append(errs, fmt.Errorf("agent.max_steps must be between 1 and 20, got %d", c.Agent.MaxSteps))
	}
	if c.Agent.MaxTasks < 1 || c.Agent.MaxHabits < 1 {
		errs = append(errs, fmt.Errorf("agent.max_tasks and agent.max_habits must be positive"))
	}
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Errorf("listen.port %d out of range", c.Listen.Port))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost must be between 4 and 31, got %d", c.Auth.BcryptCost))
	}

	return errors.Join(errs...)
}

// ValidateServe runs [Config.Validate] plus the checks that only
// matter when the HTTP API is started.
func (c *Config) ValidateServe() error {
	err := c.Validate()
	if len(c.Auth.JWTSecret) < 16 {
		err = errors.Join(err, fmt.Errorf("auth.jwt_secret must be at least 16 characters"))
	}
	return err
}

// ResolveAPIKey returns the model provider API key. An inline api_key
// always wins; otherwise, when api_key_from_keyring is set, the key is
// read from the OS keyring under [KeyringService]. Ollama needs no key.
func (c *Config) ResolveAPIKey() (string, error) {
	if c.LLM.APIKey != "" || c.LLM.Provider == "ollama" {
		return c.LLM.APIKey, nil
	}
	if !c.LLM.APIKeyFromKeyring {
		return "", fmt.Errorf("llm.api_key is required for provider %q", c.LLM.Provider)
	}
	key, err := keyring.Get(KeyringService, c.LLM.Provider)
	if err != nil {
		return "", fmt.Errorf("read %s API key from keyring: %w", c.LLM.Provider, err)
	}
	return key, nil
}
