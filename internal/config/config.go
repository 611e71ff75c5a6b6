package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration for the kubegate command
// gateway. It is loaded from ~/.kubegate/config.yaml and can be
// overridden by environment variables.
type Config struct {
	Policy   PolicyConfig   `mapstructure:"policy" yaml:"policy"`
	Executor ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	Retry    RetryConfig    `mapstructure:"retry" yaml:"retry"`
	Advisor  AdvisorConfig  `mapstructure:"advisor" yaml:"advisor"`
	Audit    AuditConfig    `mapstructure:"audit" yaml:"audit"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// PolicyConfig controls which commands the gateway will authorize.
type PolicyConfig struct {
	// AdminMode bypasses every check. Keep this off outside break-glass
	// situations.
	AdminMode bool `mapstructure:"admin_mode" yaml:"admin_mode"`
	// ShellEnabled permits non-kubectl shell commands (still subject to
	// the shell allow list).
	ShellEnabled bool `mapstructure:"shell_enabled" yaml:"shell_enabled"`
	// ExtraDangerous adds verbs to the built-in dangerous list.
	ExtraDangerous []string `mapstructure:"extra_dangerous" yaml:"extra_dangerous,omitempty"`
	// ExtraSafeShell adds commands to the built-in shell allow list.
	ExtraSafeShell []string `mapstructure:"extra_safe_shell" yaml:"extra_safe_shell,omitempty"`
}

// ExecutorConfig controls process execution limits.
type ExecutorConfig struct {
	// Timeout is the default wall-clock limit per command.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// OutputLimitBytes caps retained stdout/stderr per attempt.
	OutputLimitBytes int `mapstructure:"output_limit_bytes" yaml:"output_limit_bytes"`
}

// RetryConfig controls the attempt loop.
type RetryConfig struct {
	// MaxRetries is the rewrite budget; total attempts are MaxRetries+1.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// AdvisorConfig selects and configures the failure advisor.
type AdvisorConfig struct {
	// Mode is "rules" (deterministic, offline) or "llm".
	Mode string `mapstructure:"mode" yaml:"mode"`
	// Endpoint is an OpenAI-compatible chat completions base URL.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	// APIKey authenticates against the endpoint.
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	// Model names the chat model to consult.
	Model string `mapstructure:"model" yaml:"model,omitempty"`
	// Timeout bounds one advisor call.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// AuditConfig controls the attempt ledger.
type AuditConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// DataDir is where the SQLite ledger lives.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

// LoggingConfig contains logging preferences.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`
	// File is where logs are written; empty means stderr only.
	File string `mapstructure:"file" yaml:"file,omitempty"`
}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	return &Config{
		Policy: PolicyConfig{
			AdminMode:    false,
			ShellEnabled: true,
		},
		Executor: ExecutorConfig{
			Timeout:          30 * time.Second,
			OutputLimitBytes: 64 * 1024,
		},
		Retry: RetryConfig{
			MaxRetries: 2,
		},
		Advisor: AdvisorConfig{
			Mode:    "rules",
			Timeout: 30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled: true,
			DataDir: "~/.kubegate",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "~/.kubegate/logs/kubegate.log",
		},
	}
}

// Load reads configuration from the default location (~/.kubegate/config.yaml).
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".kubegate", "config.yaml")
	return LoadFromPath(configPath)
}

// LoadFromPath reads configuration from a specific file path and merges with
// environment variables. If the file doesn't exist, it creates one with default values.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := writeConfigFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Enable environment variable overrides
	// Example: KUBEGATE_ADVISOR_API_KEY
	v.SetEnvPrefix("KUBEGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Audit.DataDir = expandPath(cfg.Audit.DataDir)
	cfg.Logging.File = expandPath(cfg.Logging.File)

	return &cfg, nil
}

// Save writes the current configuration to the default location.
func (c *Config) Save() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".kubegate", "config.yaml")
	return c.SaveToPath(configPath)
}

// SaveToPath writes the current configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return writeConfigFile(path, c)
}

// GetDataDir returns the kubegate data directory path (~/.kubegate).
func (c *Config) GetDataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".kubegate")
}

// GetConfigPath returns the full path to the config file.
func (c *Config) GetConfigPath() string {
	return filepath.Join(c.GetDataDir(), "config.yaml")
}

// EnsureDirectories creates all directories kubegate needs at runtime.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.GetDataDir()}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}
	if c.Audit.DataDir != "" {
		dirs = append(dirs, c.Audit.DataDir)
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// Validate checks the configuration for common errors and inconsistencies.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries cannot be negative")
	}

	if c.Executor.Timeout <= 0 {
		return fmt.Errorf("executor.timeout must be positive")
	}

	switch c.Advisor.Mode {
	case "rules":
	case "llm":
		if c.Advisor.Endpoint == "" {
			return fmt.Errorf("advisor.endpoint is required when advisor.mode is 'llm'")
		}
	default:
		return fmt.Errorf("invalid advisor mode '%s', must be 'rules' or 'llm'", c.Advisor.Mode)
	}

	return nil
}

// writeConfigFile writes a Config struct to a YAML file.
// Uses gopkg.in/yaml.v3 directly to ensure proper tag-based serialization.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
