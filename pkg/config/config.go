// Package config loads relance configuration from YAML.
//
// Values may reference environment variables (${OPENAI_API_KEY}); they are
// expanded before parsing. Fields missing from the file keep the values of
// DefaultConfig.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/relance/pkg/logging"
)

// FileName is the default config file name.
const FileName = "relance.yaml"

// Config holds all relance configuration.
type Config struct {
	Orchestration OrchestrationConfig `yaml:"orchestration"`
	LLM           LLMConfig           `yaml:"llm"`
	Store         StoreConfig         `yaml:"store"`
	Logging       LoggingConfig       `yaml:"logging"`
	Tools         ToolsConfig         `yaml:"tools"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// OrchestrationConfig tunes the tool-call engine.
type OrchestrationConfig struct {
	MaxBatchSize       int           `yaml:"max_batch_size"`       // Calls per concurrent chunk
	InterBatchPause    time.Duration `yaml:"inter_batch_pause"`    // Delay between chunks
	SignatureTTL       time.Duration `yaml:"signature_ttl"`        // Window for signature dedup
	RelanceBudget      int           `yaml:"relance_budget"`       // Tool-call rounds per user message
	MaxHistoryMessages int           `yaml:"max_history_messages"` // Plain messages sent to the model
	MaxStoredMessages  int           `yaml:"max_stored_messages"`  // Stored transcript cap, 0 = unbounded
	ToolTimeout        time.Duration `yaml:"tool_timeout"`         // Per-call handler timeout
	AntiLoopRounds     int           `yaml:"anti_loop_rounds"`     // All-denied rounds before stopping, 0 = off
}

// LLMConfig configures the model client.
type LLMConfig struct {
	Model        string `yaml:"model"`
	BaseURL      string `yaml:"base_url"` // OpenAI-compatible endpoint, empty = api.openai.com
	APIKey       string `yaml:"api_key"`
	SystemPrompt string `yaml:"system_prompt"` // Empty = built-in prompt
	MaxRetries   int    `yaml:"max_retries"`
}

// StoreConfig configures transcript persistence.
type StoreConfig struct {
	Path string `yaml:"path"` // SQLite file, empty disables persistence
}

// LoggingConfig configures component log files.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`   // Overrides ~/.relance/logs
	Level string `yaml:"level"` // debug, info, warn or error
}

// ToolsConfig controls which tools are advertised.
type ToolsConfig struct {
	Disabled []string `yaml:"disabled"` // Glob patterns, e.g. "delete_*"
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen"` // e.g. ":9464", empty disables the endpoint
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Orchestration: OrchestrationConfig{
			MaxBatchSize:       10,
			InterBatchPause:    250 * time.Millisecond,
			SignatureTTL:       5 * time.Second,
			RelanceBudget:      5,
			MaxHistoryMessages: 50,
			MaxStoredMessages:  500,
			ToolTimeout:        30 * time.Second,
			AntiLoopRounds:     0,
		},
		LLM: LLMConfig{
			Model:      "gpt-4o",
			MaxRetries: 2,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultSearchPaths returns the config file search order:
// ./relance.yaml, then ~/.config/relance/relance.yaml.
func DefaultSearchPaths() []string {
	paths := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "relance", FileName))
	}
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise the first existing DefaultSearchPaths entry is returned, or ""
// when there is none.
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
	return "", nil
}

// Load reads and validates the YAML file at path. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse expands environment variables in data and decodes it over cfg.
func Parse(data []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(data))
	return yaml.Unmarshal([]byte(expanded), cfg)
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	o := c.Orchestration

	if o.MaxBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("orchestration.max_batch_size must be positive (got %d)", o.MaxBatchSize))
	}
	if o.InterBatchPause < 0 {
		errs = append(errs, fmt.Errorf("orchestration.inter_batch_pause cannot be negative (got %s)", o.InterBatchPause))
	}
	if o.SignatureTTL < 0 {
		errs = append(errs, fmt.Errorf("orchestration.signature_ttl cannot be negative (got %s)", o.SignatureTTL))
	}
	if o.RelanceBudget <= 0 {
		errs = append(errs, fmt.Errorf("orchestration.relance_budget must be positive (got %d)", o.RelanceBudget))
	}
	if o.MaxHistoryMessages < 0 {
		errs = append(errs, fmt.Errorf("orchestration.max_history_messages cannot be negative (got %d)", o.MaxHistoryMessages))
	}
	if o.MaxStoredMessages < 0 {
		errs = append(errs, fmt.Errorf("orchestration.max_stored_messages cannot be negative (got %d)", o.MaxStoredMessages))
	}
	if o.ToolTimeout <= 0 {
		errs = append(errs, fmt.Errorf("orchestration.tool_timeout must be positive (got %s)", o.ToolTimeout))
	}
	if o.AntiLoopRounds < 0 {
		errs = append(errs, fmt.Errorf("orchestration.anti_loop_rounds cannot be negative (got %d)", o.AntiLoopRounds))
	}

	if c.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("llm.max_retries cannot be negative (got %d)", c.LLM.MaxRetries))
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	for _, pattern := range c.Tools.Disabled {
		if _, err := glob.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("tools.disabled: invalid pattern %q: %w", pattern, err))
		}
	}

	return errors.Join(errs...)
}
