// Package config provides configuration loading and management for the
// agent. Configuration comes from an optional YAML file with environment
// variable overrides; every field has a working default so the agent can
// attach with no configuration at all.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// QuotaCategory names a class of sandboxed method-call work, each with its
// own resource quota.
type QuotaCategory string

const (
	// QuotaExpression covers watch-expression evaluation on a breakpoint hit.
	QuotaExpression QuotaCategory = "expression"
	// QuotaCondition covers breakpoint condition checks, which run on the
	// hit thread and therefore get the tightest budget.
	QuotaCondition QuotaCategory = "condition"
	// QuotaDynamicLog covers dynamic log statement formatting.
	QuotaDynamicLog QuotaCategory = "dynamic_log"
)

// Quota bounds the work a single sandboxed method call may perform.
type Quota struct {
	// MaxCalls is the maximum number of nested method invocations.
	MaxCalls int `yaml:"max_calls"`
	// MaxInstructions is the interpreter instruction budget.
	MaxInstructions int64 `yaml:"max_instructions"`
	// MaxClassLoadBytes bounds class-file bytes loaded during the call.
	MaxClassLoadBytes int64 `yaml:"max_class_load_bytes"`
}

// LoggingConfig controls agent logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Config is the top-level agent configuration.
type Config struct {
	Logging LoggingConfig           `yaml:"logging"`
	Quotas  map[QuotaCategory]Quota `yaml:"quotas"`

	// ClassFilesCacheBytes is the size budget of the shared class-file
	// cache used by sandboxed method callers.
	ClassFilesCacheBytes int64 `yaml:"class_files_cache_bytes"`

	// FormatQueueCapacity bounds the queue of formatted breakpoint
	// results awaiting the transmission layer.
	FormatQueueCapacity int `yaml:"format_queue_capacity"`
}

// Default returns the configuration used when no file or overrides are
// present.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Quotas: map[QuotaCategory]Quota{
			QuotaExpression: {MaxCalls: 100, MaxInstructions: 100000, MaxClassLoadBytes: 262144},
			QuotaCondition:  {MaxCalls: 25, MaxInstructions: 25000, MaxClassLoadBytes: 65536},
			QuotaDynamicLog: {MaxCalls: 50, MaxInstructions: 50000, MaxClassLoadBytes: 131072},
		},
		ClassFilesCacheBytes: 1024 * 1024,
		FormatQueueCapacity:  100,
	}
}

// Load reads configuration from path, layered over defaults, then applies
// environment overrides. An empty path falls back to the LAMPREY_CONFIG
// environment variable; if that is unset too, only defaults and env
// overrides apply. A missing file at an explicitly provided path is an
// error; a missing file at the env-derived path is not.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("LAMPREY_CONFIG")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case explicit || !os.IsNotExist(err):
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Quota returns the quota for a category, falling back to the built-in
// default when the configuration does not name it.
func (c *Config) Quota(category QuotaCategory) Quota {
	if q, ok := c.Quotas[category]; ok {
		return q
	}
	return Default().Quotas[category]
}

// Validate checks invariants that would otherwise surface as confusing
// runtime behavior.
func (c *Config) Validate() error {
	if c.FormatQueueCapacity <= 0 {
		return fmt.Errorf("format_queue_capacity must be positive, got %d", c.FormatQueueCapacity)
	}
	if c.ClassFilesCacheBytes < 0 {
		return fmt.Errorf("class_files_cache_bytes must not be negative, got %d", c.ClassFilesCacheBytes)
	}
	for category, q := range c.Quotas {
		if q.MaxCalls < 0 || q.MaxInstructions < 0 || q.MaxClassLoadBytes < 0 {
			return fmt.Errorf("quota %q must not have negative limits", category)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LAMPREY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LAMPREY_LOG_PRETTY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.Pretty = b
		}
	}
	if v := os.Getenv("LAMPREY_CLASS_FILES_CACHE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.ClassFilesCacheBytes = n
		}
	}
	if v := os.Getenv("LAMPREY_FORMAT_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.FormatQueueCapacity = n
		}
	}
}
