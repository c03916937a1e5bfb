package common

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Queue       QueueConfig     `toml:"queue"`
	Invoker     InvokerConfig   `toml:"invoker"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
}

// QueueConfig controls the queue manager
type QueueConfig struct {
	PollInterval string `toml:"poll_interval"` // e.g. "1s" - scheduler driver poll interval
}

// InvokerConfig controls batch invocation
type InvokerConfig struct {
	MaxParallel int `toml:"max_parallel"` // Max concurrent instances per batch; 0 = half of logical CPUs
}

// SchedulerConfig controls the async scheduler
type SchedulerConfig struct {
	CompletedCapacity int     `toml:"completed_capacity"` // Soft cap on retained completed results
	AdmissionRate     float64 `toml:"admission_rate"`     // Admissions per second; 0 = unlimited
}

// StorageConfig groups persistent storage settings
type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// DefaultConfig returns the built-in defaults applied before any file or
// environment override.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Queue: QueueConfig{
			PollInterval: "1s",
		},
		Invoker: InvokerConfig{
			MaxParallel: 0,
		},
		Scheduler: SchedulerConfig{
			CompletedCapacity: 100,
			AdmissionRate:     0,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/curro",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
	}
}

// LoadFromFiles loads configuration with precedence:
// defaults -> file1 -> file2 -> ... -> environment variables.
// Later files override earlier ones. Missing files are an error;
// an empty path list returns defaults plus env overrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides applies CURRO_* environment variable overrides
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("CURRO_ENVIRONMENT"); v != "" {
		config.Environment = v
	}
	if v := os.Getenv("CURRO_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("CURRO_STORAGE_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("CURRO_MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Invoker.MaxParallel = n
		}
	}
}

// Validate checks config values that would otherwise fail deep inside a component
func (c *Config) Validate() error {
	if c.Invoker.MaxParallel < 0 {
		return fmt.Errorf("invoker.max_parallel must be >= 0, got %d", c.Invoker.MaxParallel)
	}
	if c.Scheduler.CompletedCapacity < 0 {
		return fmt.Errorf("scheduler.completed_capacity must be >= 0, got %d", c.Scheduler.CompletedCapacity)
	}
	if c.Queue.PollInterval != "" {
		if _, err := time.ParseDuration(c.Queue.PollInterval); err != nil {
			return fmt.Errorf("invalid queue.poll_interval %q: %w", c.Queue.PollInterval, err)
		}
	}
	return nil
}

// MaxParallel resolves the effective parallelism bound: the configured value,
// or half of the logical CPUs (minimum 1) when unset.
func (c *Config) MaxParallel() int {
	if c.Invoker.MaxParallel > 0 {
		return c.Invoker.MaxParallel
	}
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return n
}

// PollInterval returns the parsed scheduler poll interval
func (c *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.Queue.PollInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}
