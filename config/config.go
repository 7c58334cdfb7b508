package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig holds persistence settings for the daemon.
type DatabaseConfig struct {
	Path           string `yaml:"path,omitempty"`            // SQLite database file path
	MigrationsPath string `yaml:"migrations_path,omitempty"` // Directory containing migration SQL files
}

// LogConfig holds logging settings.
type LogConfig struct {
	File   string `yaml:"file,omitempty"`   // Log file path (empty = stdout)
	Pretty bool   `yaml:"pretty,omitempty"` // Pretty console output (only when File is empty)
}

// RetentionConfig controls the retention engine's sweeps.
type RetentionConfig struct {
	BaseDays      int    `yaml:"base_days,omitempty"`       // Base retention window for memory cleanup
	EventKeepDays int    `yaml:"event_keep_days,omitempty"` // Days to keep raw events before aggregation
	Schedule      string `yaml:"schedule,omitempty"`        // Cron expression or Go duration, e.g. "24h"
}

// MiningConfig controls the pattern miner and behavioral learner.
type MiningConfig struct {
	WindowDays         int    `yaml:"window_days,omitempty"`          // Event window for pattern mining
	BehaviorWindowDays int    `yaml:"behavior_window_days,omitempty"` // Event window for preference inference
	Schedule           string `yaml:"schedule,omitempty"`             // Cron expression or Go duration
}

// SearchConfig controls memory search behavior.
type SearchConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold,omitempty"` // Minimum similarity score [0,1]
}

// Config is the daemon configuration, loaded from YAML over defaults.
type Config struct {
	Database  DatabaseConfig  `yaml:"database,omitempty"`
	Log       LogConfig       `yaml:"log,omitempty"`
	Retention RetentionConfig `yaml:"retention,omitempty"`
	Mining    MiningConfig    `yaml:"mining,omitempty"`
	Search    SearchConfig    `yaml:"search,omitempty"`
}

// GetConfigPath returns the default config file path.
// Can be overridden via ELIXI_CONFIG_PATH environment variable.
func GetConfigPath() string {
	if envPath := os.Getenv("ELIXI_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.elixi/config.yaml"
	}
	return filepath.Join(homeDir, ".elixi", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Path:           "elixi_memory.db",
			MigrationsPath: "./migrations",
		},
		Retention: RetentionConfig{
			BaseDays:      90,
			EventKeepDays: 60,
			Schedule:      "24h",
		},
		Mining: MiningConfig{
			WindowDays:         7,
			BehaviorWindowDays: 14,
			Schedule:           "6h",
		},
		Search: SearchConfig{
			SimilarityThreshold: 0.3,
		},
	}
}

// Load loads configuration from path, merging file values over defaults.
// A missing config file is not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	defaults := Defaults()

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err != nil {
		return &defaults, nil
	}

	configYAML, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
	}

	var fileConfig Config
	if err := yaml.Unmarshal(configYAML, &fileConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := mergo.Merge(&defaults, fileConfig, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}

	return &defaults, nil
}

// Save writes the configuration to the specified path.
func Save(cfg *Config, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
