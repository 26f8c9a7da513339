// Package config loads txindex configuration from defaults, the user
// config file, the project config file and TXINDEX_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	ixerrors "github.com/Aman-CERP/txindex/internal/errors"
)

// ProjectConfigName is the per-directory configuration file.
const ProjectConfigName = ".txindex.yaml"

// Config represents the complete txindex configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Documents DocumentsConfig `yaml:"documents" json:"documents"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// IndexConfig configures index handles and writers.
type IndexConfig struct {
	// MaxOpenReaders bounds how many index directories stay open at once.
	MaxOpenReaders int `yaml:"max_open_readers" json:"max_open_readers"`

	// LockTimeout is how long a store waits for another writer.
	LockTimeout time.Duration `yaml:"lock_timeout" json:"lock_timeout"`

	// OpenTimeout bounds waiting for another process's storage lock when
	// opening an index. Zero waits forever.
	OpenTimeout time.Duration `yaml:"open_timeout" json:"open_timeout"`

	// Watch invalidates cached status on external file changes.
	Watch bool `yaml:"watch" json:"watch"`

	// OptimizeOnStore merges segments after every store.
	OptimizeOnStore bool `yaml:"optimize_on_store" json:"optimize_on_store"`
}

// DocumentsConfig configures document buffering.
type DocumentsConfig struct {
	// FlushThreshold is the number of pending operations that forces a
	// spill into the index transaction. Zero buffers without limit.
	FlushThreshold int `yaml:"flush_threshold" json:"flush_threshold"`
}

// LoggingConfig configures the log file.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig returns the default configuration.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			MaxOpenReaders: 400,
			LockTimeout:    10 * time.Second,
			OpenTimeout:    5 * time.Second,
		},
		Documents: DocumentsConfig{
			FlushThreshold: 0,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/txindex/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/txindex/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "txindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "txindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "txindex", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration for dir. It applies, in order of increasing
// precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/txindex/config.yaml)
//  3. Project config (.txindex.yaml in dir)
//  4. Environment variables (TXINDEX_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.LoadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if dir != "" {
		if path := filepath.Join(dir, ProjectConfigName); fileExists(path) {
			if err := cfg.LoadFile(path); err != nil {
				return nil, err
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile merges the YAML file at path into c. Keys absent from the file
// keep their current value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	// Booleans cannot tell "false" from "absent", so look at the keys.
	var present map[string]interface{}
	if err := yaml.Unmarshal(data, &present); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed, present)
	return nil
}

// mergeWith copies the values set in other into c.
func (c *Config) mergeWith(other *Config, present map[string]interface{}) {
	has := func(section, key string) bool {
		m, ok := present[section].(map[string]interface{})
		if !ok {
			return false
		}
		_, ok = m[key]
		return ok
	}

	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Index.MaxOpenReaders != 0 {
		c.Index.MaxOpenReaders = other.Index.MaxOpenReaders
	}
	if other.Index.LockTimeout != 0 {
		c.Index.LockTimeout = other.Index.LockTimeout
	}
	if has("index", "open_timeout") {
		c.Index.OpenTimeout = other.Index.OpenTimeout
	}
	if has("index", "watch") {
		c.Index.Watch = other.Index.Watch
	}
	if has("index", "optimize_on_store") {
		c.Index.OptimizeOnStore = other.Index.OptimizeOnStore
	}

	if has("documents", "flush_threshold") {
		c.Documents.FlushThreshold = other.Documents.FlushThreshold
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies TXINDEX_* environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("TXINDEX_MAX_OPEN_READERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TXINDEX_MAX_OPEN_READERS: %w", err)
		}
		c.Index.MaxOpenReaders = n
	}
	if v := os.Getenv("TXINDEX_LOCK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TXINDEX_LOCK_TIMEOUT: %w", err)
		}
		c.Index.LockTimeout = d
	}
	if v := os.Getenv("TXINDEX_OPEN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TXINDEX_OPEN_TIMEOUT: %w", err)
		}
		c.Index.OpenTimeout = d
	}
	if v := os.Getenv("TXINDEX_WATCH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TXINDEX_WATCH: %w", err)
		}
		c.Index.Watch = b
	}
	if v := os.Getenv("TXINDEX_FLUSH_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TXINDEX_FLUSH_THRESHOLD: %w", err)
		}
		c.Documents.FlushThreshold = n
	}
	if v := os.Getenv("TXINDEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TXINDEX_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	return nil
}

// Validate returns an ERR_102_CONFIG_INVALID error describing the first
// invalid setting.
func (c *Config) Validate() error {
	if c.Index.MaxOpenReaders < 1 {
		return invalidf("index.max_open_readers must be at least 1, got %d", c.Index.MaxOpenReaders)
	}
	if c.Index.LockTimeout <= 0 {
		return invalidf("index.lock_timeout must be positive, got %s", c.Index.LockTimeout)
	}
	if c.Index.OpenTimeout < 0 {
		return invalidf("index.open_timeout must be non-negative, got %s", c.Index.OpenTimeout)
	}
	if c.Documents.FlushThreshold < 0 {
		return invalidf("documents.flush_threshold must be non-negative, got %d", c.Documents.FlushThreshold)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return invalidf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 1 {
		return invalidf("logging.max_size_mb must be at least 1, got %d", c.Logging.MaxSizeMB)
	}
	if c.Logging.MaxFiles < 1 {
		return invalidf("logging.max_files must be at least 1, got %d", c.Logging.MaxFiles)
	}
	return nil
}

func invalidf(format string, args ...interface{}) error {
	return ixerrors.New(ixerrors.ErrCodeConfigInvalid, fmt.Sprintf(format, args...), nil)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
