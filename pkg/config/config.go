// Package config handles nornicproj configuration via YAML files and environment variables.
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags (--package, --engine, etc.)
//  2. Environment variables (NORNICPROJ_*)
//  3. Config file (nornicproj.yaml)
//  4. Built-in defaults
//
// Example Usage:
//
//	cfg, err := config.LoadFromFile(config.FindConfigFile())
//	if err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
// Environment Variables (all use NORNICPROJ_ prefix):
//
// Compiler:
//   - NORNICPROJ_PACKAGE="compiled"
//   - NORNICPROJ_TYPE_NAME="Projection"
//   - NORNICPROJ_GOFMT=true
//
// Storage:
//   - NORNICPROJ_STORAGE_ENGINE="memory" or "badger"
//   - NORNICPROJ_DATA_DIR="./data"
//   - NORNICPROJ_IN_MEMORY=false
//   - NORNICPROJ_SYNC_WRITES=false
//   - NORNICPROJ_LOW_MEMORY=false
//
// Profiling:
//   - NORNICPROJ_PROFILE=true
//   - NORNICPROJ_PROMETHEUS=false
//
// Logging:
//   - NORNICPROJ_LOG_LEVEL="info"
//   - NORNICPROJ_LOG_FORMAT="logfmt" or "json"
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Storage engine names.
const (
	EngineMemory = "memory"
	EngineBadger = "badger"
)

// Config holds all nornicproj configuration.
//
// Configuration is organized into logical sections:
//   - Compiler: how generated Go source is rendered
//   - Storage: which graph store projections are evaluated against
//   - Profiling: per-operator instrumentation
//   - Logging: log level and format
type Config struct {
	Compiler  CompilerConfig
	Storage   StorageConfig
	Profiling ProfilingConfig
	Logging   LoggingConfig
}

// CompilerConfig holds code generation settings.
type CompilerConfig struct {
	// Package clause of generated files
	Package string
	// TypeName of the generated unit struct
	TypeName string
	// Format runs generated source through gofmt
	Format bool
}

// StorageConfig holds graph store settings.
type StorageConfig struct {
	// Engine is "memory" or "badger"
	Engine string
	// DataDir for the badger engine
	DataDir string
	// InMemory runs badger without touching disk
	InMemory bool
	// SyncWrites fsyncs every badger commit
	SyncWrites bool
	// LowMemory shrinks badger caches and tables
	LowMemory bool
}

// ProfilingConfig holds instrumentation settings.
type ProfilingConfig struct {
	// Enabled records db hits and rows per operator
	Enabled bool
	// Prometheus also exports the counters as Prometheus metrics
	Prometheus bool
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level (debug, info, warn, error)
	Level string
	// Format (logfmt, json)
	Format string
}

// LoadDefaults returns a Config with all built-in defaults.
func LoadDefaults() *Config {
	config := &Config{}

	config.Compiler.Package = "compiled"
	config.Compiler.TypeName = "Projection"
	config.Compiler.Format = true

	config.Storage.Engine = EngineMemory
	config.Storage.DataDir = "./data"

	config.Profiling.Enabled = true

	config.Logging.Level = "info"
	config.Logging.Format = "logfmt"

	return config
}

// LoadFromEnv returns the defaults with environment overrides applied.
func LoadFromEnv() *Config {
	config := LoadDefaults()
	applyEnvVars(config)
	return config
}

// ApplyEnvVars applies environment variable overrides to an existing config.
func ApplyEnvVars(config *Config) {
	applyEnvVars(config)
}

func applyEnvVars(config *Config) {
	config.Compiler.Package = getEnv("NORNICPROJ_PACKAGE", config.Compiler.Package)
	config.Compiler.TypeName = getEnv("NORNICPROJ_TYPE_NAME", config.Compiler.TypeName)
	config.Compiler.Format = getEnvBool("NORNICPROJ_GOFMT", config.Compiler.Format)

	config.Storage.Engine = strings.ToLower(getEnv("NORNICPROJ_STORAGE_ENGINE", config.Storage.Engine))
	config.Storage.DataDir = getEnv("NORNICPROJ_DATA_DIR", config.Storage.DataDir)
	config.Storage.InMemory = getEnvBool("NORNICPROJ_IN_MEMORY", config.Storage.InMemory)
	config.Storage.SyncWrites = getEnvBool("NORNICPROJ_SYNC_WRITES", config.Storage.SyncWrites)
	config.Storage.LowMemory = getEnvBool("NORNICPROJ_LOW_MEMORY", config.Storage.LowMemory)

	config.Profiling.Enabled = getEnvBool("NORNICPROJ_PROFILE", config.Profiling.Enabled)
	config.Profiling.Prometheus = getEnvBool("NORNICPROJ_PROMETHEUS", config.Profiling.Prometheus)

	config.Logging.Level = strings.ToLower(getEnv("NORNICPROJ_LOG_LEVEL", config.Logging.Level))
	config.Logging.Format = strings.ToLower(getEnv("NORNICPROJ_LOG_FORMAT", config.Logging.Format))
}

// YAMLConfig represents the YAML configuration file structure.
// Booleans are pointers so an explicit false overrides a true default.
type YAMLConfig struct {
	Compiler struct {
		Package  string `yaml:"package"`
		TypeName string `yaml:"type_name"`
		Gofmt    *bool  `yaml:"gofmt"`
	} `yaml:"compiler"`

	Storage struct {
		Engine     string `yaml:"engine"`
		DataDir    string `yaml:"data_dir"`
		InMemory   *bool  `yaml:"in_memory"`
		SyncWrites *bool  `yaml:"sync_writes"`
		LowMemory  *bool  `yaml:"low_memory"`
	} `yaml:"storage"`

	Profiling struct {
		Enabled    *bool `yaml:"enabled"`
		Prometheus *bool `yaml:"prometheus"`
	} `yaml:"profiling"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// LoadFromFile loads configuration with proper precedence:
//  1. Built-in defaults (lowest priority)
//  2. YAML config file
//  3. Environment variables
//
// A missing file is not an error. Command-line flags are applied by the
// caller after this.
//
// Example YAML:
//
//	compiler:
//	  package: queries
//	storage:
//	  engine: badger
//	  data_dir: /var/lib/nornicproj
//	logging:
//	  level: debug
func LoadFromFile(configPath string) (*Config, error) {
	config := LoadDefaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			var yamlCfg YAMLConfig
			if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			applyYAML(config, &yamlCfg)
		}
	}

	applyEnvVars(config)
	return config, nil
}

func applyYAML(config *Config, y *YAMLConfig) {
	if y.Compiler.Package != "" {
		config.Compiler.Package = y.Compiler.Package
	}
	if y.Compiler.TypeName != "" {
		config.Compiler.TypeName = y.Compiler.TypeName
	}
	setBool(&config.Compiler.Format, y.Compiler.Gofmt)

	if y.Storage.Engine != "" {
		config.Storage.Engine = strings.ToLower(y.Storage.Engine)
	}
	if y.Storage.DataDir != "" {
		config.Storage.DataDir = y.Storage.DataDir
	}
	setBool(&config.Storage.InMemory, y.Storage.InMemory)
	setBool(&config.Storage.SyncWrites, y.Storage.SyncWrites)
	setBool(&config.Storage.LowMemory, y.Storage.LowMemory)

	setBool(&config.Profiling.Enabled, y.Profiling.Enabled)
	setBool(&config.Profiling.Prometheus, y.Profiling.Prometheus)

	if y.Logging.Level != "" {
		config.Logging.Level = strings.ToLower(y.Logging.Level)
	}
	if y.Logging.Format != "" {
		config.Logging.Format = strings.ToLower(y.Logging.Format)
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// Validate checks the configuration for logical errors and invalid values.
func (c *Config) Validate() error {
	if c.Compiler.Package == "" {
		return fmt.Errorf("compiler package name is required")
	}
	if c.Compiler.TypeName == "" {
		return fmt.Errorf("compiler type name is required")
	}

	switch c.Storage.Engine {
	case EngineMemory:
	case EngineBadger:
		if !c.Storage.InMemory && c.Storage.DataDir == "" {
			return fmt.Errorf("badger engine requires a data dir or in_memory")
		}
	default:
		return fmt.Errorf("invalid storage engine: %q", c.Storage.Engine)
	}

	if c.Profiling.Prometheus && !c.Profiling.Enabled {
		return fmt.Errorf("prometheus export requires profiling to be enabled")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "logfmt", "json":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}

	return nil
}

// String returns a one-line summary of the Config, suitable for logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Package: %s, Type: %s, Engine: %s, DataDir: %s, Profiling: %v, Prometheus: %v, Log: %s/%s}",
		c.Compiler.Package, c.Compiler.TypeName,
		c.Storage.Engine, c.Storage.DataDir,
		c.Profiling.Enabled, c.Profiling.Prometheus,
		c.Logging.Level, c.Logging.Format,
	)
}

// FindConfigFile searches for a config file in standard locations and
// returns the first one found, or "" if none exists.
// Search order:
//  1. ~/.nornicproj/config.yaml
//  2. ./nornicproj.yaml
//  3. ~/.config/nornicproj/config.yaml (XDG)
func FindConfigFile() string {
	var candidates []string

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".nornicproj", "config.yaml"))
	}
	candidates = append(candidates, "nornicproj.yaml")
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "nornicproj", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}
