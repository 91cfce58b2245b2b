package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Default values for Config.
const (
	DefaultOutputBuffer    = 1024
	DefaultMaxProgramBytes = 16 << 20
	DefaultMaxMemoryBytes  = 32 << 20
	DefaultServerPort      = 8374
)

// Config file locations relative to the base path.
const (
	Dir      = ".bfi"
	YAMLFile = "config.yaml"
	TOMLFile = "config.toml"
)

// DefaultEngine returns engine settings with sensible default values.
func DefaultEngine() Engine {
	return Engine{
		OutputBuffer:    DefaultOutputBuffer,
		MaxProgramBytes: DefaultMaxProgramBytes,
		MaxMemoryBytes:  DefaultMaxMemoryBytes,
	}
}

// DefaultServerConfig returns a ServerConfig with sensible default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port: DefaultServerPort,
	}
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Engine: DefaultEngine(),
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Path returns the config file in use under basePath: config.yaml if it
// exists, otherwise config.toml if that exists, otherwise the config.yaml
// path that SaveConfig would create.
func Path(basePath string) string {
	dir := filepath.Join(basePath, Dir)
	yamlPath := filepath.Join(dir, YAMLFile)
	if fileExists(yamlPath) {
		return yamlPath
	}
	tomlPath := filepath.Join(dir, TOMLFile)
	if fileExists(tomlPath) {
		return tomlPath
	}
	return yamlPath
}

// LoadConfig reads and parses .bfi/config.yaml, or .bfi/config.toml when no
// YAML file exists, from the given base path.
// If neither file exists, returns default config.
// Applies defaults for any missing fields.
func LoadConfig(basePath string) (*Config, error) {
	configPath := Path(basePath)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if filepath.Ext(configPath) == ".toml" {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SaveConfig writes cfg back to the config file in use under basePath,
// keeping its format. A new file is written as YAML.
func SaveConfig(basePath string, cfg *Config) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}

	configPath := Path(basePath)
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	if filepath.Ext(configPath) == ".toml" {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		data, err = yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	}

	// The file may hold a password hash.
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ValidateConfig checks that all config values are valid.
func ValidateConfig(cfg *Config) error {
	if cfg.Engine.OutputBuffer <= 0 {
		return ValidationError{Field: "engine.output_buffer", Message: "must be positive"}
	}
	if cfg.Engine.MaxProgramBytes <= 0 {
		return ValidationError{Field: "engine.max_program_bytes", Message: "must be positive"}
	}
	if cfg.Engine.MaxMemoryBytes < 0 {
		return ValidationError{Field: "engine.max_memory_bytes", Message: "must not be negative"}
	}

	// Validate server config if present
	if cfg.Server != nil {
		if err := ValidateServerConfig(cfg.Server); err != nil {
			return err
		}
	}

	return nil
}

// ValidateServerConfig checks that server config values are valid.
func ValidateServerConfig(cfg *ServerConfig) error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return ValidationError{Field: "server.port", Message: "must be between 0 and 65535"}
	}
	return nil
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
