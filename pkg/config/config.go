// Package config provides YAML-based configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// EnvOverrider is implemented by configs that read overrides from the
// process environment. ApplyEnv runs after the file is parsed and before
// validation.
type EnvOverrider interface {
	ApplyEnv()
}

// Load loads configuration from a YAML file with environment variable expansion.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	if err := Parse(data, target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	return finish(target)
}

// LoadOptional behaves like Load but treats a missing file as empty, so
// defaults and environment overrides alone can configure the target.
func LoadOptional[T any](filename string, target *T) error {
	if filename == "" {
		return finish(target)
	}
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return finish(target)
	}
	return Load(filename, target)
}

// Parse expands ${VAR} references in data and decodes it into target.
func Parse[T any](data []byte, target *T) error {
	expanded := os.ExpandEnv(string(data))
	return yaml.Unmarshal([]byte(expanded), target)
}

func finish[T any](target *T) error {
	if o, ok := any(target).(EnvOverrider); ok {
		o.ApplyEnv()
	}
	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}
