package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

var ErrUnsupportedFormat = errors.New("config: unsupported file format")

// Loader handles configuration loading from a YAML or TOML file and
// environment variables, then validates the result.
//
// Priority: File > Env Vars > Defaults. envconfig applies `default` tags
// whenever a variable is unset, so the file is decoded last to keep values
// it sets. Loader runs once at startup.
type Loader[T any] struct {
	envPrefix  string
	configPath string
	validate   *validator.Validate
}

func NewLoader[T any](envPrefix, configPath string) *Loader[T] {
	return &Loader[T]{
		envPrefix:  envPrefix,
		configPath: configPath,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Load reads and validates the configuration. A missing file is not an
// error; a file that cannot be parsed is.
func (l *Loader[T]) Load() (*T, error) {
	var cfg T

	if err := envconfig.Process(l.envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to process env vars: %w", err)
	}

	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err == nil {
			if err := decodeFile(l.configPath, &cfg); err != nil {
				return nil, err
			}
		}
	}

	if err := l.validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

func decodeFile(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("config: failed to decode %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(raw), out); err != nil {
			return fmt.Errorf("config: failed to decode %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	return nil
}
