package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkSettings struct {
	Name string `yaml:"name" toml:"name" validate:"required"`
	Type string `yaml:"type" toml:"type" validate:"oneof=console file"`
}

type settings struct {
	Service  string         `envconfig:"SERVICE" default:"helix-audit" yaml:"service" toml:"service"`
	Port     string         `envconfig:"PORT" default:"8080" yaml:"port" toml:"port" validate:"required,numeric"`
	Timeout  time.Duration  `envconfig:"TIMEOUT" default:"5s" yaml:"timeout" toml:"timeout"`
	Excluded []string       `envconfig:"EXCLUDED" default:"/health" yaml:"excluded" toml:"excluded"`
	Sinks    []sinkSettings `ignored:"true" yaml:"sinks" toml:"sinks" validate:"dive"`
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoader_DefaultsWithoutFile(t *testing.T) {
	cfg, err := NewLoader[settings]("HAT", "").Load()
	require.NoError(t, err)

	assert.Equal(t, "helix-audit", cfg.Service)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"/health"}, cfg.Excluded)
}

func TestLoader_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("HAT_PORT", "9090")
	t.Setenv("HAT_EXCLUDED", "/a,/b")

	cfg, err := NewLoader[settings]("HAT", filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"/a", "/b"}, cfg.Excluded)
}

func TestLoader_YAML(t *testing.T) {
	path := writeFile(t, "audit.yaml", `
port: "7000"
timeout: 250ms
sinks:
  - name: stdout
    type: console
  - name: archive
    type: file
`)

	cfg, err := NewLoader[settings]("HAT", path).Load()
	require.NoError(t, err)

	assert.Equal(t, "helix-audit", cfg.Service)
	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
	assert.Equal(t, []sinkSettings{{Name: "stdout", Type: "console"}, {Name: "archive", Type: "file"}}, cfg.Sinks)
}

func TestLoader_TOML(t *testing.T) {
	path := writeFile(t, "audit.toml", `
service = "ledger"
timeout = "2s"

[[sinks]]
name = "stdout"
type = "console"
`)

	cfg, err := NewLoader[settings]("HAT", path).Load()
	require.NoError(t, err)

	assert.Equal(t, "ledger", cfg.Service)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	require.Len(t, cfg.Sinks, 1)
	assert.Equal(t, "console", cfg.Sinks[0].Type)
}

func TestLoader_ValidationFails(t *testing.T) {
	path := writeFile(t, "audit.yaml", `
sinks:
  - name: broken
    type: carrier-pigeon
`)

	_, err := NewLoader[settings]("HAT", path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoader_UnsupportedExtension(t *testing.T) {
	path := writeFile(t, "audit.ini", "port=1")

	_, err := NewLoader[settings]("HAT", path).Load()
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
