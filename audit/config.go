package audit

import "time"

// OverflowPolicy decides what a queue-backed sink does when its buffer is full.
type OverflowPolicy string

const (
	// OverflowBlock waits for space, bounded by EnqueueTimeout and the caller's
	// context. Use for ledger-grade services that must not lose events.
	OverflowBlock OverflowPolicy = "block"
	// OverflowDrop drops the event, logs a rate-limited warning and counts it.
	OverflowDrop OverflowPolicy = "drop"
)

// Mode selects whether a sink is written on the caller's goroutine or through
// a buffered queue.
type Mode string

const (
	ModeSync  Mode = "sync"
	ModeAsync Mode = "async"
)

type Config struct {
	// Enabled determines if audit capture is active.
	Enabled bool `envconfig:"ENABLED" default:"true" yaml:"enabled" toml:"enabled"`

	// CaptureArguments and CaptureResults copy payloads into events.
	// Disable them for operations that handle secrets.
	CaptureArguments bool `envconfig:"CAPTURE_ARGUMENTS" default:"true" yaml:"capture_arguments" toml:"capture_arguments"`
	CaptureResults   bool `envconfig:"CAPTURE_RESULTS" default:"true" yaml:"capture_results" toml:"capture_results"`

	// ExcludePaths are HTTP paths never audited by the HTTP middleware.
	ExcludePaths []string `envconfig:"EXCLUDE_PATHS" default:"/health,/metrics,/live,/ready" yaml:"exclude_paths" toml:"exclude_paths"`

	Sinks []SinkConfig `ignored:"true" yaml:"sinks" toml:"sinks" validate:"dive"`
}

// SinkConfig describes one output adapter. Only the address fields relevant
// to Type are read.
type SinkConfig struct {
	Name string `yaml:"name" toml:"name" validate:"required"`
	Type string `yaml:"type" toml:"type" validate:"required,oneof=console file kafka kafka_sync redis postgres sqlite noop"`

	Path    string   `yaml:"path" toml:"path" validate:"required_if=Type file"`
	Brokers []string `yaml:"brokers" toml:"brokers" validate:"required_if=Type kafka,required_if=Type kafka_sync"`
	Topic   string   `yaml:"topic" toml:"topic"`
	Addr    string   `yaml:"addr" toml:"addr" validate:"required_if=Type redis"`
	Stream  string   `yaml:"stream" toml:"stream"`
	MaxLen  int64    `yaml:"max_len" toml:"max_len" validate:"gte=0"`
	DSN     string   `yaml:"dsn" toml:"dsn" validate:"required_if=Type postgres,required_if=Type sqlite"`
	Table   string   `yaml:"table" toml:"table"`

	Mode           Mode           `yaml:"mode" toml:"mode" validate:"omitempty,oneof=sync async"`
	BufferSize     int            `yaml:"buffer_size" toml:"buffer_size" validate:"gte=0"`
	// Overflow must be set when Mode is async; there is no implicit policy.
	Overflow       OverflowPolicy `yaml:"overflow" toml:"overflow" validate:"omitempty,oneof=block drop"`
	EnqueueTimeout time.Duration  `yaml:"enqueue_timeout" toml:"enqueue_timeout" validate:"gte=0"`
}
