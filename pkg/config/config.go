// Package config provides configuration structures and loading logic for the
// mock services.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables. Command-line flags are applied by the caller on top.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"

	"github.com/polisai/polis-mocks/pkg/chunking"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the configuration for both mock services.
type Config struct {
	LLM             ListenerConfig  `yaml:"llm" envPrefix:"LLM_"`
	Audit           ListenerConfig  `yaml:"audit" envPrefix:"AUDIT_"`
	Stream          StreamConfig    `yaml:"stream" envPrefix:"STREAM_"`
	Logging         LoggingConfig   `yaml:"logging" envPrefix:"LOG_"`
	Telemetry       TelemetryConfig `yaml:"telemetry" envPrefix:"OTEL_"`
	Metrics         MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// ListenerConfig describes where one service listens.
type ListenerConfig struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`
}

// Addr returns the host:port listen address.
func (l ListenerConfig) Addr() string {
	return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
}

// StreamConfig tunes how the LLM mock synthesizes and paces replies.
type StreamConfig struct {
	// Interval is the pause after each streamed fragment.
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
	// EventCount is the fragment count used when a request omits one.
	EventCount int `yaml:"event_count" env:"EVENT_COUNT"`
	// ChunkSize is the fragment length, in runes, of OpenAI-style streams.
	ChunkSize int `yaml:"chunk_size" env:"CHUNK_SIZE"`
	// ReplyPrefix is prepended to the echoed user content in OpenAI-style replies.
	ReplyPrefix string `yaml:"reply_prefix" env:"REPLY_PREFIX"`
	// EmptyReply replaces the user content when no user message has text.
	EmptyReply string `yaml:"empty_reply" env:"EMPTY_REPLY"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Pretty bool   `yaml:"pretty" env:"PRETTY"`
}

// TelemetryConfig holds configuration for OpenTelemetry tracing.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	Insecure    bool   `yaml:"insecure" env:"INSECURE"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// MetricsConfig controls the Prometheus endpoint served on each listener.
type MetricsConfig struct {
	// Path is the HTTP path for metrics; empty disables the endpoint.
	Path string `yaml:"path" env:"PATH"`
}

// Default returns a configuration with the stock ports and stream settings.
func Default() *Config {
	return &Config{
		LLM:   ListenerConfig{Port: 8000},
		Audit: ListenerConfig{Port: 8001},
		Stream: StreamConfig{
			Interval:    chunking.DefaultInterval,
			EventCount:  chunking.DefaultEventCount,
			ChunkSize:   10,
			ReplyPrefix: "这是模拟回复: ",
			EmptyReply:  "(empty message)",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "polis-mocks",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load builds a configuration from defaults, the YAML file at path (when path
// is not empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile overlays the YAML document at path onto cfg.
func LoadFile(path string, cfg *Config) error {
	//nolint:gosec // Config file path is controlled by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg. Unset variables leave the
// current values untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the services cannot run with.
func (c *Config) Validate() error {
	if err := c.LLM.validate(); err != nil {
		return fmt.Errorf("%w: llm listener: %w", ErrInvalidConfig, err)
	}
	if err := c.Audit.validate(); err != nil {
		return fmt.Errorf("%w: audit listener: %w", ErrInvalidConfig, err)
	}
	if c.LLM.Port != 0 && c.LLM.Port == c.Audit.Port && c.LLM.Host == c.Audit.Host {
		return fmt.Errorf("%w: llm and audit listeners share %s", ErrInvalidConfig, c.LLM.Addr())
	}
	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("%w: stream: %w", ErrInvalidConfig, err)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: shutdown_timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (l ListenerConfig) validate() error {
	if l.Port < 0 || l.Port > 65535 {
		return fmt.Errorf("port %d out of range", l.Port)
	}
	return nil
}

// Validate checks the stream settings.
func (s StreamConfig) Validate() error {
	if s.Interval < 0 {
		return errors.New("interval must not be negative")
	}
	if s.EventCount < 1 {
		return errors.New("event_count must be at least 1")
	}
	if s.ChunkSize < 1 {
		return errors.New("chunk_size must be at least 1")
	}
	return nil
}
