package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as the single settings coordinator
// for the REST collaborator, the live transport and the local typing policy
type Config struct {
	Role      string          `mapstructure:"role" yaml:"role"`
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`
	Typing    TypingConfig    `mapstructure:"typing" yaml:"typing"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// APIConfig points at the feedback REST service.
// HistoryCacheTTL of zero disables the history cache.
type APIConfig struct {
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	HistoryCacheTTL time.Duration `mapstructure:"history_cache_ttl" yaml:"history_cache_ttl"`
}

// FUNCTIONAL DISCOVERY: Transport configuration keeps the websocket heartbeat values
// and adds the bounded reconnect budget and outbound send limit
type TransportConfig struct {
	Kind                 string        `mapstructure:"kind" yaml:"kind"` // "websocket" (default) or "nats"
	URL                  string        `mapstructure:"url" yaml:"url"`
	NATSURL              string        `mapstructure:"nats_url" yaml:"nats_url"`
	PingInterval         time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	BufferSize           int           `mapstructure:"buffer_size" yaml:"buffer_size"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `mapstructure:"reconnect_base_delay" yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `mapstructure:"reconnect_max_delay" yaml:"reconnect_max_delay"`
	SendRPS              float64       `mapstructure:"send_rps" yaml:"send_rps"` // 0 disables limiting
	SendBurst            int           `mapstructure:"send_burst" yaml:"send_burst"`
}

// TypingConfig controls the local typing indicator.
type TypingConfig struct {
	QuietPeriod time.Duration `mapstructure:"quiet_period" yaml:"quiet_period"`
}

// LoggingConfig selects level and destination. An empty path logs to stderr.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	Path  string `mapstructure:"path" yaml:"path"`
}

// TracingConfig configures OpenTelemetry spans.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Exporter    string `mapstructure:"exporter" yaml:"exporter"` // "none" or "stdout"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}

// MetricsConfig sets the Prometheus listen address. Empty disables the endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

const (
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"
)

// FUNCTIONAL DISCOVERY: Defaults match the original deployment, REST on :3000 and the
// live event server on :5000, with a 3s typing quiet period
func DefaultConfig() *Config {
	return &Config{
		Role: "developer",
		API: APIConfig{
			BaseURL: "http://localhost:3000",
			Timeout: 10 * time.Second,
		},
		Transport: TransportConfig{
			Kind:                 TransportWebSocket,
			URL:                  "ws://localhost:5000/ws",
			NATSURL:              "nats://127.0.0.1:4222",
			PingInterval:         30 * time.Second,
			ReadTimeout:          60 * time.Second,
			WriteTimeout:         10 * time.Second,
			BufferSize:           100,
			MaxReconnectAttempts: 5,
			ReconnectBaseDelay:   500 * time.Millisecond,
			ReconnectMaxDelay:    10 * time.Second,
			SendRPS:              5,
			SendBurst:            10,
		},
		Typing: TypingConfig{
			QuietPeriod: 3 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			Exporter:    "none",
			ServiceName: "threadsync",
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Role) == "" {
		return fmt.Errorf("role cannot be empty")
	}

	if err := validateURL(c.API.BaseURL, "http", "https"); err != nil {
		return fmt.Errorf("api base_url: %w", err)
	}

	if c.API.Timeout <= 0 {
		return fmt.Errorf("api timeout must be positive")
	}

	if c.API.HistoryCacheTTL < 0 {
		return fmt.Errorf("api history_cache_ttl cannot be negative")
	}

	t := c.Transport
	switch t.Kind {
	case TransportWebSocket:
		if err := validateURL(t.URL, "ws", "wss"); err != nil {
			return fmt.Errorf("transport url: %w", err)
		}
	case TransportNATS:
		if err := validateURL(t.NATSURL, "nats", "tls"); err != nil {
			return fmt.Errorf("transport nats_url: %w", err)
		}
	default:
		return fmt.Errorf("transport kind must be %q or %q, got %q", TransportWebSocket, TransportNATS, t.Kind)
	}

	if t.PingInterval <= 0 {
		return fmt.Errorf("transport ping interval must be positive")
	}

	if t.ReadTimeout <= t.PingInterval {
		return fmt.Errorf("transport read timeout must exceed ping interval")
	}

	if t.WriteTimeout <= 0 {
		return fmt.Errorf("transport write timeout must be positive")
	}

	if t.BufferSize <= 0 {
		return fmt.Errorf("transport buffer size must be positive")
	}

	if t.MaxReconnectAttempts < 0 {
		return fmt.Errorf("transport max reconnect attempts cannot be negative")
	}

	if t.ReconnectBaseDelay <= 0 || t.ReconnectMaxDelay < t.ReconnectBaseDelay {
		return fmt.Errorf("transport reconnect delays must satisfy 0 < base <= max")
	}

	if t.SendRPS < 0 {
		return fmt.Errorf("transport send rps cannot be negative")
	}

	if t.SendRPS > 0 && t.SendBurst <= 0 {
		return fmt.Errorf("transport send burst must be positive when send rps is set")
	}

	if c.Typing.QuietPeriod <= 0 {
		return fmt.Errorf("typing quiet period must be positive")
	}

	switch c.Tracing.Exporter {
	case "none", "stdout":
	default:
		return fmt.Errorf("tracing exporter must be \"none\" or \"stdout\", got %q", c.Tracing.Exporter)
	}

	return nil
}

func validateURL(raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("missing host in %q", raw)
			}
			return nil
		}
	}
	return fmt.Errorf("scheme must be one of %v, got %q", schemes, u.Scheme)
}
