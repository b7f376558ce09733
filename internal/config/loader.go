package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"threadsync/internal/log"
)

// EnvPrefix namespaces environment overrides, e.g. THREADSYNC_TRANSPORT_URL.
const EnvPrefix = "THREADSYNC"

// Loader resolves configuration from flags, environment, an optional file and defaults.
// FUNCTIONAL DISCOVERY: Precedence is flags > environment > file > defaults, so a
// one-off flag always wins and a checked-in file never hides a deployment override
type Loader struct {
	v *viper.Viper

	// EnvFile is loaded into the process environment before resolving. Missing is fine.
	EnvFile string
}

// NewLoader creates a loader with every key defaulted and env overrides enabled.
func NewLoader() *Loader {
	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v, EnvFile: ".env"}
}

// Viper exposes the underlying instance so commands can bind their flags.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load resolves and validates the configuration. An explicit path must exist;
// without one, threadsync.yaml is looked up in the working directory and then
// in ~/.config/threadsync.
func (l *Loader) Load(path string) (*Config, error) {
	if l.EnvFile != "" {
		if err := godotenv.Load(l.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", l.EnvFile, err)
		}
	}

	if path != "" {
		l.v.SetConfigFile(path)
	} else {
		l.v.SetConfigName("threadsync")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "threadsync"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		log.Debug(log.CatConfig, "no config file found, using defaults and environment")
	} else {
		log.Info(log.CatConfig, "loaded config file", "path", l.v.ConfigFileUsed())
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Load is shorthand for NewLoader().Load(path).
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("role", d.Role)

	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.history_cache_ttl", d.API.HistoryCacheTTL)

	v.SetDefault("transport.kind", d.Transport.Kind)
	v.SetDefault("transport.url", d.Transport.URL)
	v.SetDefault("transport.nats_url", d.Transport.NATSURL)
	v.SetDefault("transport.ping_interval", d.Transport.PingInterval)
	v.SetDefault("transport.read_timeout", d.Transport.ReadTimeout)
	v.SetDefault("transport.write_timeout", d.Transport.WriteTimeout)
	v.SetDefault("transport.buffer_size", d.Transport.BufferSize)
	v.SetDefault("transport.max_reconnect_attempts", d.Transport.MaxReconnectAttempts)
	v.SetDefault("transport.reconnect_base_delay", d.Transport.ReconnectBaseDelay)
	v.SetDefault("transport.reconnect_max_delay", d.Transport.ReconnectMaxDelay)
	v.SetDefault("transport.send_rps", d.Transport.SendRPS)
	v.SetDefault("transport.send_burst", d.Transport.SendBurst)

	v.SetDefault("typing.quiet_period", d.Typing.QuietPeriod)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.path", d.Logging.Path)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)

	v.SetDefault("metrics.addr", d.Metrics.Addr)
}
