package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/d21d3q/golora/internal/crypto"
	"github.com/d21d3q/golora/internal/options"
	"github.com/d21d3q/golora/internal/sink/timescale"
	"github.com/d21d3q/golora/internal/source/mqtt"
)

// Config holds all configuration for the exporter.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Trust   TrustConfig   `mapstructure:"trust"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Sink    SinkConfig    `mapstructure:"sink"`
	Session SessionConfig `mapstructure:"session"`
	Source  SourceConfig  `mapstructure:"source"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type TrustConfig struct {
	PublicKey string `mapstructure:"public_key"`
}

type HTTPConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SinkConfig struct {
	Timeout    time.Duration    `mapstructure:"timeout"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Timescale  TimescaleConfig  `mapstructure:"timescale"`
}

type RetryConfig struct {
	MaxElapsed time.Duration `mapstructure:"max_elapsed"`
}

type PrometheusConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

type TimescaleConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	EnsureSchema     bool `mapstructure:"ensure_schema"`
	timescale.Config `mapstructure:",squash"`
}

type SessionConfig struct {
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%d", r.Host, r.Port) }

type SourceConfig struct {
	Kind string      `mapstructure:"kind"`
	MQTT mqtt.Config `mapstructure:"mqtt"`
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	SourceStdin   = "stdin"
	SourceMQTT    = "mqtt"
)

// Load reads configuration from defaults, an optional yaml file and
// GOLORA_* environment variables, in increasing priority. An empty path
// looks for config.yaml in ./config and the working directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GOLORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key, including empty secrets, so AutomaticEnv
// can resolve it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("trust.public_key", fmt.Sprintf("%x", crypto.DefaultTrustedKey))

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8000)
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("sink.timeout", "5s")
	v.SetDefault("sink.retry.max_elapsed", "0s")
	v.SetDefault("sink.prometheus.enabled", true)
	v.SetDefault("sink.prometheus.namespace", "lora")
	v.SetDefault("sink.timescale.enabled", false)
	v.SetDefault("sink.timescale.ensure_schema", true)
	v.SetDefault("sink.timescale.host", "localhost")
	v.SetDefault("sink.timescale.port", 5432)
	v.SetDefault("sink.timescale.user", "")
	v.SetDefault("sink.timescale.password", "")
	v.SetDefault("sink.timescale.dbname", "")
	v.SetDefault("sink.timescale.sslmode", "disable")
	v.SetDefault("sink.timescale.table", timescale.DefaultTable)

	v.SetDefault("session.backend", BackendMemory)
	v.SetDefault("session.redis.host", "localhost")
	v.SetDefault("session.redis.port", 6379)
	v.SetDefault("session.redis.password", "")
	v.SetDefault("session.redis.db", 0)
	v.SetDefault("session.redis.prefix", "")

	v.SetDefault("source.kind", SourceStdin)
	v.SetDefault("source.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("source.mqtt.topic", "lora/rx")
	v.SetDefault("source.mqtt.client_id", "golora-exporter")
	v.SetDefault("source.mqtt.username", "")
	v.SetDefault("source.mqtt.password", "")
	v.SetDefault("source.mqtt.qos", 1)
	v.SetDefault("source.mqtt.buffer", 64)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := c.TrustedKey(); err != nil {
		return err
	}
	if !c.Sink.Prometheus.Enabled && !c.Sink.Timescale.Enabled {
		return fmt.Errorf("at least one sink must be enabled")
	}
	if c.Sink.Timescale.Enabled && c.Sink.Timescale.DBName == "" {
		return fmt.Errorf("timescale dbname is required")
	}
	switch c.Session.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	switch c.Source.Kind {
	case SourceStdin:
	case SourceMQTT:
		if c.Source.MQTT.Broker == "" || c.Source.MQTT.Topic == "" {
			return fmt.Errorf("mqtt broker and topic are required")
		}
		if c.Source.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt qos must be 0, 1 or 2")
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}
	return nil
}

// TrustedKey decodes the configured public key.
func (c *Config) TrustedKey() ([]byte, error) {
	key, err := options.ParseKeyHex(c.Trust.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("trust.public_key: %w", err)
	}
	if key == nil {
		return nil, fmt.Errorf("trust.public_key is required")
	}
	return key, nil
}
