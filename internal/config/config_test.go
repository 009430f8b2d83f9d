package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/d21d3q/golora/internal/crypto"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, 8000, cfg.HTTP.Port)
	require.Equal(t, 15*time.Second, cfg.HTTP.ReadTimeout)
	require.True(t, cfg.Sink.Prometheus.Enabled)
	require.False(t, cfg.Sink.Timescale.Enabled)
	require.Equal(t, "lora_readings", cfg.Sink.Timescale.Table)
	require.Equal(t, BackendMemory, cfg.Session.Backend)
	require.Equal(t, SourceStdin, cfg.Source.Kind)

	key, err := cfg.TrustedKey()
	require.NoError(t, err)
	require.Equal(t, crypto.DefaultTrustedKey, key)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "golora.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
sink:
  timescale:
    enabled: true
    host: tsdb
    dbname: telemetry
    table: readings
session:
  backend: redis
  redis:
    host: cache
source:
  kind: mqtt
  mqtt:
    topic: gateway/+/rx
`), 0o600))
	t.Setenv("GOLORA_HTTP__PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, 9100, cfg.HTTP.Port)
	require.True(t, cfg.Sink.Timescale.Enabled)
	require.Equal(t, "tsdb", cfg.Sink.Timescale.Host)
	require.Equal(t, 5432, cfg.Sink.Timescale.Port)
	require.Equal(t, "readings", cfg.Sink.Timescale.Table)
	require.Equal(t, BackendRedis, cfg.Session.Backend)
	require.Equal(t, "cache:6379", cfg.Session.Redis.Addr())
	require.Equal(t, SourceMQTT, cfg.Source.Kind)
	require.Equal(t, "gateway/+/rx", cfg.Source.MQTT.Topic)
	require.Equal(t, byte(1), cfg.Source.MQTT.QoS)
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("GOLORA_SINK__TIMESCALE__ENABLED", "true")
	t.Setenv("GOLORA_SINK__TIMESCALE__DBNAME", "telemetry")
	t.Setenv("GOLORA_SINK__TIMESCALE__USER", "golora")
	t.Setenv("GOLORA_SINK__TIMESCALE__PASSWORD", "s3cret")
	t.Setenv("GOLORA_SESSION__REDIS__PASSWORD", "hunter2")
	t.Setenv("GOLORA_SESSION__REDIS__PREFIX", "site1:")
	t.Setenv("GOLORA_SOURCE__MQTT__USERNAME", "gateway")
	t.Setenv("GOLORA_SOURCE__MQTT__PASSWORD", "relay")

	cfg, err := Load("")
	require.NoError(t, err)
	require.True(t, cfg.Sink.Timescale.Enabled)
	require.Equal(t, "telemetry", cfg.Sink.Timescale.DBName)
	require.Equal(t, "golora", cfg.Sink.Timescale.User)
	require.Equal(t, "s3cret", cfg.Sink.Timescale.Password)
	require.Equal(t, "hunter2", cfg.Session.Redis.Password)
	require.Equal(t, "site1:", cfg.Session.Redis.Prefix)
	require.Equal(t, "gateway", cfg.Source.MQTT.Username)
	require.Equal(t, "relay", cfg.Source.MQTT.Password)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	cases := map[string]func(*Config){
		"bad level":       func(c *Config) { c.Log.Level = "loud" },
		"short key":       func(c *Config) { c.Trust.PublicKey = "abcd" },
		"empty key":       func(c *Config) { c.Trust.PublicKey = "" },
		"no sinks":        func(c *Config) { c.Sink.Prometheus.Enabled = false },
		"timescale no db": func(c *Config) { c.Sink.Timescale.Enabled = true },
		"bad backend":     func(c *Config) { c.Session.Backend = "etcd" },
		"bad source":      func(c *Config) { c.Source.Kind = "serial" },
		"bad qos":         func(c *Config) { c.Source.Kind = SourceMQTT; c.Source.MQTT.QoS = 3 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := *base
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
