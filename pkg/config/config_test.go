package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, ":8433", cfg.ListenAddr)
	assert.Empty(t, cfg.Redis.Addr, "default is the in-memory store")
	assert.Empty(t, cfg.Postgres.DSN, "default is the no-op repository")
	assert.Equal(t, 80.0, cfg.Thresholds.ImpactAlert)
	assert.Equal(t, 120.0, cfg.Thresholds.ImpactCritical)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
scan_timeout: 5s
redis:
  addr: localhost:6379
thresholds:
  impact_alert: 70
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ScanTimeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 70.0, cfg.Thresholds.ImpactAlert)
	// Untouched keys keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 100.0, cfg.Thresholds.ImpactSevere)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: [not a string"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"zero scan timeout", func(c *Config) { c.ScanTimeout = 0 }},
		{"negative connect timeout", func(c *Config) { c.ConnectTimeout = -time.Second }},
		{"non-increasing impact thresholds", func(c *Config) { c.Thresholds.ImpactSevere = 80 }},
		{"inverted impact thresholds", func(c *Config) { c.Thresholds.ImpactCritical = 90 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "warn"
	assert.Equal(t, logrus.WarnLevel, cfg.NewLogger().GetLevel())

	cfg.LogLevel = "garbage"
	assert.Equal(t, logrus.InfoLevel, cfg.NewLogger().GetLevel(), "unparseable level falls back to info")
}
