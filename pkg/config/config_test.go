package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingDefaultFileUsesDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, warnings, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
billing:
  rate: 0.012
  gpu_weight: 8
report:
  timezone: Europe/Oslo
accounting:
  step_mode: batch
  timeout: 5s
  retries: 2
  save_raw: false
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, warnings, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 0.012, cfg.Billing.Rate)
	assert.Equal(t, 8.0, cfg.Billing.GPUWeight)
	assert.Equal(t, "$", cfg.Billing.Currency)
	assert.Equal(t, "Europe/Oslo", cfg.Report.TimeZone)
	assert.Equal(t, "batch", cfg.Accounting.StepMode)
	assert.Equal(t, 5*time.Second, cfg.Accounting.Timeout)
	assert.Equal(t, 2, cfg.Accounting.Retries)
	assert.False(t, cfg.Accounting.ShouldSaveRaw())
	assert.Equal(t, 4, cfg.Accounting.Workers)
}

func TestLoad_EnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0644))
	t.Setenv("CONFIG_PATH", path)

	cfg, _, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("billing: [1, 2"), 0644))

	_, _, err := Load(path)
	assert.Error(t, err)
}

func TestValidateAndApplyDefaults(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		check  func(*testing.T, *Config)
		warns  int
	}{
		{
			name:   "unknown step mode",
			mutate: func(c *Config) { c.Accounting.StepMode = "extern" },
			check:  func(t *testing.T, c *Config) { assert.Equal(t, "srun", c.Accounting.StepMode) },
			warns:  1,
		},
		{
			name:   "step mode is case-insensitive",
			mutate: func(c *Config) { c.Accounting.StepMode = " Batch " },
			check:  func(t *testing.T, c *Config) { assert.Equal(t, "batch", c.Accounting.StepMode) },
			warns:  0,
		},
		{
			name:   "unknown timezone",
			mutate: func(c *Config) { c.Report.TimeZone = "Mars/Olympus" },
			check:  func(t *testing.T, c *Config) { assert.Equal(t, "US/Pacific", c.Report.TimeZone) },
			warns:  1,
		},
		{
			name:   "empty timezone is silently defaulted",
			mutate: func(c *Config) { c.Report.TimeZone = "" },
			check:  func(t *testing.T, c *Config) { assert.Equal(t, "US/Pacific", c.Report.TimeZone) },
			warns:  0,
		},
		{
			name:   "negative backoff",
			mutate: func(c *Config) { c.Accounting.Backoff = -time.Second },
			check:  func(t *testing.T, c *Config) { assert.Equal(t, time.Second, c.Accounting.Backoff) },
			warns:  1,
		},
		{
			name:   "zero backoff is allowed",
			mutate: func(c *Config) { c.Accounting.Backoff = 0 },
			check:  func(t *testing.T, c *Config) { assert.Zero(t, c.Accounting.Backoff) },
			warns:  0,
		},
		{
			name:   "port out of range",
			mutate: func(c *Config) { c.Server.Port = 70000 },
			check:  func(t *testing.T, c *Config) { assert.Equal(t, 8080, c.Server.Port) },
			warns:  1,
		},
		{
			name:   "unknown server mode",
			mutate: func(c *Config) { c.Server.Mode = "production" },
			check:  func(t *testing.T, c *Config) { assert.Equal(t, "release", c.Server.Mode) },
			warns:  1,
		},
		{
			name:   "nil save_raw",
			mutate: func(c *Config) { c.Accounting.SaveRaw = nil },
			check:  func(t *testing.T, c *Config) { assert.True(t, c.Accounting.ShouldSaveRaw()) },
			warns:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			warnings := validateAndApplyDefaults(cfg)
			assert.Len(t, warnings, tt.warns)
			tt.check(t, cfg)
		})
	}
}

func TestMySQLConfig_DSN(t *testing.T) {
	c := MySQLConfig{Host: "db", Port: 3307, User: "u", Password: "p", Database: "runs"}
	assert.Equal(t, "u:p@tcp(db:3307)/runs?charset=utf8mb4&parseTime=True&loc=UTC", c.DSN())
}
