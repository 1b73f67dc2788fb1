package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/telemetrylab/internal/config"
	"codeberg.org/mutker/telemetrylab/internal/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "telemetrylab.toml")
	err := os.WriteFile(configPath, []byte(content), 0o600)
	require.NoError(t, err)

	return configPath
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
log_level = "debug"
pid_file = "/run/telemetrylab.pid"

[scheduler]
normal_rate_hz = 30
power_save_rate_hz = 5
baseline_intensity = 3
jank_threshold = "20ms"

[window]
duration = "10s"
history_size = 20

[power]
source = "static"
power_save = true

[metrics]
enabled = true
`)

	// Set environment variable to point to the test config file
	t.Setenv("TELEMETRYLAB_CONFIG", configPath)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel debug")
	assert.Equal(t, "/run/telemetrylab.pid", cfg.PIDFile)
	assert.Equal(t, 30, cfg.Scheduler.NormalRateHz)
	assert.Equal(t, 5, cfg.Scheduler.PowerSaveRateHz)
	assert.Equal(t, 3, cfg.Scheduler.BaselineIntensity)
	assert.Equal(t, 20*time.Millisecond, cfg.Scheduler.JankThreshold)
	assert.Equal(t, 10*time.Second, cfg.Window.Duration)
	assert.Equal(t, 20, cfg.Window.HistorySize)
	assert.Equal(t, "static", cfg.Power.Source)
	assert.True(t, cfg.Power.PowerSave)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Server.Enabled)
}

func TestLoadDefaults(t *testing.T) {
	// Ensure no config file is used
	t.Setenv("TELEMETRYLAB_CONFIG", "")

	cfg, err := config.Load()
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel, "Expected default LogLevel info")
	assert.Equal(t, 20, cfg.Scheduler.NormalRateHz)
	assert.Equal(t, 10, cfg.Scheduler.PowerSaveRateHz)
	assert.Equal(t, 2, cfg.Scheduler.BaselineIntensity)
	assert.Equal(t, 5, cfg.Scheduler.MaxIntensity)
	assert.Equal(t, 16*time.Millisecond, cfg.Scheduler.JankThreshold)
	assert.Equal(t, 256, cfg.Scheduler.WorkloadSize)
	assert.Equal(t, 30*time.Second, cfg.Window.Duration)
	assert.Equal(t, 50, cfg.Window.HistorySize)
	assert.Equal(t, "sysfs", cfg.Power.Source)
	assert.True(t, cfg.Frames.Enabled)
	assert.Equal(t, 60, cfg.Frames.RateHz)
	assert.InDelta(t, 2.0, cfg.Frames.JankFactor, 1e-9)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, config.DefaultListen, cfg.Server.Listen)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TELEMETRYLAB_CONFIG", "")
	t.Setenv("TELEMETRYLAB_SCHEDULER_NORMAL_RATE_HZ", "40")
	t.Setenv("TELEMETRYLAB_POWER_SOURCE", "static")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 40, cfg.Scheduler.NormalRateHz)
	assert.Equal(t, "static", cfg.Power.Source)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	configPath := writeConfig(t, `
This is not a valid TOML file
`)

	t.Setenv("TELEMETRYLAB_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read config file")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load(config.WithConfigFile(filepath.Join(t.TempDir(), "missing.toml")))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestInvalidLogLevel(t *testing.T) {
	configPath := writeConfig(t, `
log_level = "invalid"
`)

	t.Setenv("TELEMETRYLAB_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestInvalidPowerSource(t *testing.T) {
	configPath := writeConfig(t, `
[power]
source = "battery"
`)

	_, err := config.Load(config.WithConfigFile(configPath))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidPowerSource))
}

func TestNormalizeClamps(t *testing.T) {
	configPath := writeConfig(t, `
[scheduler]
normal_rate_hz = 0
power_save_rate_hz = -1
baseline_intensity = 9
max_intensity = 4
jank_threshold = "0s"
`)

	cfg, err := config.Load(config.WithConfigFile(configPath))
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Scheduler.NormalRateHz)
	assert.Equal(t, 1, cfg.Scheduler.PowerSaveRateHz)
	assert.Equal(t, 4, cfg.Scheduler.BaselineIntensity)
	assert.Equal(t, 16*time.Millisecond, cfg.Scheduler.JankThreshold)
}

func TestLogLevelFlag(t *testing.T) {
	t.Setenv("TELEMETRYLAB_CONFIG", "")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--log-level", "debug", "--power-save", "--server"}))

	cfg, err := config.Load(config.WithFlags(fs))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel to be set by flag")
	assert.True(t, cfg.Power.PowerSave)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, "sysfs", cfg.Power.Source, "Unset flags must not override defaults")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "telemetrylab.toml")

	want := config.Default()
	want.Scheduler.NormalRateHz = 25
	want.Window.Duration = 45 * time.Second
	require.NoError(t, want.Save(path))

	got, err := config.Load(config.WithConfigFile(path))
	require.NoError(t, err)
	assert.Equal(t, 25, got.Scheduler.NormalRateHz)
	assert.Equal(t, 45*time.Second, got.Window.Duration)
	assert.Equal(t, want.Scheduler.JankThreshold, got.Scheduler.JankThreshold)
}
