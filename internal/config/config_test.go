package config

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/werrin/pithermd/internal/errors"
	"codeberg.org/werrin/pithermd/internal/thermal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pithermd.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.True(t, cfg.Gateway)
	assert.False(t, cfg.Telemetry)
	assert.False(t, cfg.ExitOnEmergency)

	assert.True(t, cfg.ThermalEnabled)
	assert.True(t, cfg.ResourceEnabled)
	assert.True(t, cfg.StorageEnabled)

	assert.Equal(t, thermal.DefaultPolicy().Thresholds, cfg.Thermal.Thresholds)
	assert.Equal(t, thermal.DefaultSensorPath, cfg.Thermal.Monitoring.Source)
	assert.Equal(t, 10, cfg.Thermal.Monitoring.Interval)
	assert.Equal(t, "/", cfg.Storage.Mount)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfigFile(t, `
log_level = "debug"
telemetry = true
database = "/tmp/pithermd-test/events.db"
resource_enabled = false

[thermal.monitoring]
interval = 20
source = "/tmp/fake_thermal"

[[thermal.thresholds]]
temperature = 60.0
action = "reduce_25"
recovery = 55.0

[[thermal.thresholds]]
temperature = 70.0
action = "pause_services"
recovery = 65.0
`)

	cfg, err := load([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Telemetry)
	assert.False(t, cfg.ResourceEnabled)
	assert.Equal(t, 20, cfg.Thermal.Monitoring.Interval)
	assert.Equal(t, "/tmp/fake_thermal", cfg.Thermal.Monitoring.Source)

	require.Len(t, cfg.Thermal.Thresholds, 2)
	assert.Equal(t, 60.0, cfg.Thermal.Thresholds[0].Temperature)
	assert.Equal(t, thermal.ActionReduce25, cfg.Thermal.Thresholds[0].Action)
	assert.Equal(t, thermal.ActionPauseServices, cfg.Thermal.Thresholds[1].Action)

	tele := cfg.TelemetryConfig()
	assert.True(t, tele.Enabled)
	assert.Equal(t, "/tmp/pithermd-test/events.db", tele.DBPath)
}

func TestLoadConfigFileFromEnv(t *testing.T) {
	path := writeConfigFile(t, `log_level = "warning"`)
	t.Setenv("PITHERMD_CONFIG", path)

	cfg, err := load(nil)
	require.NoError(t, err)
	assert.Equal(t, "warning", cfg.LogLevel)
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfigFile(t, `
[thermal.monitoring]
interval = 20
`)

	cfg, err := load([]string{"--config", path, "--interval", "5", "--debug"})
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Thermal.Monitoring.Interval)
	assert.True(t, cfg.Debug)
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfigFile(t, `log_level = `)

	_, err := load([]string{"--config", path})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestLoadUnknownFlag(t *testing.T) {
	_, err := load([]string{"--no-such-flag"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrBindFlags))
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	_, err := load([]string{"--log-level", "loud"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestValidateRejectsBadPolicy(t *testing.T) {
	path := writeConfigFile(t, `
[[thermal.thresholds]]
temperature = 60.0
action = "reduce_25"
recovery = 65.0
`)

	_, err := load([]string{"--config", path})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, thermal.ErrInvalidPolicy))
}

func TestLogLevelIsValid(t *testing.T) {
	for _, l := range []LogLevel{LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError} {
		assert.True(t, l.IsValid())
	}
	assert.False(t, LogLevel("loud").IsValid())
	assert.False(t, LogLevel("").IsValid())
}

func TestOrchestratorConfigMapping(t *testing.T) {
	cfg, err := load(nil)
	require.NoError(t, err)

	oc := cfg.OrchestratorConfig()
	assert.True(t, oc.ThermalEnabled)
	assert.True(t, oc.ResourceEnabled)
	assert.True(t, oc.StorageEnabled)
	assert.Equal(t, cfg.EventHistory, oc.EventHistorySize)
	assert.Equal(t, cfg.Thermal, oc.Thermal)
	assert.Equal(t, cfg.Resource, oc.Resource)
	assert.Equal(t, cfg.Storage, oc.Storage)
}
