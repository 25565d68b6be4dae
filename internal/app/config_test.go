package app

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ibErrors "github.com/context-labs/ibtop/internal/errors"
	"github.com/context-labs/ibtop/internal/fabric"
	"github.com/context-labs/ibtop/internal/monitor"
)

// isolate points HOME at an empty directory so a developer's own
// ~/.ibtop/config.yaml cannot leak into the test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func loadConfig(t *testing.T, args []string, configFile string) (Config, error) {
	t.Helper()
	cmd := newRootCommand(io.Discard)
	require.NoError(t, cmd.Flags().Parse(args))
	v, err := newViper(cmd.Flags(), configFile)
	if err != nil {
		return Config{}, err
	}
	return configFromViper(v)
}

func TestConfigDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := loadConfig(t, nil, "")
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Interval)
	assert.Equal(t, fabric.DefaultRoot, cfg.Root)
	assert.Equal(t, "green", cfg.Color)
	assert.Equal(t, monitor.DefaultHistorySize, cfg.HistorySize)
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.Equal(t, filepath.Join(home, ".ibtop", "ibtop.log"), cfg.LogFile)
	assert.False(t, cfg.Demo)
}

func TestConfigInterval(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want time.Duration
	}{
		{"Milliseconds", []string{"--interval", "250"}, 250 * time.Millisecond},
		{"Duration", []string{"--interval", "2s"}, 2 * time.Second},
		{"ClampLow", []string{"-i", "10"}, minInterval},
		{"ClampHigh", []string{"--interval", "5m"}, maxInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			cfg, err := loadConfig(t, tt.args, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Interval)
		})
	}
}

func TestConfigEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("INFINIBAND_PATH", "/tmp/ib")
	t.Setenv("IBTOP_FAKE_DATA", "true")
	t.Setenv("IBTOP_INTERVAL", "500ms")
	t.Setenv("IBTOP_COLOR", "purple")

	cfg, err := loadConfig(t, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ib", cfg.Root)
	assert.True(t, cfg.Demo)
	assert.Equal(t, 500*time.Millisecond, cfg.Interval)
	assert.Equal(t, "green", cfg.Color, "unknown colors fall back to green")
}

func TestConfigFlagsOverrideEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("INFINIBAND_PATH", "/tmp/ib")

	cfg, err := loadConfig(t, []string{"--root", "/srv/ib", "--headless", "--count", "3", "--format", "TEXT"}, "")
	require.NoError(t, err)
	assert.Equal(t, "/srv/ib", cfg.Root)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 3, cfg.Count)
	assert.Equal(t, FormatText, cfg.Format)
}

func TestConfigFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "ibtop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interval: 2s\nsmoothing: 0.3\nhistory_size: 60\ncolor: cyan\n"), 0644))

	cfg, err := loadConfig(t, nil, path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Interval)
	assert.Equal(t, 0.3, cfg.Smoothing)
	assert.Equal(t, 60, cfg.HistorySize)
	assert.Equal(t, "cyan", cfg.Color)
}

func TestConfigDefaultFileLocation(t *testing.T) {
	home := isolate(t)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".ibtop"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".ibtop", "config.yaml"), []byte("root: /data/ib\n"), 0644))

	cfg, err := loadConfig(t, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "/data/ib", cfg.Root)
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{"SmoothingTooHigh", map[string]string{"IBTOP_SMOOTHING": "1.5"}, nil},
		{"SmoothingNegative", map[string]string{"IBTOP_SMOOTHING": "-0.1"}, nil},
		{"UnknownFormat", nil, []string{"--format", "xml"}},
		{"NegativeCount", nil, []string{"--count=-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadConfig(t, tt.args, "")
			require.Error(t, err)
			assert.True(t, ibErrors.IsCode(err, ibErrors.ErrConfig), err.Error())
		})
	}
}

func TestConfigMissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := loadConfig(t, nil, filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, ibErrors.IsCode(err, ibErrors.ErrConfig))
}
