package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.LogFile)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, time.Second, cfg.StopPollInterval)
	assert.Equal(t, 20, cfg.MTU)
	assert.Equal(t, 5, cfg.WorkerCount)
	assert.Equal(t, 256, cfg.DispatchQueue)
	assert.Equal(t, "~/ble_catalog.json", cfg.CatalogCachePath)
	assert.Equal(t, 10*time.Second, cfg.CatalogTimeout)
	assert.Equal(t, 30*time.Second, cfg.CatalogRetry)
	assert.Contains(t, cfg.CatalogURL, "bluestsdkv2")
	assert.Contains(t, cfg.LECatalogURL, "bluestsdkle")
	assert.NotEmpty(t, cfg.ModelRepositoryURL)
	assert.True(t, cfg.ReportInvalidDevices)
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	t.Run("overlays defaults", func(t *testing.T) {
		cfg, err := Load(write("ok.yaml", `
log_level: debug
scan_timeout: 3s
mtu: 247
report_invalid_devices: false
output_format: json
`))
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 3*time.Second, cfg.ScanTimeout)
		assert.Equal(t, 247, cfg.MTU)
		assert.False(t, cfg.ReportInvalidDevices)
		assert.Equal(t, "json", cfg.OutputFormat)
		assert.Equal(t, 30*time.Second, cfg.ConnectTimeout, "absent keys MUST keep defaults")
		assert.Equal(t, 5, cfg.WorkerCount)
	})

	tests := []struct {
		name string
		body string
	}{
		{name: "unknown level", body: "log_level: loud\n"},
		{name: "unknown format", body: "output_format: xml\n"},
		{name: "mtu too large", body: "mtu: 512\n"},
		{name: "no workers", body: "worker_count: 0\n"},
		{name: "malformed", body: "scan_timeout: [1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(write("bad.yaml", tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		expected logrus.Level
	}{
		{
			name:     "creates logger with debug level",
			logLevel: "debug",
			expected: logrus.DebugLevel,
		},
		{
			name:     "creates logger with warn level",
			logLevel: "warn",
			expected: logrus.WarnLevel,
		},
		{
			name:     "creates logger with error level",
			logLevel: "error",
			expected: logrus.ErrorLevel,
		},
		{
			name:     "unknown level falls back to info",
			logLevel: "chatty",
			expected: logrus.InfoLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LogLevel: tt.logLevel,
			}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.expected, logger.GetLevel())
			assert.Equal(t, os.Stderr, logger.Out)

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestConfig_LogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bluest.log")
	cfg := &Config{LogLevel: "info", LogFile: path}

	logger := cfg.NewLogger()
	out, ok := logger.Out.(*lumberjack.Logger)
	require.True(t, ok, "log file MUST rotate through lumberjack")
	defer out.Close()

	logger.Info("rotating")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "rotating")
}

func BenchmarkDefaultConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultConfig()
	}
}
