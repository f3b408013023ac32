package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`
	// LogFile switches logging from stderr to a rotating file.
	LogFile string `yaml:"log_file"`

	ScanTimeout      time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" default:"30s"`
	StopPollInterval time.Duration `yaml:"stop_poll_interval" default:"1s"`
	MTU              int           `yaml:"mtu" default:"20"`

	WorkerCount   int `yaml:"worker_count" default:"5"`
	DispatchQueue int `yaml:"dispatch_queue" default:"256"`

	CatalogURL         string        `yaml:"catalog_url" default:"https://raw.githubusercontent.com/STMicroelectronics/appconfig/release/bluestsdkv2/catalog.json"`
	CatalogCachePath   string        `yaml:"catalog_cache_path" default:"~/ble_catalog.json"`
	CatalogTimeout     time.Duration `yaml:"catalog_timeout" default:"10s"`
	CatalogRetry       time.Duration `yaml:"catalog_retry_backoff" default:"30s"`
	ModelRepositoryURL string        `yaml:"model_repository_url" default:"https://raw.githubusercontent.com/STMicroelectronics/appconfig/release"`
	LECatalogURL       string        `yaml:"le_catalog_url" default:"https://raw.githubusercontent.com/SW-Platforms/appconfig/release/bluestsdkle/catalog.json"`

	ReportInvalidDevices bool   `yaml:"report_invalid_devices" default:"true"`
	OutputFormat         string `yaml:"output_format" default:"table"` // table, json
}

var outputFormats = []string{"table", "json"}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load overlays the YAML file at path on the defaults. Keys absent from the
// file keep their default value.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values a YAML file can get wrong.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if !containsFold(outputFormats, c.OutputFormat) {
		return fmt.Errorf("output format %q not in %v", c.OutputFormat, outputFormats)
	}
	if c.MTU < 20 || c.MTU > 255 {
		return fmt.Errorf("mtu %d not in [20..255]", c.MTU)
	}
	if c.WorkerCount <= 0 || c.DispatchQueue <= 0 {
		return fmt.Errorf("worker_count and dispatch_queue must be positive")
	}
	return nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// Level parses LogLevel. An unknown level yields InfoLevel.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	logger.SetOutput(c.logOutput())

	return logger
}

func (c *Config) logOutput() io.Writer {
	if c.LogFile == "" {
		return os.Stderr
	}
	path := c.LogFile
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
}
