package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/accstream/internal/accel"
	"github.com/srg/accstream/internal/device"
	"github.com/srg/accstream/internal/discovery"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel string `json:"log_level" yaml:"log_level" default:"info"`

	// Discovery
	ScanDuration    time.Duration `json:"scan_duration" yaml:"scan_duration" default:"5s"`
	AllowDuplicates bool          `json:"allow_duplicates" yaml:"allow_duplicates" default:"true"`
	VendorMarker    string        `json:"vendor_marker" yaml:"vendor_marker" default:"Movesense"`
	DedupKey        string        `json:"dedup_key" yaml:"dedup_key" default:"name"`

	// Sensor profile
	ServiceUUID    string `json:"service_uuid" yaml:"service_uuid" default:"34802252-7185-4d5d-b431-630e7050e8f0"`
	NotifyCharUUID string `json:"notify_char_uuid" yaml:"notify_char_uuid" default:"34800002-7185-4d5d-b431-630e7050e8f0"`
	WriteCharUUID  string `json:"write_char_uuid" yaml:"write_char_uuid" default:"34800001-7185-4d5d-b431-630e7050e8f0"`
	SampleRate     int    `json:"sample_rate" yaml:"sample_rate" default:"26"`
	StreamRef      uint8  `json:"stream_ref" yaml:"stream_ref" default:"99"`

	// OperationTimeout bounds each connect/discover/subscribe/write/disconnect.
	// Zero means no timeout.
	OperationTimeout time.Duration `json:"operation_timeout" yaml:"operation_timeout"`

	// Session plumbing
	QueueSize    int `json:"queue_size" yaml:"queue_size" default:"256"`
	OutputBuffer int `json:"output_buffer" yaml:"output_buffer" default:"64"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file on top of the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every field holds a usable value.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.ScanDuration <= 0 {
		return fmt.Errorf("scan_duration must be positive, got %s", c.ScanDuration)
	}
	if strings.TrimSpace(c.VendorMarker) == "" {
		return fmt.Errorf("vendor_marker must not be empty")
	}
	if _, err := discovery.ParseDedupKey(c.DedupKey); err != nil {
		return err
	}
	if _, err := device.ValidateUUID(c.ServiceUUID, c.NotifyCharUUID, c.WriteCharUUID); err != nil {
		return fmt.Errorf("sensor profile: %w", err)
	}
	if !accel.ValidSampleRate(c.SampleRate) {
		return fmt.Errorf("sample_rate %d is not supported (supported: %v)", c.SampleRate, accel.SampleRates())
	}
	if c.OperationTimeout < 0 {
		return fmt.Errorf("operation_timeout must not be negative, got %s", c.OperationTimeout)
	}
	if c.QueueSize <= 0 || c.OutputBuffer <= 0 {
		return fmt.Errorf("queue_size and output_buffer must be positive")
	}
	return nil
}

// Level parses LogLevel. "silent" maps to logrus.PanicLevel.
func (c *Config) Level() (logrus.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "silent", "":
		return logrus.PanicLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.PanicLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, error or silent)", c.LogLevel)
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := c.Level()
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// StartCommand returns the payload that starts the accelerometer stream.
func (c *Config) StartCommand() ([]byte, error) {
	return accel.SubscribeCommand(c.StreamRef, c.SampleRate)
}

// StopCommand returns the payload that stops the accelerometer stream.
func (c *Config) StopCommand() []byte {
	return accel.UnsubscribeCommand(c.StreamRef)
}
