// Package config holds the listener configuration: struct-tag defaults,
// an optional YAML file on top, and command-line overrides applied by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/thermolisten/internal/device"
	"github.com/srg/thermolisten/internal/metrics"
	"github.com/srg/thermolisten/internal/thermometer"
	"github.com/srg/thermolisten/scanner"
)

// LoggerName is attached to every log entry as the "logger" field.
const LoggerName = "thermolisten"

// Config holds application configuration
type Config struct {
	LogLevel   string           `yaml:"log_level" default:"info"`
	Scan       ScanConfig       `yaml:"scan"`
	Tags       TagsConfig       `yaml:"tags"`
	Statsd     StatsdConfig     `yaml:"statsd"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
}

// ScanConfig controls the restart cycle and the BLE adapter.
type ScanConfig struct {
	Interval               time.Duration `yaml:"interval" default:"60s"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures" default:"5"`
	AllowDuplicates        bool          `yaml:"allow_duplicates" default:"true"`
	Active                 bool          `yaml:"active" default:"false"`
	HCIDevice              int           `yaml:"hci_device" default:"0"`
	Services               []string      `yaml:"services"`
	MacOSUseBDAddr         bool          `yaml:"macos_use_bdaddr" default:"false"`
}

// TagsConfig holds the fixed tags attached to every gauge.
type TagsConfig struct {
	Location string `yaml:"location" default:"paris"`
	Home     string `yaml:"home" default:"fmaison"`
}

type StatsdConfig struct {
	Host      string `yaml:"host" default:"datadog-agent"`
	Port      int    `yaml:"port" default:"8125"`
	Namespace string `yaml:"namespace"`
}

// PrometheusConfig enables the /metrics endpoint when Listen is set.
type PrometheusConfig struct {
	Listen string `yaml:"listen"`
}

// MQTTConfig enables MQTT publication when Broker is set.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	Port        int    `yaml:"port" default:"1883"`
	ClientID    string `yaml:"client_id" default:"thermolisten"`
	TopicPrefix string `yaml:"topic_prefix" default:"thermometers"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := cfg.Decode(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode overlays YAML from r onto c. An empty document leaves c unchanged.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.Scan.Interval <= 0 {
		errs = append(errs, fmt.Errorf("scan.interval must be positive, got %s", c.Scan.Interval))
	}
	if c.Scan.MaxConsecutiveFailures < 0 {
		errs = append(errs, fmt.Errorf("scan.max_consecutive_failures must not be negative, got %d", c.Scan.MaxConsecutiveFailures))
	}
	if c.Scan.HCIDevice < 0 {
		errs = append(errs, fmt.Errorf("scan.hci_device must not be negative, got %d", c.Scan.HCIDevice))
	}
	if _, err := device.ParseUUIDs(c.Scan.Services...); err != nil {
		errs = append(errs, fmt.Errorf("scan.services: %w", err))
	}
	if c.Statsd.Host == "" {
		errs = append(errs, errors.New("statsd.host must not be empty"))
	}
	if err := validatePort(c.Statsd.Port); err != nil {
		errs = append(errs, fmt.Errorf("statsd.port: %w", err))
	}
	if c.MQTT.Broker != "" {
		if err := validatePort(c.MQTT.Port); err != nil {
			errs = append(errs, fmt.Errorf("mqtt.port: %w", err))
		}
		if c.MQTT.ClientID == "" {
			errs = append(errs, errors.New("mqtt.client_id must not be empty"))
		}
	}

	return errors.Join(errs...)
}

func validatePort(p int) error {
	if p < 1 || p > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", p)
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
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

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	logger.AddHook(loggerNameHook(LoggerName))

	return logger
}

// loggerNameHook stamps the logger name on every entry.
type loggerNameHook string

func (h loggerNameHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h loggerNameHook) Fire(e *logrus.Entry) error {
	if _, ok := e.Data["logger"]; !ok {
		e.Data["logger"] = string(h)
	}
	return nil
}

// DeviceOptions returns the platform device settings.
func (c *Config) DeviceOptions(logger *logrus.Logger) device.Options {
	return device.Options{
		HCIDevice:  c.Scan.HCIDevice,
		ActiveScan: c.Scan.Active,
		UseBDAddr:  c.Scan.MacOSUseBDAddr,
		Logger:     logger,
	}
}

// LoopOptions returns the restart cycle settings.
func (c *Config) LoopOptions(logger *logrus.Logger) *scanner.LoopOptions {
	return &scanner.LoopOptions{
		Interval:               c.Scan.Interval,
		MaxConsecutiveFailures: c.Scan.MaxConsecutiveFailures,
		Logger:                 logger,
	}
}

// BLEOptions returns the go-ble scanner settings with the service filter
// parsed.
func (c *Config) BLEOptions(logger *logrus.Logger) (*scanner.BLEOptions, error) {
	services, err := device.ParseUUIDs(c.Scan.Services...)
	if err != nil {
		return nil, err
	}

	opts := scanner.DefaultBLEOptions()
	opts.AllowDuplicates = c.Scan.AllowDuplicates
	opts.Services = services
	opts.Logger = logger
	return opts, nil
}

func (c *Config) HandlerOptions() thermometer.Options {
	return thermometer.Options{
		Location: c.Tags.Location,
		Home:     c.Tags.Home,
	}
}

func (c *Config) StatsdOptions() metrics.StatsdOptions {
	return metrics.StatsdOptions{
		Host:      c.Statsd.Host,
		Port:      c.Statsd.Port,
		Namespace: c.Statsd.Namespace,
	}
}

func (c *Config) MQTTOptions() metrics.MQTTOptions {
	return metrics.MQTTOptions{
		Broker:      c.MQTT.Broker,
		Port:        c.MQTT.Port,
		ClientID:    c.MQTT.ClientID,
		TopicPrefix: c.MQTT.TopicPrefix,
	}
}
