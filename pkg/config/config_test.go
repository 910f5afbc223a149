package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 60*time.Second, cfg.Scan.Interval)
	assert.Equal(t, 5, cfg.Scan.MaxConsecutiveFailures)
	assert.True(t, cfg.Scan.AllowDuplicates)
	assert.False(t, cfg.Scan.Active)
	assert.Equal(t, 0, cfg.Scan.HCIDevice)
	assert.Empty(t, cfg.Scan.Services)
	assert.False(t, cfg.Scan.MacOSUseBDAddr)
	assert.Equal(t, "paris", cfg.Tags.Location)
	assert.Equal(t, "fmaison", cfg.Tags.Home)
	assert.Equal(t, "datadog-agent", cfg.Statsd.Host)
	assert.Equal(t, 8125, cfg.Statsd.Port)
	assert.Empty(t, cfg.Statsd.Namespace)
	assert.Empty(t, cfg.Prometheus.Listen)
	assert.Empty(t, cfg.MQTT.Broker)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, "thermolisten", cfg.MQTT.ClientID)
	assert.Equal(t, "thermometers", cfg.MQTT.TopicPrefix)

	assert.NoError(t, cfg.Validate())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thermolisten.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("file overrides only what it sets", func(t *testing.T) {
		path := writeConfig(t, `
log_level: debug
scan:
  interval: 30s
  services: ["181a"]
tags:
  location: lyon
statsd:
  host: 127.0.0.1
mqtt:
  broker: broker.local
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 30*time.Second, cfg.Scan.Interval)
		assert.Equal(t, []string{"181a"}, cfg.Scan.Services)
		assert.Equal(t, "lyon", cfg.Tags.Location)
		assert.Equal(t, "fmaison", cfg.Tags.Home, "untouched keys keep their default")
		assert.Equal(t, "127.0.0.1", cfg.Statsd.Host)
		assert.Equal(t, 8125, cfg.Statsd.Port)
		assert.Equal(t, "broker.local", cfg.MQTT.Broker)
		assert.Equal(t, 1883, cfg.MQTT.Port)
		assert.True(t, cfg.Scan.AllowDuplicates)
	})

	t.Run("empty file returns defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, ""))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("unknown keys are rejected", func(t *testing.T) {
		_, err := Load(writeConfig(t, "statsd:\n  hots: localhost\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "hots")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed duration", func(t *testing.T) {
		_, err := Load(writeConfig(t, "scan:\n  interval: soon\n"))
		assert.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "log_level"},
		{name: "zero interval", mutate: func(c *Config) { c.Scan.Interval = 0 }, wantErr: "scan.interval"},
		{name: "negative interval", mutate: func(c *Config) { c.Scan.Interval = -time.Second }, wantErr: "scan.interval"},
		{name: "negative failure limit", mutate: func(c *Config) { c.Scan.MaxConsecutiveFailures = -1 }, wantErr: "max_consecutive_failures"},
		{name: "unlimited failures", mutate: func(c *Config) { c.Scan.MaxConsecutiveFailures = 0 }},
		{name: "negative hci device", mutate: func(c *Config) { c.Scan.HCIDevice = -1 }, wantErr: "hci_device"},
		{name: "bad service uuid", mutate: func(c *Config) { c.Scan.Services = []string{"181a", "xyz"} }, wantErr: "index 1"},
		{name: "empty statsd host", mutate: func(c *Config) { c.Statsd.Host = "" }, wantErr: "statsd.host"},
		{name: "statsd port zero", mutate: func(c *Config) { c.Statsd.Port = 0 }, wantErr: "statsd.port"},
		{name: "statsd port too big", mutate: func(c *Config) { c.Statsd.Port = 70000 }, wantErr: "statsd.port"},
		{name: "mqtt port ignored when disabled", mutate: func(c *Config) { c.MQTT.Port = 0 }},
		{
			name:    "mqtt port checked when enabled",
			mutate:  func(c *Config) { c.MQTT.Broker = "localhost"; c.MQTT.Port = 0 },
			wantErr: "mqtt.port",
		},
		{
			name:    "mqtt client id required when enabled",
			mutate:  func(c *Config) { c.MQTT.Broker = "localhost"; c.MQTT.ClientID = "" },
			wantErr: "mqtt.client_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateReportsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scan.Interval = 0
	cfg.Statsd.Host = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan.interval")
	assert.Contains(t, err.Error(), "statsd.host")
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		expected logrus.Level
	}{
		{name: "creates logger with debug level", logLevel: "debug", expected: logrus.DebugLevel},
		{name: "creates logger with info level", logLevel: "info", expected: logrus.InfoLevel},
		{name: "creates logger with warn level", logLevel: "warn", expected: logrus.WarnLevel},
		{name: "creates logger with error level", logLevel: "error", expected: logrus.ErrorLevel},
		{name: "invalid level falls back to info", logLevel: "chatty", expected: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.expected, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestConfig_NewLoggerNamesEntries(t *testing.T) {
	logger := DefaultConfig().NewLogger()
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.Info("(re)starting scanner")
	logger.WithField("logger", "custom").Info("explicit name wins")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "logger=thermolisten")
	assert.Contains(t, lines[0], `msg="(re)starting scanner"`)
	assert.Contains(t, lines[1], "logger=custom")
}

func TestConfig_ComponentOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scan.Services = []string{"0000181a-0000-1000-8000-00805f9b34fb"}
	cfg.Scan.HCIDevice = 1
	cfg.Scan.MacOSUseBDAddr = true
	cfg.Statsd.Namespace = "home."
	logger := cfg.NewLogger()

	devOpts := cfg.DeviceOptions(logger)
	assert.Equal(t, 1, devOpts.HCIDevice)
	assert.True(t, devOpts.UseBDAddr)
	assert.False(t, devOpts.ActiveScan)
	assert.Same(t, logger, devOpts.Logger)

	loop := cfg.LoopOptions(logger)
	assert.Equal(t, 60*time.Second, loop.Interval)
	assert.Equal(t, 5, loop.MaxConsecutiveFailures)

	bleOpts, err := cfg.BLEOptions(logger)
	require.NoError(t, err)
	assert.True(t, bleOpts.AllowDuplicates)
	require.Len(t, bleOpts.Services, 1)
	assert.True(t, bleOpts.Services[0].Equal(ble.UUID16(0x181A)), "SIG UUIDs are shortened")

	assert.Equal(t, "paris", cfg.HandlerOptions().Location)
	assert.Equal(t, "fmaison", cfg.HandlerOptions().Home)
	assert.Equal(t, "datadog-agent:8125", cfg.StatsdOptions().Addr())
	assert.Equal(t, "home.", cfg.StatsdOptions().Namespace)
	assert.Equal(t, "thermometers", cfg.MQTTOptions().TopicPrefix)
}

func TestConfig_BLEOptionsRejectsBadUUID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scan.Services = []string{"not-a-uuid"}

	_, err := cfg.BLEOptions(nil)
	assert.Error(t, err)
}

func BenchmarkDefaultConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultConfig()
	}
}
