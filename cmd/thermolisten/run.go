package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/thermolisten/internal/device"
	"github.com/srg/thermolisten/internal/metrics"
	"github.com/srg/thermolisten/internal/thermometer"
	"github.com/srg/thermolisten/pkg/config"
	"github.com/srg/thermolisten/scanner"
)

func runListen(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return listen(ctx, cfg, logger)
}

// loadConfig reads --config and applies the flags the user set on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if flags.Changed("macos-use-bdaddr") {
		cfg.Scan.MacOSUseBDAddr, _ = flags.GetBool("macos-use-bdaddr")
	}
	if flags.Changed("services") {
		cfg.Scan.Services, _ = flags.GetStringSlice("services")
	}
	if flags.Changed("interval") {
		cfg.Scan.Interval, _ = flags.GetDuration("interval")
	}

	return cfg, nil
}

// listen wires sinks, handler, device and scanner, then runs the restart loop
// until ctx is cancelled.
func listen(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	bleOpts, err := cfg.BLEOptions(logger)
	if err != nil {
		return err
	}

	sink, err := buildSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close metric sinks")
		}
	}()

	dev, err := device.DeviceFactory(cfg.DeviceOptions(logger))
	if err != nil {
		return fmt.Errorf("failed to create BLE device: %w", err)
	}

	handler := thermometer.NewHandler(sink, cfg.HandlerOptions(), logger)
	bleScanner := scanner.NewBLEScanner(dev, handler.HandleAdvertisement, bleOpts)
	defer func() {
		if err := bleScanner.Close(); err != nil {
			logger.WithError(err).Warn("Failed to release BLE device")
		}
	}()

	logger.WithFields(logrus.Fields{
		"interval": cfg.Scan.Interval,
		"statsd":   cfg.StatsdOptions().Addr(),
		"services": cfg.Scan.Services,
		"city":     cfg.Tags.Location,
		"home":     cfg.Tags.Home,
	}).Info("Listening for thermometer advertisements")

	if err := scanner.Run(ctx, bleScanner, cfg.LoopOptions(logger)); err != nil {
		return err
	}

	logger.Info("Shutting down")
	return nil
}

// buildSinks creates the statsd sink plus the optional Prometheus and MQTT
// sinks, fanned out behind one handle.
func buildSinks(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (metrics.Sink, error) {
	statsdSink, err := metrics.NewStatsdSink(cfg.StatsdOptions(), logger)
	if err != nil {
		return nil, err
	}
	sinks := metrics.Fanout{statsdSink}

	if cfg.Prometheus.Listen != "" {
		promSink := metrics.NewPrometheusSink(logger)
		if err := promSink.Serve(ctx, cfg.Prometheus.Listen); err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, promSink)
	}

	if cfg.MQTT.Broker != "" {
		sinks = append(sinks, metrics.NewMQTTSink(cfg.MQTTOptions(), logger))
	}

	return sinks, nil
}
