package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/thermolisten/internal/device"
	"github.com/srg/thermolisten/internal/groutine"
)

var (
	// ErrAlreadyScanning is returned by Start while a scan is running.
	ErrAlreadyScanning = errors.New("scan already running")
	// ErrScanEnded is returned by Start when the device returns from Scan
	// right away without an error and without being cancelled.
	ErrScanEnded = errors.New("scan ended immediately without error")
	// ErrStopTimeout is returned by Stop when the device ignores cancellation.
	ErrStopTimeout = errors.New("timed out waiting for scan to stop")
)

// BLEOptions configures a BLEScanner.
type BLEOptions struct {
	// AllowDuplicates reports every advertisement instead of the first per
	// device. Thermometers re-advertise the same address with new readings,
	// so this is normally on.
	AllowDuplicates bool
	// Services drops advertisements not mentioning any of these UUIDs.
	Services device.ServiceFilter
	// StartGrace is how long Start waits for the device to reject the scan.
	StartGrace time.Duration
	// StopTimeout bounds how long Stop waits for Scan to return.
	StopTimeout time.Duration
	Logger      *logrus.Logger
}

// DefaultBLEOptions returns default scanning options
func DefaultBLEOptions() *BLEOptions {
	return &BLEOptions{
		AllowDuplicates: true,
		StartGrace:      250 * time.Millisecond,
		StopTimeout:     5 * time.Second,
	}
}

// BLEScanner runs device.Scan on a named goroutine between Start and Stop.
type BLEScanner struct {
	dev     device.ScanningDevice
	handler ble.AdvHandler
	opts    BLEOptions
	logger  *logrus.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
}

// NewBLEScanner creates a scanner feeding advertisements from dev to handler.
func NewBLEScanner(dev device.ScanningDevice, handler ble.AdvHandler, opts *BLEOptions) *BLEScanner {
	if opts == nil {
		opts = DefaultBLEOptions()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	return &BLEScanner{
		dev:     dev,
		handler: opts.Services.Wrap(handler),
		opts:    *opts,
		logger:  logger,
	}
}

// Start begins scanning in the background. If the device fails within
// StartGrace the error is returned and the scanner stays idle.
func (s *BLEScanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyScanning
	}

	scanCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)

	groutine.Go(scanCtx, "ble-scan", func(ctx context.Context) {
		done <- s.dev.Scan(ctx, s.opts.AllowDuplicates, s.handler)
	})

	if s.opts.StartGrace > 0 {
		timer := time.NewTimer(s.opts.StartGrace)
		defer timer.Stop()

		select {
		case err := <-done:
			cancel()
			if err = cleanScanError(err); err != nil {
				return fmt.Errorf("scan failed to start: %w", err)
			}
			if ctx.Err() == nil {
				return ErrScanEnded
			}
			return nil
		case <-timer.C:
		}
	}

	s.cancel = cancel
	s.done = done

	s.logger.WithFields(logrus.Fields{
		"allow_duplicates": s.opts.AllowDuplicates,
		"services":         len(s.opts.Services),
	}).Debug("BLE scan started")

	return nil
}

// Stop cancels the running scan and waits for it to return. Stop on an idle
// scanner is a no-op.
func (s *BLEScanner) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	cancel()

	var err error
	if s.opts.StopTimeout > 0 {
		timer := time.NewTimer(s.opts.StopTimeout)
		defer timer.Stop()

		select {
		case err = <-done:
		case <-timer.C:
			return ErrStopTimeout
		}
	} else {
		err = <-done
	}

	if err = cleanScanError(err); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	s.logger.Debug("BLE scan stopped")
	return nil
}

// Running reports whether a scan is in progress.
func (s *BLEScanner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Close stops any running scan and releases the device.
func (s *BLEScanner) Close() error {
	stopErr := s.Stop()
	if err := s.dev.Stop(); err != nil {
		return errors.Join(stopErr, fmt.Errorf("failed to release BLE device: %w", device.NormalizeError(err)))
	}
	return stopErr
}

// cleanScanError maps the errors a cancelled scan returns to nil.
func cleanScanError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
