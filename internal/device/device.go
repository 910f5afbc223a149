package device

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
)

// ErrUnsupportedPlatform is returned by DeviceFactory on platforms go-ble has
// no backend for.
var ErrUnsupportedPlatform = errors.New("BLE scanning is not supported on this platform")

// ScanningDevice represents a BLE device capable of scanning for advertisements.
// ble.Device satisfies it.
type ScanningDevice interface {
	// Scan blocks until ctx is done or the device fails.
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Stop() error
}

// Options configures the platform device.
type Options struct {
	// HCIDevice selects /dev/hciN on Linux.
	HCIDevice int
	// ActiveScan sends scan requests instead of listening passively (Linux).
	ActiveScan bool
	// UseBDAddr asks for hardware addresses instead of the opaque per-host
	// identifiers macOS hands out.
	UseBDAddr bool
	Logger    *logrus.Logger
}

// DeviceFactory creates the platform scanning device.
// This is a variable so that it can be overridden in tests.
var DeviceFactory = func(opts Options) (ScanningDevice, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	dev, err := newPlatformDevice(opts)
	if err != nil {
		return nil, NormalizeError(err)
	}
	return dev, nil
}

// NormalizeError appends an operator hint to well-known go-ble setup
// failures. The underlying error stays wrapped.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "operation not permitted"), strings.Contains(msg, "permission denied"):
		return fmt.Errorf("%w (raw HCI access needs root or CAP_NET_ADMIN)", err)
	case strings.Contains(msg, "no such device"):
		return fmt.Errorf("%w (is the Bluetooth adapter present and up?)", err)
	default:
		return err
	}
}
