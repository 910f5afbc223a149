//go:build darwin

package device

import (
	"github.com/go-ble/ble/darwin"
)

func newPlatformDevice(opts Options) (ScanningDevice, error) {
	if opts.UseBDAddr {
		// CoreBluetooth never hands out the hardware address to the central
		// role. The MAC used for metrics comes from the payload itself.
		opts.Logger.Warn("CoreBluetooth does not expose hardware addresses; device identity stays the peripheral UUID")
	}
	dev, err := darwin.NewDevice()
	if err != nil {
		return nil, err
	}
	return dev, nil
}
