//go:build linux

package device

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
)

func newPlatformDevice(opts Options) (ScanningDevice, error) {
	if opts.UseBDAddr {
		opts.Logger.Debug("--macos-use-bdaddr has no effect on Linux; hardware addresses are always reported")
	}

	scanType := uint8(0x00) // passive
	if opts.ActiveScan {
		scanType = 0x01
	}

	dev, err := linux.NewDevice(
		ble.OptDeviceID(opts.HCIDevice),
		ble.OptScanParams(cmd.LESetScanParameters{
			LEScanType:           scanType,
			LEScanInterval:       0x0010, // N * 0.625msec
			LEScanWindow:         0x0010, // N * 0.625msec
			OwnAddressType:       0x00,   // public
			ScanningFilterPolicy: 0x00,   // accept all
		}),
	)
	if err != nil {
		return nil, err
	}
	return dev, nil
}
