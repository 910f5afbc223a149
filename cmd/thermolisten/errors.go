package main

import (
	"errors"
	"fmt"

	"github.com/srg/thermolisten/internal/device"
	"github.com/srg/thermolisten/scanner"
)

// FormatUserError turns an error chain into the one-line message printed
// after "ERROR:".
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, device.ErrUnsupportedPlatform):
		return fmt.Sprintf("%v; thermolisten runs on Linux (BlueZ HCI) and macOS (CoreBluetooth)", err)
	case errors.Is(err, scanner.ErrStopTimeout):
		return fmt.Sprintf("%v; the Bluetooth adapter stopped responding, try resetting it (hciconfig hci0 reset)", err)
	default:
		return err.Error()
	}
}
