//go:build !linux && !darwin

package device

func newPlatformDevice(Options) (ScanningDevice, error) {
	return nil, ErrUnsupportedPlatform
}
