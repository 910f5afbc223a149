// Package device wraps the go-ble scanning device behind a small interface
// so the scanner can be driven by a mock in tests.
//
// It covers:
//   - Platform device creation (Linux HCI socket, macOS CoreBluetooth)
//   - Service UUID parsing and comparison across 16-bit and 128-bit forms
//   - Advertisement filtering by advertised or service-data UUIDs
package device
