// Package mocks holds testify mocks for the go-ble interfaces the listener
// consumes.
package mocks

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockAddr implements ble.Addr.
type MockAddr struct {
	mock.Mock
}

func (m *MockAddr) String() string {
	return m.Called().String(0)
}

// MockAdvertisement implements ble.Advertisement.
type MockAdvertisement struct {
	mock.Mock
}

func (m *MockAdvertisement) LocalName() string {
	return m.Called().String(0)
}

func (m *MockAdvertisement) ManufacturerData() []byte {
	args := m.Called()
	b, _ := args.Get(0).([]byte)
	return b
}

func (m *MockAdvertisement) ServiceData() []ble.ServiceData {
	args := m.Called()
	sd, _ := args.Get(0).([]ble.ServiceData)
	return sd
}

func (m *MockAdvertisement) Services() []ble.UUID {
	args := m.Called()
	u, _ := args.Get(0).([]ble.UUID)
	return u
}

func (m *MockAdvertisement) OverflowService() []ble.UUID {
	args := m.Called()
	u, _ := args.Get(0).([]ble.UUID)
	return u
}

func (m *MockAdvertisement) TxPowerLevel() int {
	return m.Called().Int(0)
}

func (m *MockAdvertisement) Connectable() bool {
	return m.Called().Bool(0)
}

func (m *MockAdvertisement) SolicitedService() []ble.UUID {
	args := m.Called()
	u, _ := args.Get(0).([]ble.UUID)
	return u
}

func (m *MockAdvertisement) RSSI() int {
	return m.Called().Int(0)
}

func (m *MockAdvertisement) Addr() ble.Addr {
	args := m.Called()
	a, _ := args.Get(0).(ble.Addr)
	return a
}

// MockScanningDevice implements device.ScanningDevice.
type MockScanningDevice struct {
	mock.Mock
}

func (m *MockScanningDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	return m.Called(ctx, allowDup, h).Error(0)
}

func (m *MockScanningDevice) Stop() error {
	return m.Called().Error(0)
}
