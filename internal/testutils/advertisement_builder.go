package testutils

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"

	"github.com/srg/thermolisten/internal/atc"
	"github.com/srg/thermolisten/internal/testutils/mocks"
)

// AdvertisementBuilder builds mocked BLE advertisements for testing.
//
// Every ble.Advertisement method gets an optional expectation, so code under
// test may call any of them; unset fields return zero values.
type AdvertisementBuilder struct {
	name        string
	address     string
	rssi        int
	services    []string
	manufData   []byte
	serviceData []serviceDataEntry
	txPower     int
	connectable bool
}

// serviceDataEntry keeps insertion order so tests are deterministic.
type serviceDataEntry struct {
	uuid string
	data []byte
}

// NewAdvertisementBuilder creates a builder with connectable=true and TX power
// unavailable (127).
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{
		connectable: true,
		txPower:     127,
	}
}

// WithName sets the local name for the advertisement.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.name = name
	return b
}

// WithAddress sets the device address for the advertisement.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.address = addr
	return b
}

// WithRSSI sets the signal strength for the advertisement.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.rssi = rssi
	return b
}

// WithServices adds service UUIDs to the advertisement.
// UUIDs can be in short form (e.g., "181A") or full form.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.services = append(b.services, uuids...)
	return b
}

// WithManufacturerData sets the manufacturer-specific data.
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.manufData = data
	return b
}

// WithServiceData adds service-specific data for the given service UUID.
func (b *AdvertisementBuilder) WithServiceData(uuid string, data []byte) *AdvertisementBuilder {
	b.serviceData = append(b.serviceData, serviceDataEntry{uuid: uuid, data: data})
	return b
}

// WithNoServiceData drops any service data added so far.
func (b *AdvertisementBuilder) WithNoServiceData() *AdvertisementBuilder {
	b.serviceData = nil
	return b
}

// WithReading adds an encoded ATC payload under the 0x181A key.
// Panics if the reading cannot be encoded, as this is test data setup.
func (b *AdvertisementBuilder) WithReading(r atc.Reading) *AdvertisementBuilder {
	data, err := atc.Encode(r)
	if err != nil {
		panic(fmt.Sprintf("WithReading: %v", err))
	}
	return b.WithServiceData("181A", data)
}

// WithTxPower sets the transmission power level.
func (b *AdvertisementBuilder) WithTxPower(power int) *AdvertisementBuilder {
	b.txPower = power
	return b
}

// WithConnectable sets whether the device accepts connections.
func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.connectable = c
	return b
}

// FromJSON fills builder fields from a JSON string with format support.
// Service data payloads are plain number arrays.
// Panics on invalid JSON as this is intended for test data setup.
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var data struct {
		Name        *string          `json:"name"`
		Address     *string          `json:"address"`
		RSSI        *int             `json:"rssi"`
		Services    []string         `json:"services"`
		ServiceData map[string][]int `json:"serviceData"`
		TxPower     *int             `json:"txPower"`
		Connectable *bool            `json:"connectable"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		panic(fmt.Sprintf("FromJSON: %v", err))
	}

	if data.Name != nil {
		b.name = *data.Name
	}
	if data.Address != nil {
		b.address = *data.Address
	}
	if data.RSSI != nil {
		b.rssi = *data.RSSI
	}
	b.services = append(b.services, data.Services...)
	for uuid, ints := range data.ServiceData {
		raw := make([]byte, len(ints))
		for i, v := range ints {
			raw[i] = byte(v)
		}
		b.WithServiceData(uuid, raw)
	}
	if data.TxPower != nil {
		b.txPower = *data.TxPower
	}
	if data.Connectable != nil {
		b.connectable = *data.Connectable
	}
	return b
}

// Build creates a MockAdvertisement that implements ble.Advertisement.
func (b *AdvertisementBuilder) Build() *mocks.MockAdvertisement {
	adv := &mocks.MockAdvertisement{}

	var bleServices []ble.UUID
	for _, s := range b.services {
		bleServices = append(bleServices, ble.MustParse(s))
	}

	var bleServiceData []ble.ServiceData
	for _, sd := range b.serviceData {
		bleServiceData = append(bleServiceData, ble.ServiceData{
			UUID: ble.MustParse(sd.uuid),
			Data: sd.data,
		})
	}

	addr := &mocks.MockAddr{}
	addr.On("String").Return(b.address).Maybe()

	adv.On("Addr").Return(addr).Maybe()
	adv.On("LocalName").Return(b.name).Maybe()
	adv.On("RSSI").Return(b.rssi).Maybe()
	adv.On("ManufacturerData").Return(b.manufData).Maybe()
	adv.On("ServiceData").Return(bleServiceData).Maybe()
	adv.On("Services").Return(bleServices).Maybe()
	adv.On("OverflowService").Return([]ble.UUID(nil)).Maybe()
	adv.On("SolicitedService").Return([]ble.UUID(nil)).Maybe()
	adv.On("Connectable").Return(b.connectable).Maybe()
	adv.On("TxPowerLevel").Return(b.txPower).Maybe()

	return adv
}

// ReplayAdvertisements returns a mock Run function for ScanningDevice.Scan:
// it feeds every advertisement to the scan handler, then blocks until the
// scan context is cancelled, like a real device.
//
//	dev.On("Scan", mock.Anything, true, mock.Anything).
//	    Run(testutils.ReplayAdvertisements(adv1, adv2)).
//	    Return(context.Canceled)
func ReplayAdvertisements(advs ...ble.Advertisement) func(mock.Arguments) {
	return func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		h := args.Get(2).(ble.AdvHandler)
		for _, adv := range advs {
			h(adv)
		}
		<-ctx.Done()
	}
}
