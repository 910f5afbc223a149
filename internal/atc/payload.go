// Package atc decodes the service-data advertisement broadcast by
// thermometers running the ATC custom firmware (LYWSD03MMC and friends).
package atc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-ble/ble"
)

// ServiceUUID is the Environmental Sensing service the payload is keyed under.
// Advertisements carry it as 16-bit 0x181A; some stacks report the full
// 0000181a-0000-1000-8000-00805f9b34fb form, so both are matched.
var ServiceUUID = ble.UUID16(0x181A)

var serviceUUID128 = ble.MustParse("0000181a-0000-1000-8000-00805f9b34fb")

// ErrShortPayload is returned when a payload is keyed under ServiceUUID but
// does not hold a whole record.
var ErrShortPayload = errors.New("short payload")

// Field describes one fixed-offset field of the record.
type Field struct {
	Name   string
	Offset int
	Size   int
}

func (f Field) end() int { return f.Offset + f.Size }

// Record layout. Bytes 10-11 (battery millivolts on newer firmware) are not
// decoded.
var (
	FieldMAC         = Field{Name: "mac_address", Offset: 0, Size: 6}
	FieldTemperature = Field{Name: "temperature", Offset: 6, Size: 2}
	FieldHumidity    = Field{Name: "humidity", Offset: 8, Size: 1}
	FieldBattery     = Field{Name: "battery", Offset: 9, Size: 1}
	FieldReserved    = Field{Name: "reserved", Offset: 10, Size: 2}
	FieldPacketCount = Field{Name: "packet_count", Offset: 12, Size: 1}
)

// Layout lists every field in wire order.
var Layout = []Field{
	FieldMAC,
	FieldTemperature,
	FieldHumidity,
	FieldBattery,
	FieldReserved,
	FieldPacketCount,
}

// PayloadLen is the minimum number of bytes a decodable payload holds.
const PayloadLen = 13

// Reading is one decoded advertisement.
type Reading struct {
	MAC         string
	Temperature float64 // degrees Celsius
	Humidity    uint8   // percent
	Battery     uint8   // percent
	PacketCount uint8
}

// IsServiceUUID reports whether u names the Environmental Sensing service.
func IsServiceUUID(u ble.UUID) bool {
	return u.Equal(ServiceUUID) || u.Equal(serviceUUID128)
}

// Lookup returns the payload stored under ServiceUUID in the advertisement's
// service data.
func Lookup(serviceData []ble.ServiceData) ([]byte, bool) {
	for _, sd := range serviceData {
		if IsServiceUUID(sd.UUID) {
			return sd.Data, true
		}
	}
	return nil, false
}

// Decode validates the payload length and reads the record. Bytes past
// PayloadLen are ignored.
func Decode(data []byte) (Reading, error) {
	if len(data) < PayloadLen {
		return Reading{}, fmt.Errorf("%w: got %d bytes, need %d", ErrShortPayload, len(data), PayloadLen)
	}

	raw := binary.BigEndian.Uint16(field(data, FieldTemperature))

	return Reading{
		MAC:         FormatMAC(field(data, FieldMAC)),
		Temperature: float64(raw) / 10,
		Humidity:    data[FieldHumidity.Offset],
		Battery:     data[FieldBattery.Offset],
		PacketCount: data[FieldPacketCount.Offset],
	}, nil
}

// Encode is the inverse of Decode. Temperature is rounded to the nearest tenth
// and must fit the unsigned 16-bit wire field.
func Encode(r Reading) ([]byte, error) {
	mac, err := ParseMAC(r.MAC)
	if err != nil {
		return nil, err
	}
	tenths := r.Temperature*10 + 0.5
	if tenths < 0 || tenths >= 1<<16 {
		return nil, fmt.Errorf("temperature %.1f out of range", r.Temperature)
	}

	out := make([]byte, PayloadLen)
	copy(field(out, FieldMAC), mac)
	binary.BigEndian.PutUint16(field(out, FieldTemperature), uint16(tenths))
	out[FieldHumidity.Offset] = r.Humidity
	out[FieldBattery.Offset] = r.Battery
	out[FieldPacketCount.Offset] = r.PacketCount
	return out, nil
}

// FormatMAC renders raw address bytes as uppercase colon separated hex.
func FormatMAC(b []byte) string {
	const hexd = "0123456789ABCDEF"
	if len(b) == 0 {
		return ""
	}
	out := make([]byte, 0, len(b)*3-1)
	for i, x := range b {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, hexd[x>>4], hexd[x&0x0F])
	}
	return string(out)
}

// ParseMAC accepts "AA:BB:CC:DD:EE:FF" (any case, ':' or '-' separators).
func ParseMAC(s string) ([]byte, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '-' })
	if len(parts) != FieldMAC.Size {
		return nil, fmt.Errorf("invalid MAC address %q", s)
	}
	out := make([]byte, 0, FieldMAC.Size)
	for _, p := range parts {
		if len(p) != 2 {
			return nil, fmt.Errorf("invalid MAC address %q", s)
		}
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid MAC address %q: %w", s, err)
		}
		out = append(out, byte(v))
	}
	return out, nil
}

func field(data []byte, f Field) []byte {
	return data[f.Offset:f.end()]
}
