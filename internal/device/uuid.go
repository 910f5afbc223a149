package device

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
)

// sigBase is the Bluetooth SIG base UUID 00000000-0000-1000-8000-00805f9b34fb
// in go-ble byte order (little endian).
var sigBase = ble.MustParse("00000000-0000-1000-8000-00805f9b34fb")

// ParseUUID parses a 16-bit ("181a", "0x181A") or 128-bit UUID, with or
// without dashes. UUIDs built on the SIG base are shortened to their 16-bit
// form so both spellings compare equal.
func ParseUUID(s string) (ble.UUID, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return nil, fmt.Errorf("UUID cannot be empty")
	}
	u, err := ble.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return Shorten(u), nil
}

// ParseUUIDs validates and parses every UUID, reporting the first bad index.
func ParseUUIDs(uuids ...string) ([]ble.UUID, error) {
	result := make([]ble.UUID, 0, len(uuids))
	for i, s := range uuids {
		u, err := ParseUUID(s)
		if err != nil {
			return nil, fmt.Errorf("service UUID at index %d: %w", i, err)
		}
		result = append(result, u)
	}
	return result, nil
}

// Shorten returns the 16-bit form of a SIG-base 128-bit UUID, and u otherwise.
func Shorten(u ble.UUID) ble.UUID {
	if len(u) != 16 {
		return u
	}
	// Bytes 12-13 hold the 16-bit alias, bytes 14-15 must be zero.
	if !bytes.Equal(u[:12], sigBase[:12]) || u[14] != 0 || u[15] != 0 {
		return u
	}
	return ble.UUID{u[12], u[13]}
}

// SameUUID compares UUIDs across their 16-bit and 128-bit spellings.
func SameUUID(a, b ble.UUID) bool {
	return Shorten(a).Equal(Shorten(b))
}
