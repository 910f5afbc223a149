package device

import "github.com/go-ble/ble"

// ServiceFilter keeps advertisements that mention at least one of the listed
// services, either as an advertised service UUID or as a service-data key.
// An empty filter keeps everything.
type ServiceFilter []ble.UUID

// Match reports whether adv passes the filter.
func (f ServiceFilter) Match(adv ble.Advertisement) bool {
	if len(f) == 0 {
		return true
	}

	for _, required := range f {
		for _, u := range adv.Services() {
			if SameUUID(required, u) {
				return true
			}
		}
		for _, sd := range adv.ServiceData() {
			if SameUUID(required, sd.UUID) {
				return true
			}
		}
	}
	return false
}

// Wrap returns a handler that forwards only matching advertisements to h.
func (f ServiceFilter) Wrap(h ble.AdvHandler) ble.AdvHandler {
	if len(f) == 0 {
		return h
	}
	return func(adv ble.Advertisement) {
		if f.Match(adv) {
			h(adv)
		}
	}
}
