// Package thermometer turns ATC thermometer advertisements into gauges.
package thermometer

import (
	"encoding/hex"
	"errors"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/thermolisten/internal/atc"
	"github.com/srg/thermolisten/internal/metrics"
)

// Gauge names emitted for every reading.
const (
	MetricTemperature = "thermometer.temperature"
	MetricHumidity    = "thermometer.humidity"
	MetricBattery     = "thermometer.battery"
)

// Tag keys attached to every gauge, in emission order.
const (
	TagLocation   = "city"
	TagHome       = "home"
	TagDeviceName = "device_name"
	TagMACAddress = "mac_address"
)

// Options holds the fixed tags every gauge carries.
type Options struct {
	Location string
	Home     string
}

// Handler decodes advertisements and emits gauges. It keeps no state between
// advertisements.
type Handler struct {
	sink   metrics.Sink
	opts   Options
	logger *logrus.Logger
}

// NewHandler creates a handler emitting to sink.
func NewHandler(sink metrics.Sink, opts Options, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{sink: sink, opts: opts, logger: logger}
}

// HandleAdvertisement has the ble.AdvHandler signature.
// Advertisements without a 0x181A payload are skipped silently.
func (h *Handler) HandleAdvertisement(adv ble.Advertisement) {
	data, ok := atc.Lookup(adv.ServiceData())
	if !ok {
		return
	}

	name := DeviceName(adv)

	reading, err := atc.Decode(data)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"device":  name,
			"payload": hex.EncodeToString(data),
		}).WithError(err).Warn("Skipping undecodable thermometer advertisement")
		return
	}

	h.logger.Infof("%s[%s]: Temp=%.1f Humidity=%d%% Battery=%d%% #%d",
		reading.MAC, name, reading.Temperature, reading.Humidity, reading.Battery, reading.PacketCount)

	if err := h.Emit(name, reading); err != nil {
		h.logger.WithFields(logrus.Fields{
			"device": name,
			"mac":    reading.MAC,
		}).WithError(err).Warn("Failed to emit thermometer metrics")
	}
}

// Emit sends the three gauges for a reading. Each send is independent; the
// returned error joins whatever failed.
func (h *Handler) Emit(deviceName string, r atc.Reading) error {
	tags := h.Tags(deviceName, r.MAC)

	return errors.Join(
		h.sink.Gauge(MetricTemperature, r.Temperature, tags),
		h.sink.Gauge(MetricHumidity, float64(r.Humidity), tags),
		h.sink.Gauge(MetricBattery, float64(r.Battery), tags),
	)
}

// Tags returns the four tags attached to every gauge.
func (h *Handler) Tags(deviceName, mac string) []metrics.Tag {
	return []metrics.Tag{
		{Key: TagLocation, Value: h.opts.Location},
		{Key: TagHome, Value: h.opts.Home},
		{Key: TagDeviceName, Value: deviceName},
		{Key: TagMACAddress, Value: mac},
	}
}

// DeviceName is the advertised local name, or the platform address when the
// advertisement carries no name.
func DeviceName(adv ble.Advertisement) string {
	if name := adv.LocalName(); name != "" {
		return name
	}
	if addr := adv.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}
