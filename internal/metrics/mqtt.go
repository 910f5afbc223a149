package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// ErrNotConnected is returned by the MQTT sink while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt client not connected")

// MQTTOptions configures the MQTT sink.
type MQTTOptions struct {
	Broker      string
	Port        int
	ClientID    string
	TopicPrefix string
}

// GaugeMessage is the JSON document published for every gauge.
type GaugeMessage struct {
	Metric    string            `json:"metric"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags"`
	Timestamp time.Time         `json:"timestamp"`
}

// MQTTSink publishes each gauge as a JSON message at QoS 0.
type MQTTSink struct {
	client mqtt.Client
	opts   MQTTOptions
	logger *logrus.Logger
	now    func() time.Time

	mu        sync.RWMutex
	connected bool
}

// NewMQTTSink configures an auto-reconnecting client and starts connecting in
// the background. Gauges are dropped until the first connection succeeds.
func NewMQTTSink(opts MQTTOptions, logger *logrus.Logger) *MQTTSink {
	if logger == nil {
		logger = logrus.New()
	}
	s := &MQTTSink{opts: opts, logger: logger, now: time.Now}

	co := mqtt.NewClientOptions()
	co.AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Broker, opts.Port))
	co.SetClientID(opts.ClientID)
	co.SetCleanSession(true)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(5 * time.Second)
	co.SetMaxReconnectInterval(60 * time.Second)
	co.SetKeepAlive(30 * time.Second)
	co.SetPingTimeout(10 * time.Second)

	co.SetOnConnectHandler(func(_ mqtt.Client) {
		s.setConnected(true)
		logger.WithFields(logrus.Fields{"broker": opts.Broker, "port": opts.Port}).Info("MQTT connected")
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		logger.WithError(err).Warn("MQTT connection lost")
	})

	s.client = mqtt.NewClient(co)
	s.client.Connect()
	return s
}

// Topic returns the topic a gauge is published to:
// <prefix>/<mac_address>/<metric>. Without a mac_address tag the segment is
// "unknown".
func (s *MQTTSink) Topic(name string, tags []Tag) string {
	mac := "unknown"
	for _, t := range tags {
		if t.Key == "mac_address" && t.Value != "" {
			mac = strings.ReplaceAll(t.Value, ":", "")
		}
	}
	return strings.Join([]string{strings.TrimSuffix(s.opts.TopicPrefix, "/"), mac, name}, "/")
}

// Message builds the JSON body for a gauge.
func (s *MQTTSink) Message(name string, value float64, tags []Tag) ([]byte, error) {
	m := GaugeMessage{
		Metric:    name,
		Value:     value,
		Tags:      make(map[string]string, len(tags)),
		Timestamp: s.now().UTC(),
	}
	for _, t := range tags {
		m.Tags[t.Key] = t.Value
	}
	return json.Marshal(m)
}

func (s *MQTTSink) Gauge(name string, value float64, tags []Tag) error {
	if !s.isConnected() {
		return fmt.Errorf("mqtt gauge %s: %w", name, ErrNotConnected)
	}
	body, err := s.Message(name, value, tags)
	if err != nil {
		return fmt.Errorf("mqtt gauge %s: %w", name, err)
	}
	// QoS 0: the token completes once the packet is queued, nothing to wait for.
	s.client.Publish(s.Topic(name, tags), 0, false, body)
	return nil
}

// Close disconnects, giving in-flight publishes 250ms to drain.
func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	s.setConnected(false)
	s.logger.Debug("MQTT sink closed")
	return nil
}

func (s *MQTTSink) isConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected && s.client.IsConnected()
}

func (s *MQTTSink) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
