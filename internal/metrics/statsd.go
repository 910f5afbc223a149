package metrics

import (
	"fmt"
	"net"
	"strconv"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/sirupsen/logrus"
)

// StatsdOptions configures the statsd sink.
type StatsdOptions struct {
	Host      string
	Port      int
	Namespace string
}

// Addr returns host:port.
func (o StatsdOptions) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// StatsdSink sends gauges over UDP with the Datadog statsd client.
type StatsdSink struct {
	client statsd.ClientInterface
	addr   string
	logger *logrus.Logger
}

// NewStatsdSink creates the client. The UDP socket is not connected, so an
// unreachable agent only shows up as silently dropped packets.
func NewStatsdSink(opts StatsdOptions, logger *logrus.Logger) (*StatsdSink, error) {
	if logger == nil {
		logger = logrus.New()
	}

	clientOpts := []statsd.Option{
		statsd.WithoutTelemetry(),
		statsd.WithoutClientSideAggregation(),
	}
	if opts.Namespace != "" {
		clientOpts = append(clientOpts, statsd.WithNamespace(opts.Namespace))
	}

	client, err := statsd.New(opts.Addr(), clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create statsd client for %s: %w", opts.Addr(), err)
	}

	logger.WithField("addr", opts.Addr()).Debug("statsd sink ready")

	return &StatsdSink{client: client, addr: opts.Addr(), logger: logger}, nil
}

func (s *StatsdSink) Gauge(name string, value float64, tags []Tag) error {
	if err := s.client.Gauge(name, value, TagStrings(tags), 1); err != nil {
		return fmt.Errorf("statsd gauge %s: %w", name, err)
	}
	return nil
}

// Close flushes buffered values and closes the socket.
func (s *StatsdSink) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("statsd close: %w", err)
	}
	s.logger.WithField("addr", s.addr).Debug("statsd sink closed")
	return nil
}
