package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/srg/thermolisten/internal/groutine"
)

const shutdownTimeout = 5 * time.Second

// PrometheusSink keeps the last value of every gauge and exposes it for
// scraping. Statsd names are mapped to Prometheus names by replacing dots
// with underscores; tag keys become label names.
type PrometheusSink struct {
	registry *prometheus.Registry
	logger   *logrus.Logger

	mu     sync.Mutex
	gauges map[string]*prometheus.GaugeVec
	labels map[string][]string

	server *http.Server
	addr   net.Addr
}

// NewPrometheusSink creates a sink backed by its own registry. Call Serve to
// expose it over HTTP.
func NewPrometheusSink(logger *logrus.Logger) *PrometheusSink {
	if logger == nil {
		logger = logrus.New()
	}
	return &PrometheusSink{
		registry: prometheus.NewRegistry(),
		logger:   logger,
		gauges:   make(map[string]*prometheus.GaugeVec),
		labels:   make(map[string][]string),
	}
}

// Registry returns the registry gauges are registered with.
func (p *PrometheusSink) Registry() *prometheus.Registry {
	return p.registry
}

// Handler returns the /metrics handler.
func (p *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Addr returns the bound listen address, or "" before Serve.
func (p *PrometheusSink) Addr() string {
	if p.addr == nil {
		return ""
	}
	return p.addr.String()
}

// Serve starts the HTTP listener on a background goroutine. The bind happens
// synchronously so address errors surface here.
func (p *PrometheusSink) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("prometheus listen %s: %w", addr, err)
	}

	p.addr = ln.Addr()

	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	p.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	p.logger.WithField("addr", ln.Addr().String()).Info("Serving Prometheus metrics")

	groutine.Go(ctx, "prometheus-http", func(ctx context.Context) {
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.WithError(err).Error("Prometheus HTTP server stopped")
		}
	})
	return nil
}

func (p *PrometheusSink) Gauge(name string, value float64, tags []Tag) error {
	keys := make([]string, len(tags))
	values := make([]string, len(tags))
	for i, t := range tags {
		keys[i] = t.Key
		values[i] = t.Value
	}

	vec, err := p.gaugeVec(PrometheusName(name), keys)
	if err != nil {
		return err
	}
	vec.WithLabelValues(values...).Set(value)
	return nil
}

func (p *PrometheusSink) gaugeVec(name string, keys []string) (*prometheus.GaugeVec, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if vec, ok := p.gauges[name]; ok {
		if !equalStrings(p.labels[name], keys) {
			return nil, fmt.Errorf("prometheus gauge %s: labels %v do not match registered %v", name, keys, p.labels[name])
		}
		return vec, nil
	}

	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: "Last value of " + name + ".",
	}, keys)
	if err := p.registry.Register(vec); err != nil {
		return nil, fmt.Errorf("prometheus register %s: %w", name, err)
	}
	p.gauges[name] = vec
	p.labels[name] = append([]string(nil), keys...)
	return vec, nil
}

// Close shuts the HTTP server down if Serve was called.
func (p *PrometheusSink) Close() error {
	if p.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := p.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("prometheus shutdown: %w", err)
	}
	return nil
}

// PrometheusName maps a statsd metric name to a valid Prometheus name.
func PrometheusName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			return r
		default:
			return '_'
		}
	}, name)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
