// Package metrics provides the gauge sinks readings are forwarded to.
//
// Every sink is fire-and-forget: Gauge never waits for the backend to
// acknowledge a value and never retries. Errors only report that a value was
// dropped locally (buffer full, not connected, invalid name).
package metrics

import (
	"errors"
	"strings"
	"sync"
)

// Tag is a single key/value dimension attached to a gauge.
type Tag struct {
	Key   string
	Value string
}

// String renders the tag in statsd form.
func (t Tag) String() string {
	return t.Key + ":" + t.Value
}

// Sink receives gauge values.
type Sink interface {
	Gauge(name string, value float64, tags []Tag) error
	Close() error
}

// TagStrings renders tags in statsd "key:value" form, preserving order.
func TagStrings(tags []Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.String()
	}
	return out
}

// Fanout forwards every gauge to all sinks.
type Fanout []Sink

func (f Fanout) Gauge(name string, value float64, tags []Tag) error {
	var errs []error
	for _, s := range f {
		errs = append(errs, s.Gauge(name, value, tags))
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Point is one recorded gauge value.
type Point struct {
	Name  string
	Value float64
	Tags  []Tag
}

// TagString joins the point's tags in statsd form.
func (p Point) TagString() string {
	return strings.Join(TagStrings(p.Tags), ",")
}

// Recorder keeps gauges in memory. Used by tests and for dry runs.
type Recorder struct {
	mu     sync.Mutex
	points []Point
	closed bool
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Gauge(name string, value float64, tags []Tag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, Point{Name: name, Value: value, Tags: append([]Tag(nil), tags...)})
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Points returns a copy of everything recorded so far.
func (r *Recorder) Points() []Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Point(nil), r.points...)
}

// Closed reports whether Close has been called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Reset drops all recorded points.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.points = nil
	r.mu.Unlock()
}
