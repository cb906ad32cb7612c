// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts pipeline outcomes. All methods are safe on a nil receiver
// so components can run without metrics.
type Metrics struct {
	Captures          atomic.Uint64
	DetectionsFound   atomic.Uint64
	EmptyResults      atomic.Uint64
	DetectionFailures atomic.Uint64
	StaleResponses    atomic.Uint64
	CameraFailures    atomic.Uint64
	LocationFailures  atomic.Uint64

	SharesNative    atomic.Uint64
	SharesClipboard atomic.Uint64
	ShareFailures   atomic.Uint64

	DetectLatencyMs atomic.Uint64

	registry *prometheus.Registry
}

// New creates a Metrics instance backed by its own Prometheus registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.register()
	return m
}

func (m *Metrics) register() {
	counter := func(name, help string, v *atomic.Uint64) {
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: name, Help: help},
			func() float64 { return float64(v.Load()) },
		))
	}

	counter("pothole_captures_total", "Frames captured and submitted for detection", &m.Captures)
	counter("pothole_detections_found_total", "Captures where the service returned at least one detection", &m.DetectionsFound)
	counter("pothole_empty_results_total", "Captures where the service found nothing", &m.EmptyResults)
	counter("pothole_detection_failures_total", "Detection requests that failed", &m.DetectionFailures)
	counter("pothole_stale_responses_total", "Detection responses discarded after a reset", &m.StaleResponses)
	counter("pothole_camera_failures_total", "Camera acquisitions that failed", &m.CameraFailures)
	counter("pothole_location_failures_total", "Location resolutions that failed", &m.LocationFailures)
	counter("pothole_shares_native_total", "Shares handed to the native share facility", &m.SharesNative)
	counter("pothole_shares_clipboard_total", "Shares copied to the clipboard", &m.SharesClipboard)
	counter("pothole_share_failures_total", "Shares that could not be completed", &m.ShareFailures)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "pothole_detect_latency_ms",
			Help: "Duration of the most recent detection round trip in milliseconds",
		},
		func() float64 { return float64(m.DetectLatencyMs.Load()) },
	))
}

// Inc increments c unless m is nil.
func (m *Metrics) Inc(c func(*Metrics) *atomic.Uint64) {
	if m == nil {
		return
	}
	c(m).Add(1)
}

// ObserveDetect records the latency of a detection round trip.
func (m *Metrics) ObserveDetect(d time.Duration) {
	if m == nil {
		return
	}
	m.DetectLatencyMs.Store(uint64(d.Milliseconds()))
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Field selectors for Inc.
var (
	Captures          = func(m *Metrics) *atomic.Uint64 { return &m.Captures }
	DetectionsFound   = func(m *Metrics) *atomic.Uint64 { return &m.DetectionsFound }
	EmptyResults      = func(m *Metrics) *atomic.Uint64 { return &m.EmptyResults }
	DetectionFailures = func(m *Metrics) *atomic.Uint64 { return &m.DetectionFailures }
	StaleResponses    = func(m *Metrics) *atomic.Uint64 { return &m.StaleResponses }
	CameraFailures    = func(m *Metrics) *atomic.Uint64 { return &m.CameraFailures }
	LocationFailures  = func(m *Metrics) *atomic.Uint64 { return &m.LocationFailures }
	SharesNative      = func(m *Metrics) *atomic.Uint64 { return &m.SharesNative }
	SharesClipboard   = func(m *Metrics) *atomic.Uint64 { return &m.SharesClipboard }
	ShareFailures     = func(m *Metrics) *atomic.Uint64 { return &m.ShareFailures }
)
