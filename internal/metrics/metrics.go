// Package metrics exposes process metrics for the studio on a private
// prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cudiffusion"

// Metrics holds the studio collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	reg *prometheus.Registry

	loads       *prometheus.CounterVec
	loadSeconds prometheus.Histogram
	generations *prometheus.CounterVec
	genSeconds  *prometheus.HistogramVec
	rejections  *prometheus.CounterVec
	busy        prometheus.Gauge
	saved       prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		loads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_loads_total",
			Help:      "Model load attempts by result.",
		}, []string{"result"}),
		loadSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_load_duration_seconds",
			Help:      "Time spent constructing an engine.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
		generations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generation attempts by mode and result.",
		}, []string{"mode", "result"}),
		genSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Inference duration of successful generations.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"mode"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Requests refused before reaching the engine.",
		}, []string{"reason"}),
		busy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "busy",
			Help:      "1 while a load or generation is in flight.",
		}),
		saved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_saved_total",
			Help:      "Images written to the output directory.",
		}),
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}


func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveLoad records a finished engine construction.
func (m *Metrics) ObserveLoad(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.loadSeconds.Observe(d.Seconds())
	}
}

// ReuseLoad records a load request satisfied by the resident engine.
func (m *Metrics) ReuseLoad() {
	if m == nil {
		return
	}
	m.loads.WithLabelValues("reused").Inc()
}

// ObserveGeneration records a finished generation attempt.
func (m *Metrics) ObserveGeneration(mode string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(mode, result(err)).Inc()
	if err == nil {
		m.genSeconds.WithLabelValues(mode).Observe(d.Seconds())
	}
}

// Reject records a refused request.
func (m *Metrics) Reject(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

// SetBusy mirrors the coordinator phase.
func (m *Metrics) SetBusy(busy bool) {
	if m == nil {
		return
	}
	if busy {
		m.busy.Set(1)
		return
	}
	m.busy.Set(0)
}

// ImageSaved counts a persisted image.
func (m *Metrics) ImageSaved() {
	if m == nil {
		return
	}
	m.saved.Inc()
}
