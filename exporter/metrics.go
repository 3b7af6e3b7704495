package exporter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the prometheus collectors of the exporter.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	countries   *prometheus.CounterVec
	descriptors *prometheus.CounterVec
	downloads   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inflight    prometheus.Gauge
}

// MustNewMetrics creates the collectors and registers them on reg (default registerer if nil).
// Panics if registration fails.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		countries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geocube",
			Subsystem: "exporter",
			Name:      "countries_total",
			Help:      "Number of exported countries by status.",
		}, []string{"status"}),
		descriptors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geocube",
			Subsystem: "exporter",
			Name:      "descriptors_total",
			Help:      "Number of export descriptors requested to the provider, by outcome.",
		}, []string{"outcome"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geocube",
			Subsystem: "exporter",
			Name:      "downloads_total",
			Help:      "Number of downloaded rasters, by status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "geocube",
			Subsystem: "exporter",
			Name:      "country_duration_seconds",
			Help:      "Duration of the export of one country.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600, 4 * 3600},
		}, []string{"status"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "geocube",
			Subsystem: "exporter",
			Name:      "countries_inflight",
			Help:      "Number of countries being exported.",
		}),
	}
	reg.MustRegister(m.countries, m.descriptors, m.downloads, m.duration, m.inflight)
	return m
}

func (m *Metrics) countryStarted() func(status string) {
	if m == nil {
		return func(string) {}
	}
	start := time.Now()
	m.inflight.Inc()
	return func(status string) {
		m.inflight.Dec()
		m.countries.WithLabelValues(status).Inc()
		m.duration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) outcome(kind OutcomeKind) {
	if m == nil {
		return
	}
	m.descriptors.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) downloaded(succeeded, failed int) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues("success").Add(float64(succeeded))
	m.downloads.WithLabelValues("error").Add(float64(failed))
}
