// Package observability mengumpulkan metrik Prometheus aplikasi: HTTP,
// keputusan gerbang akses, dan penghitung sink audit.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sabha-admin/sabha/internal/audit"
)

const namespace = "sabha"

// Metrics memegang registry privat; tidak ada yang didaftarkan ke registry
// global sehingga test dapat membuat instance baru dengan bebas.
type Metrics struct {
	registry      *prometheus.Registry
	handler       http.Handler
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	gateDecisions *prometheus.CounterVec
	gateLatency   prometheus.Histogram
}

// NewMetrics membuat registry beserta metrik runtime Go dan proses.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Permintaan HTTP per route, method, dan status.",
		}, []string{"route", "method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Durasi permintaan HTTP per route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Keputusan gerbang akses per state dan alasan.",
		}, []string{"state", "reason"}),
		gateLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_check_duration_seconds",
			Help:      "Durasi pemeriksaan izin oleh gerbang akses.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 3},
		}),
	}
	m.registry.MustRegister(
		m.requests, m.latency, m.gateDecisions, m.gateLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
	return m
}

// Handler melayani endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat jumlah dan durasi permintaan per pola route chi, bukan
// per path mentah, agar kardinalitas label tetap kecil.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		route := routePattern(r)
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).Inc()
		m.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveGate mencatat hasil akhir satu pemeriksaan gerbang akses.
func (m *Metrics) ObserveGate(state, reason string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(state, reason).Inc()
	m.gateLatency.Observe(elapsed.Seconds())
}

// RegisterAuditStats mengekspos penghitung sink audit. stats dibaca saat scrape.
func (m *Metrics) RegisterAuditStats(stats func() audit.Stats) {
	if m == nil || stats == nil {
		return
	}
	fields := []struct {
		name, help string
		pick       func(audit.Stats) uint64
	}{
		{"audit_events_enqueued_total", "Event audit yang masuk antrean.", func(s audit.Stats) uint64 { return s.Enqueued }},
		{"audit_events_written_total", "Event audit yang tersimpan.", func(s audit.Stats) uint64 { return s.Written }},
		{"audit_events_dropped_total", "Event audit yang dibuang.", func(s audit.Stats) uint64 { return s.Dropped }},
		{"audit_write_failures_total", "Penulisan audit yang gagal setelah retry.", func(s audit.Stats) uint64 { return s.Failed }},
	}
	for _, f := range fields {
		pick := f.pick
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Namespace: namespace, Name: f.name, Help: f.help},
			func() float64 { return float64(pick(stats())) },
		))
	}
}

// Registerer mengekspos registry untuk metrik milik paket lain.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
