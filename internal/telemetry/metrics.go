package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	ServiceName    string
	ServiceVersion string

	Namespace        string    // Prometheus namespace (default: mcp)
	HistogramBuckets []float64 // latency buckets in milliseconds

	// Registry receives the collectors. A fresh registry is created when nil.
	Registry *prometheus.Registry
}

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	reg *prometheus.Registry
	cfg MetricsConfig

	callDuration *prometheus.HistogramVec
	callTotal    *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpTotal    *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = "mcp"
	}
	if cfg.HistogramBuckets == nil {
		cfg.HistogramBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	constLabels := prometheus.Labels{"service": cfg.ServiceName, "version": cfg.ServiceVersion}

	m := &Metrics{
		reg: cfg.Registry,
		cfg: cfg,
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Name:        "call_duration_milliseconds",
			Help:        "Duration of tool, resource and prompt invocations in milliseconds",
			Buckets:     cfg.HistogramBuckets,
			ConstLabels: constLabels,
		}, []string{"kind", "name", "outcome"}),
		callTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "call_total",
			Help:        "Total number of tool, resource and prompt invocations",
			ConstLabels: constLabels,
		}, []string{"kind", "name", "outcome"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   "http",
			Name:        "request_duration_milliseconds",
			Help:        "Duration of HTTP requests in milliseconds",
			Buckets:     cfg.HistogramBuckets,
			ConstLabels: constLabels,
		}, []string{"route", "method"}),
		httpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   "http",
			Name:        "request_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: constLabels,
		}, []string{"route", "method", "status"}),
	}

	for _, c := range []prometheus.Collector{m.callDuration, m.callTotal, m.httpDuration, m.httpTotal} {
		if err := m.reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// TrackSessions exposes fn as the live session count of a transport.
func (m *Metrics) TrackSessions(transport string, fn func() int) error {
	return m.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   m.cfg.Namespace,
		Name:        "sessions_active",
		Help:        "Number of live sessions",
		ConstLabels: prometheus.Labels{"service": m.cfg.ServiceName, "version": m.cfg.ServiceVersion, "transport": transport},
	}, func() float64 { return float64(fn()) }))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) observeCall(kind, name, outcome string, d time.Duration) {
	m.callDuration.WithLabelValues(kind, name, outcome).Observe(float64(d.Milliseconds()))
	m.callTotal.WithLabelValues(kind, name, outcome).Inc()
}

// Middleware records request counts and latency under route.
func (m *Metrics) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			m.httpDuration.WithLabelValues(route, r.Method).Observe(float64(time.Since(start).Milliseconds()))
			m.httpTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.statusCode())).Inc()
		})
	}
}

// statusWriter captures the response status while keeping streaming
// responses flushable.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *statusWriter) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
