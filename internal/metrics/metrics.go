package metrics

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mymmsc/reactor"
	"github.com/mymmsc/reactor/internal/config"
)

const (
	BackendLabel = "backend"
	KindLabel    = "kind"
)

// Metrics is a reactor.Observer that exports loop activity to prometheus.
// A disabled instance accepts every call and records nothing.
type Metrics struct {
	IsEnabled bool
	Registry  *prometheus.Registry

	PollTotal     *prometheus.CounterVec
	ReadyTotal    *prometheus.CounterVec
	PollLatency   *prometheus.HistogramVec
	CallbackTotal *prometheus.CounterVec
	GrowTotal     prometheus.Counter
	Capacity      prometheus.Gauge
}

var _ reactor.Observer = (*Metrics)(nil)

func NewMetrics(cfg *config.MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{IsEnabled: false}
	}

	m := &Metrics{
		IsEnabled: true,
		Registry:  prometheus.NewPedanticRegistry(),

		PollTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reactor_polls_total",
				Help: "Total number of backend polls",
			},
			[]string{BackendLabel},
		),
		ReadyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reactor_ready_fds_total",
				Help: "Total number of ready descriptors reported by polls",
			},
			[]string{BackendLabel},
		),
		PollLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reactor_poll_latency",
				Help:    "Time (in milliseconds) spent blocked in a backend poll.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
			},
			[]string{BackendLabel},
		),
		CallbackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reactor_callbacks_total",
				Help: "Total number of callbacks invoked by kind (io, timer)",
			},
			[]string{KindLabel},
		),
		GrowTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reactor_grow_total",
			Help: "Total number of loop capacity growths",
		}),
		Capacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reactor_capacity",
			Help: "Current loop capacity in descriptors",
		}),
	}

	m.Registry.MustRegister(
		// Add the standard process and go metrics to the registry
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
		m.PollTotal,
		m.ReadyTotal,
		m.PollLatency,
		m.CallbackTotal,
		m.GrowTotal,
		m.Capacity,
	)
	return m
}

func (m *Metrics) Polled(b reactor.Backend, n int, d time.Duration) {
	if !m.IsEnabled {
		return
	}
	m.PollTotal.With(prometheus.Labels{BackendLabel: string(b)}).Inc()
	m.ReadyTotal.With(prometheus.Labels{BackendLabel: string(b)}).Add(float64(n))
	m.PollLatency.With(prometheus.Labels{BackendLabel: string(b)}).Observe(float64(d) / float64(time.Millisecond))
}

func (m *Metrics) Dispatched(kind reactor.Flags) {
	if !m.IsEnabled {
		return
	}
	label := "io"
	if kind == reactor.Timer {
		label = "timer"
	}
	m.CallbackTotal.With(prometheus.Labels{KindLabel: label}).Inc()
}

func (m *Metrics) Grown(_, to int) {
	if !m.IsEnabled {
		return
	}
	m.GrowTotal.Inc()
	m.Capacity.Set(float64(to))
}

// SetCapacity records the capacity a loop started with.
func (m *Metrics) SetCapacity(c int) {
	if !m.IsEnabled {
		return
	}
	m.Capacity.Set(float64(c))
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if !m.IsEnabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// MetricsMiddleware mounts Handler on GET /metrics.
func (m *Metrics) MetricsMiddleware(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(m.Handler()))
}
