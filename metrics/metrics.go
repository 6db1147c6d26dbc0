package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wippyai/wasm-boot/bootstrap"
)

// Outcome label values for boot_attempts_total.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the collectors for one process.
type Metrics struct {
	BootAttempts *prometheus.CounterVec
	InitDuration prometheus.Histogram
	State        prometheus.Gauge
	HTTPRequests *prometheus.CounterVec
	HTTPDuration prometheus.Histogram
	initStarted  time.Time
	mu           sync.Mutex
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		BootAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boot_attempts_total",
				Help: "Total number of module bootstrap attempts by outcome",
			},
			[]string{"outcome"},
		),

		InitDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "boot_init_duration_seconds",
				Help:    "Time taken to initialize the module",
				Buckets: prometheus.DefBuckets,
			},
		),

		State: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "boot_state",
				Help: "Bootstrap state (0 not_started, 1 initializing, 2 running, 3 failed)",
			},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boot_http_requests_total",
				Help: "Total number of bundle requests served by status code",
			},
			[]string{"code"},
		),

		HTTPDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "boot_http_request_duration_seconds",
				Help:    "Time taken to serve bundle requests",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// Observer records bootstrap transitions.
func (m *Metrics) Observer() bootstrap.Observer {
	return func(_, to bootstrap.State, _ error) {
		m.State.Set(float64(to))

		m.mu.Lock()
		defer m.mu.Unlock()

		switch to {
		case bootstrap.Initializing:
			m.initStarted = time.Now()
		case bootstrap.Running:
			m.BootAttempts.WithLabelValues(OutcomeSuccess).Inc()
			m.observeInit()
		case bootstrap.Failed:
			m.BootAttempts.WithLabelValues(OutcomeFailure).Inc()
			m.observeInit()
		}
	}
}

func (m *Metrics) observeInit() {
	if !m.initStarted.IsZero() {
		m.InitDuration.Observe(time.Since(m.initStarted).Seconds())
		m.initStarted = time.Time{}
	}
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(code int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(strconv.Itoa(code)).Inc()
	m.HTTPDuration.Observe(elapsed.Seconds())
}
