package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"voicecall-platform/internal/elevenlabs"
)

// Metrics groups the Prometheus instruments. Registered once at startup via New.
type Metrics struct {
	VendorRequests *prometheus.CounterVec
	VendorLatency  *prometheus.HistogramVec
	Submissions    *prometheus.CounterVec
	PollOutcomes   *prometheus.CounterVec
	ActivePolls    prometheus.Gauge
	StatsCache     *prometheus.CounterVec
}

// New registers every instrument with reg. Pass a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		VendorRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "elevenlabs_requests_total",
			Help: "Vendor API requests by operation and result.",
		}, []string{"op", "result"}),

		VendorLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "elevenlabs_request_seconds",
			Help:    "Vendor API request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),

		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_submissions_total",
			Help: "Batch call submissions by result.",
		}, []string{"result"}),

		PollOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_poll_outcomes_total",
			Help: "Finished polling tasks by final state.",
		}, []string{"state"}),

		ActivePolls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "batch_active_polls",
			Help: "Polling tasks currently running in this process.",
		}),

		StatsCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stats_cache_lookups_total",
			Help: "Statistics cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.VendorRequests,
		m.VendorLatency,
		m.Submissions,
		m.PollOutcomes,
		m.ActivePolls,
		m.StatsCache,
	)
	return m
}

// VendorObserver plugs into elevenlabs.Options.Observer.
func (m *Metrics) VendorObserver() elevenlabs.Observer {
	return func(op string, d time.Duration, err error) {
		m.VendorRequests.WithLabelValues(op, vendorResult(err)).Inc()
		m.VendorLatency.WithLabelValues(op).Observe(d.Seconds())
	}
}

func vendorResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, elevenlabs.ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}

// PollHooks returns the callbacks the call service invokes around polling
// tasks, keeping that package free of Prometheus imports.
func (m *Metrics) PollHooks() (onStart func(), onFinish func(state string)) {
	onStart = func() { m.ActivePolls.Inc() }
	onFinish = func(state string) {
		m.ActivePolls.Dec()
		m.PollOutcomes.WithLabelValues(state).Inc()
	}
	return
}

// SubmissionHook counts submissions as "ok" or "error".
func (m *Metrics) SubmissionHook() func(err error) {
	return func(err error) {
		result := "ok"
		if err != nil {
			result = "error"
		}
		m.Submissions.WithLabelValues(result).Inc()
	}
}

// CacheHook counts statistics cache lookups.
func (m *Metrics) CacheHook() func(result string) {
	return func(result string) { m.StatsCache.WithLabelValues(result).Inc() }
}
