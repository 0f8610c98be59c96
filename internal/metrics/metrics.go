// Package metrics exposes Prometheus collectors for turn outcomes, guard
// decisions and upstream failures.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors registered by New. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	TurnTotal        *prometheus.CounterVec
	TurnDuration     *prometheus.HistogramVec
	GuardRefusals    *prometheus.CounterVec
	UpstreamFailures *prometheus.CounterVec
	ActiveSessions   prometheus.GaugeFunc
}

// New creates the collectors and registers them with reg. sessionCount is
// sampled on every scrape.
func New(reg prometheus.Registerer, sessionCount func() int) *Metrics {
	m := &Metrics{
		TurnTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pace_turn_total",
				Help: "Finished turns by terminal outcome.",
			},
			[]string{"outcome"},
		),
		TurnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pace_turn_duration_seconds",
				Help:    "End-to-end turn latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		GuardRefusals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pace_guard_refusals_total",
				Help: "Turns refused by the guard or post-check, by label.",
			},
			[]string{"label"},
		),
		UpstreamFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pace_upstream_failures_total",
				Help: "Failed calls to external oracles, by call kind.",
			},
			[]string{"call"}, // classify | generate | distill | journal
		),
	}
	if sessionCount == nil {
		sessionCount = func() int { return 0 }
	}
	m.ActiveSessions = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "pace_active_sessions",
			Help: "Sessions currently held in memory.",
		},
		func() float64 { return float64(sessionCount()) },
	)

	reg.MustRegister(m.TurnTotal, m.TurnDuration, m.GuardRefusals, m.UpstreamFailures, m.ActiveSessions)
	return m
}

func (m *Metrics) ObserveTurn(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.TurnTotal.WithLabelValues(outcome).Inc()
	m.TurnDuration.WithLabelValues(outcome).Observe(took.Seconds())
}

func (m *Metrics) ObserveRefusal(label string) {
	if m == nil {
		return
	}
	m.GuardRefusals.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveUpstreamFailure(call string) {
	if m == nil {
		return
	}
	m.UpstreamFailures.WithLabelValues(call).Inc()
}
