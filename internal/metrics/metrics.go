// Package metrics exposes prometheus instruments for paged fetches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Phantom read outcomes.
const (
	OutcomeRecovered = "recovered"
	OutcomeExhausted = "exhausted"
	OutcomeCancelled = "cancelled"
)

// Metrics groups the fetch instruments registered with one registerer.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// FetchAttempts counts data+count query rounds.
	FetchAttempts prometheus.Counter
	// PhantomReads counts fetches that saw at least one inconsistent round,
	// by how the fetch ended.
	PhantomReads *prometheus.CounterVec
	// FetchDuration is the wall time of a whole fetch including backoff.
	FetchDuration prometheus.Histogram
}

// New registers the fetch instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FetchAttempts: f.NewCounter(prometheus.CounterOpts{
			Name: "criteria_fetch_attempts_total",
			Help: "Total number of data and count query rounds",
		}),
		PhantomReads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "criteria_phantom_reads_total",
				Help: "Fetches that observed an inconsistent page, by outcome",
			},
			[]string{"outcome"},
		),
		FetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "criteria_fetch_duration_seconds",
			Help:    "Paged fetch latency in seconds, backoff included",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Attempt records one query round.
func (m *Metrics) Attempt() {
	if m == nil {
		return
	}
	m.FetchAttempts.Inc()
}

// PhantomRead records a fetch that retried, with its outcome.
func (m *Metrics) PhantomRead(outcome string) {
	if m == nil {
		return
	}
	m.PhantomReads.WithLabelValues(outcome).Inc()
}

// Observe records the duration of a finished fetch.
func (m *Metrics) Observe(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}
