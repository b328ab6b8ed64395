package wyvern

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"

	prometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "exchange"
)

// Metrics contains metrics exposed by the exchange.
type Metrics struct {
	// Number of match attempts, by result.
	Matches metrics.Counter

	// Units of fill recorded, by side.
	FillRecorded metrics.Counter

	// Number of orders cancelled.
	Cancellations metrics.Counter

	// Number of orders approved on the ledger.
	Approvals metrics.Counter

	// Time spent settling one match.
	MatchDuration metrics.Histogram
}

// PrometheusMetrics returns Metrics built using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Matches: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "matches_total",
			Help:      "Number of atomic match attempts.",
		}, withLabel(labels, "result")).With(labelsAndValues...),
		FillRecorded: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "fill_recorded_total",
			Help:      "Units of order fill recorded by matches.",
		}, withLabel(labels, "side")).With(labelsAndValues...),
		Cancellations: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "cancellations_total",
			Help:      "Number of cancelled orders.",
		}, labels).With(labelsAndValues...),
		Approvals: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "approvals_total",
			Help:      "Number of orders approved on the ledger.",
		}, labels).With(labelsAndValues...),
		MatchDuration: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "match_duration_seconds",
			Help:      "Time spent settling one match.",
			Buckets:   stdprometheus.ExponentialBuckets(0.0001, 4, 8),
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Matches:       discard.NewCounter(),
		FillRecorded:  discard.NewCounter(),
		Cancellations: discard.NewCounter(),
		Approvals:     discard.NewCounter(),
		MatchDuration: discard.NewHistogram(),
	}
}

func withLabel(labels []string, name string) []string {
	out := make([]string, 0, len(labels)+1)
	return append(append(out, labels...), name)
}
