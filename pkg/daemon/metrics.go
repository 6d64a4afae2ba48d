package daemon

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	fluxmetrics "github.com/fluxcd/shepherd/pkg/metrics"
)

var (
	// A pass is dominated by synchronous updates, each bounded by the
	// update timeout; passes with nothing to update take seconds.
	passDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "shepherd",
		Subsystem: "daemon",
		Name:      "pass_duration_seconds",
		Help:      "Duration of a reconciliation pass over all services, in seconds.",
		Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800},
	}, []string{fluxmetrics.LabelSuccess})

	serviceOutcomes = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "shepherd",
		Subsystem: "daemon",
		Name:      "service_outcomes_total",
		Help:      "Count of services handled, by outcome.",
	}, []string{fluxmetrics.LabelOutcome})
)
