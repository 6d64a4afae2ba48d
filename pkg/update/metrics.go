package update

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	fluxmetrics "github.com/fluxcd/shepherd/pkg/metrics"
)

const (
	actionUpdate   = "update"
	actionRollback = "rollback"
)

var (
	// Synchronous updates wait for the swarm to converge, which for a
	// rolling update of a few replicas takes tens of seconds to
	// minutes.
	commandDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "shepherd",
		Subsystem: "update",
		Name:      "command_duration_seconds",
		Help:      "Duration of service update and rollback commands, in seconds.",
		Buckets:   []float64{0.5, 1, 5, 10, 20, 30, 60, 120, 180, 300, 600},
	}, []string{fluxmetrics.LabelAction, fluxmetrics.LabelSuccess})

	imagesRemoved = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "shepherd",
		Subsystem: "update",
		Name:      "images_removed_total",
		Help:      "Count of superseded local images removed after updates.",
	}, []string{})
)
