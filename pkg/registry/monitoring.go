package registry

// Monitoring middleware for manifest probes

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	fluxmetrics "github.com/fluxcd/shepherd/pkg/metrics"
	"github.com/fluxcd/shepherd/pkg/swarm"
)

var (
	probeDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "shepherd",
		Subsystem: "registry",
		Name:      "probe_duration_seconds",
		Help:      "Duration of image manifest probes, in seconds.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{fluxmetrics.LabelSuccess})
)

// ManifestChecker is anything that can tell whether an image
// reference resolves: the control plane itself, or a Prober.
type ManifestChecker interface {
	ManifestExists(ctx context.Context, image string, opts swarm.ManifestOptions) (bool, error)
}

type instrumentedChecker struct {
	next ManifestChecker
}

func NewInstrumentedChecker(next ManifestChecker) ManifestChecker {
	return &instrumentedChecker{next: next}
}

func (m *instrumentedChecker) ManifestExists(ctx context.Context, image string, opts swarm.ManifestOptions) (ok bool, err error) {
	start := time.Now()
	ok, err = m.next.ManifestExists(ctx, image, opts)
	probeDuration.With(
		fluxmetrics.LabelSuccess, strconv.FormatBool(err == nil && ok),
	).Observe(time.Since(start).Seconds())
	return
}
