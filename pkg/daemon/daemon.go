package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/fluxcd/shepherd/pkg/api"
	"github.com/fluxcd/shepherd/pkg/config"
	fluxerr "github.com/fluxcd/shepherd/pkg/errors"
	fluxmetrics "github.com/fluxcd/shepherd/pkg/metrics"
	"github.com/fluxcd/shepherd/pkg/notify"
	"github.com/fluxcd/shepherd/pkg/swarm"
	"github.com/fluxcd/shepherd/pkg/update"
)

// Services is the part of the control plane the daemon reads from
// directly; everything else goes through the update package.
type Services interface {
	Version(ctx context.Context) (string, error)
	Services(ctx context.Context, filter string) ([]string, error)
	Inspect(ctx context.Context, name string) (swarm.Service, error)
}

// Login establishes registry sessions for a pass.
type Login interface {
	Login(ctx context.Context) error
}

// Daemon is the reconciler: each pass walks the services once and
// tries to bring each one up to date with its tag.
type Daemon struct {
	V        string
	Cluster  Services
	Registry Login
	Prober   *update.Prober
	Executor *update.Executor
	// Collector is nil when image cleanup is disabled.
	Collector *update.Collector
	Notifier  notify.Notifier
	Messages  notify.Messages
	Filter    string
	Ignore    config.IgnoreSet
	Logger    log.Logger
	// bookkeeping
	*LoopVars
	status
}

// Invariant.
var _ api.Server = &Daemon{}

func (d *Daemon) Version(ctx context.Context) (string, error) {
	return d.V, nil
}

func (d *Daemon) Ping(ctx context.Context) error {
	if _, err := d.Cluster.Version(ctx); err != nil {
		return fluxerr.FatalError(err, "the docker engine could not be reached")
	}
	return nil
}

func (d *Daemon) LastPass(ctx context.Context) (api.PassStatus, error) {
	if last, ok := d.status.get(); ok {
		return last, nil
	}
	return api.PassStatus{}, fluxerr.MissingError(errors.New("no pass has finished yet"),
		"The first pass has not finished yet; try again later.")
}

func (d *Daemon) Trigger(ctx context.Context) error {
	d.AskForPass()
	return nil
}

// Pass logs in, then handles every service that matches the filter
// and is not ignored, one at a time. Failures that concern a single
// service are reported and logged, and never end the pass; the only
// errors returned are fatal ones.
func (d *Daemon) Pass(ctx context.Context) (err error) {
	record := api.PassStatus{ID: uuid.New().String(), Started: time.Now().UTC()}
	defer func() {
		record.Finished = time.Now().UTC()
		if err != nil {
			record.Error = err.Error()
		}
		d.status.set(record)
		passDuration.With(
			fluxmetrics.LabelSuccess, fmt.Sprint(err == nil),
		).Observe(record.Finished.Sub(record.Started).Seconds())
	}()

	logger := log.With(d.Logger, "pass", record.ID)
	if err := d.Registry.Login(ctx); err != nil {
		return err
	}

	names, err := d.Cluster.Services(ctx, d.Filter)
	if err != nil {
		return fluxerr.FatalError(errors.Wrap(err, "listing services"),
			"services could not be listed; check that this node is a swarm manager")
	}
	level.Debug(logger).Log("msg", "found services", "count", len(names), "filter", d.Filter)

	for _, name := range names {
		if d.Ignore.Contains(name) {
			level.Debug(logger).Log("service", name, "msg", "ignored")
			continue
		}
		res := d.reconcile(ctx, log.With(logger, "service", name), name)
		d.report(logger, res)
		record.Services = append(record.Services, serviceStatus(res))
	}
	return nil
}

// reconcile takes one service through probe, update and cleanup, and
// sends the notification its outcome calls for.
func (d *Daemon) reconcile(ctx context.Context, logger log.Logger, name string) update.Result {
	svc, err := d.Cluster.Inspect(ctx, name)
	if err != nil {
		// there is no image to look for
		d.Notifier.Notify(d.Messages.Unavailable(name, ""))
		return update.Result{Service: name, Outcome: update.Unavailable, Err: fluxerr.ServiceError(err)}
	}

	ref, err := d.Prober.Probe(ctx, svc)
	if err != nil {
		image := ref.String()
		if image == "" {
			image = svc.Image
		}
		d.Notifier.Notify(d.Messages.Unavailable(name, image))
		return update.Result{Service: name, Outcome: update.Unavailable, Image: image, Err: err}
	}

	res := d.Executor.Execute(ctx, svc, ref.String())
	switch res.Outcome {
	case update.Failed:
		d.Notifier.Notify(d.Messages.Failed(name, res.Image))
	case update.Updated:
		d.Notifier.Notify(d.Messages.Updated(name, res.From, res.To))
		if d.Collector != nil {
			removed, err := d.Collector.Collect(ctx, res.Image)
			if err != nil {
				level.Warn(logger).Log("msg", "image cleanup failed", "err", err)
			} else if len(removed) > 0 {
				level.Debug(logger).Log("msg", "removed images", "ids", fmt.Sprint(removed))
			}
		}
	}
	return res
}

// report writes the one outcome line each service gets per pass.
func (d *Daemon) report(logger log.Logger, res update.Result) {
	serviceOutcomes.With(fluxmetrics.LabelOutcome, res.Outcome.String()).Add(1)

	kvs := []interface{}{"service", res.Service, "outcome", res.Outcome.String()}
	if res.Image != "" {
		kvs = append(kvs, "image", res.Image)
	}
	switch res.Outcome {
	case update.Updated:
		kvs = append(kvs, "from", res.From, "to", res.To)
		level.Info(logger).Log(kvs...)
	case update.NoChange:
		level.Debug(logger).Log(kvs...)
	default:
		if res.RolledBack {
			kvs = append(kvs, "rolledback", true)
		}
		kvs = append(kvs, "err", res.Err)
		level.Error(logger).Log(kvs...)
	}
}

func serviceStatus(res update.Result) api.ServiceStatus {
	s := api.ServiceStatus{
		Service:    res.Service,
		Outcome:    res.Outcome.String(),
		Image:      res.Image,
		From:       res.From,
		To:         res.To,
		RolledBack: res.RolledBack,
	}
	if res.Err != nil {
		s.Error = res.Err.Error()
	}
	return s
}
