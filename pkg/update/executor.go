package update

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/fluxcd/shepherd/pkg/capability"
	fluxerr "github.com/fluxcd/shepherd/pkg/errors"
	fluxmetrics "github.com/fluxcd/shepherd/pkg/metrics"
	"github.com/fluxcd/shepherd/pkg/swarm"
)

// DefaultTimeout bounds a single update command.
const DefaultTimeout = 300 * time.Second

// ServiceUpdater is the part of the control plane the Executor drives.
type ServiceUpdater interface {
	Inspect(ctx context.Context, name string) (swarm.Service, error)
	Replicas(ctx context.Context, name string) (int, error)
	UpdateService(ctx context.Context, name string, opts swarm.UpdateOptions, image string) error
	RollbackService(ctx context.Context, name string, opts swarm.UpdateOptions) error
}

// Executor applies an image to a service and decides the outcome.
type Executor struct {
	Cluster      ServiceUpdater
	Capabilities capability.Set
	// Timeout bounds the update command (and the rollback, if any).
	// A timed-out update is Failed, even if the swarm later finishes
	// it on its own.
	Timeout time.Duration
	// Rollback asks for `service update --rollback` after a failure.
	Rollback      bool
	UpdateExtra   []string
	RollbackExtra []string
	Logger        log.Logger
}

func (e *Executor) timeout() time.Duration {
	if e.Timeout <= 0 {
		return DefaultTimeout
	}
	return e.Timeout
}

func boolPtr(b bool) *bool {
	return &b
}

// options builds the modifiers for an update or rollback. Waiting for
// convergence of a service scaled to zero would never finish, so such
// services are always updated detached.
func (e *Executor) options(ctx context.Context, svc swarm.Service, extra []string) swarm.UpdateOptions {
	opts := swarm.UpdateOptions{
		ConfigScope:      svc.AuthConfig,
		WithRegistryAuth: e.Capabilities.WithRegistryAuth,
		Insecure:         e.Capabilities.Insecure,
		NoResolveImage:   e.Capabilities.NoResolveImage,
		Extra:            extra,
	}
	if e.Capabilities.SyncUpdates {
		opts.Detach = boolPtr(false)
	}
	replicas, err := e.Cluster.Replicas(ctx, svc.Name)
	switch {
	case err != nil:
		level.Warn(e.Logger).Log("service", svc.Name, "msg", "could not count replicas", "err", err)
	case replicas == 0:
		opts.Detach = boolPtr(true)
	}
	return opts
}

func (e *Executor) timed(action string, f func() error) error {
	start := time.Now()
	err := f()
	commandDuration.With(
		fluxmetrics.LabelAction, action,
		fluxmetrics.LabelSuccess, fmt.Sprint(err == nil),
	).Observe(time.Since(start).Seconds())
	return err
}

// Execute updates svc to image (a reference without digest).
func (e *Executor) Execute(ctx context.Context, svc swarm.Service, image string) Result {
	res := Result{Service: svc.Name, Image: image}
	logger := log.With(e.Logger, "service", svc.Name)
	level.Debug(logger).Log("msg", "trying to update service", "image", image)

	err := e.timed(actionUpdate, func() error {
		ctx, cancel := context.WithTimeout(ctx, e.timeout())
		defer cancel()
		return e.Cluster.UpdateService(ctx, svc.Name, e.options(ctx, svc, e.UpdateExtra), image)
	})
	if err != nil {
		res.Outcome = Failed
		res.Err = fluxerr.ServiceError(err)
		if e.Rollback {
			res.RolledBack = true
			e.rollback(ctx, logger, svc)
		}
		return res
	}

	after, err := e.Cluster.Inspect(ctx, svc.Name)
	if err != nil {
		// the update went through, so there is nothing to roll back
		res.Outcome = Failed
		res.Err = fluxerr.ServiceError(errors.Wrap(err, "reading service after update"))
		return res
	}
	res.From, res.To = after.PreviousImage, after.Image
	if after.PreviousImage == after.Image {
		res.Outcome = NoChange
	} else {
		res.Outcome = Updated
	}
	return res
}

// rollback is best effort: its failure is logged and otherwise
// ignored.
func (e *Executor) rollback(ctx context.Context, logger log.Logger, svc swarm.Service) {
	level.Info(logger).Log("msg", "rolling back")
	err := e.timed(actionRollback, func() error {
		ctx, cancel := context.WithTimeout(ctx, e.timeout())
		defer cancel()
		return e.Cluster.RollbackService(ctx, svc.Name, e.options(ctx, svc, e.RollbackExtra))
	})
	if err != nil {
		level.Error(logger).Log("msg", "rollback failed", "err", fluxerr.BestEffortError(err))
	}
}
