package update

import (
	"context"

	"github.com/pkg/errors"

	"github.com/fluxcd/shepherd/pkg/capability"
	fluxerr "github.com/fluxcd/shepherd/pkg/errors"
	"github.com/fluxcd/shepherd/pkg/image"
	"github.com/fluxcd/shepherd/pkg/registry"
	"github.com/fluxcd/shepherd/pkg/swarm"
)

// Prober checks that the tag a service runs can still be resolved
// from its registry, before we ask the control plane to update to it.
// Updating towards an unresolvable tag fails deep inside the swarm's
// own reconciliation, with far less useful errors.
type Prober struct {
	Checker      registry.ManifestChecker
	Capabilities capability.Set
}

// Probe returns the service's image with its digest stripped, or an
// error if the image cannot be resolved. An error means the outcome is
// Unavailable; it is not retried within the pass.
func (p *Prober) Probe(ctx context.Context, svc swarm.Service) (image.Ref, error) {
	ref, err := image.ParseRef(svc.Image)
	if err != nil {
		return image.Ref{}, fluxerr.ServiceError(errors.Wrapf(err, "service %s", svc.Name))
	}
	ref = ref.WithoutDigest()
	ok, err := p.Checker.ManifestExists(ctx, ref.String(), swarm.ManifestOptions{
		ConfigScope: svc.AuthConfig,
		Insecure:    p.Capabilities.Insecure,
	})
	if err == nil && !ok {
		err = errors.Errorf("manifest for %s not found", ref)
	}
	if err != nil {
		return ref, fluxerr.ServiceError(err)
	}
	return ref, nil
}
