// Package swarm describes the slice of a Docker Swarm control plane
// that the reconciler drives, and provides a driver for it.
package swarm

import (
	"context"
)

// AuthConfigLabel names the service label selecting which registry
// login session (docker config directory) to use for the service.
const AuthConfigLabel = "shepherd.auth.config"

// Service is what we need to know about a swarm service for one pass.
type Service struct {
	Name string
	// Image is the image in the current spec; Swarm usually pins a
	// digest to it.
	Image string
	// PreviousImage is the image in the previous spec, empty if the
	// service has never been updated.
	PreviousImage string
	// AuthConfig is the value of AuthConfigLabel, if present.
	AuthConfig string
}

// ManifestOptions modify a manifest lookup.
type ManifestOptions struct {
	ConfigScope string
	Insecure    bool
}

// UpdateOptions modify `service update` and `service rollback`. A nil
// Detach leaves the choice to the control plane.
type UpdateOptions struct {
	ConfigScope      string
	Detach           *bool
	WithRegistryAuth bool
	Insecure         bool
	NoResolveImage   bool
	// Extra modifiers supplied by the operator, passed through as-is.
	Extra []string
}

// Credential is a registry login. An empty Scope means the default
// session.
type Credential struct {
	Scope, Host, User, Secret string
}

// Cluster is the control plane surface the reconciler depends on.
type Cluster interface {
	Version(ctx context.Context) (string, error)
	// Services lists service names matching filter (e.g.
	// "label=shepherd.enable=true"), in the order the control plane
	// yields them.
	Services(ctx context.Context, filter string) ([]string, error)
	Inspect(ctx context.Context, name string) (Service, error)
	// Replicas returns the desired replica count for a replicated
	// service, and -1 for global services.
	Replicas(ctx context.Context, name string) (int, error)
	ManifestExists(ctx context.Context, image string, opts ManifestOptions) (bool, error)
	UpdateService(ctx context.Context, name string, opts UpdateOptions, image string) error
	RollbackService(ctx context.Context, name string, opts UpdateOptions) error
	// Images lists local image IDs for a repository, newest first.
	Images(ctx context.Context, repository string) ([]string, error)
	PruneContainers(ctx context.Context) error
	RemoveImages(ctx context.Context, ids []string) error
	Login(ctx context.Context, cred Credential) error
}
