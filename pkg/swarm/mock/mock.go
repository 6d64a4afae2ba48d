package mock

import (
	"context"

	"github.com/fluxcd/shepherd/pkg/swarm"
)

// Mock is a swarm.Cluster whose behaviour is given by function fields.
type Mock struct {
	VersionFunc         func(ctx context.Context) (string, error)
	ServicesFunc        func(ctx context.Context, filter string) ([]string, error)
	InspectFunc         func(ctx context.Context, name string) (swarm.Service, error)
	ReplicasFunc        func(ctx context.Context, name string) (int, error)
	ManifestExistsFunc  func(ctx context.Context, image string, opts swarm.ManifestOptions) (bool, error)
	UpdateServiceFunc   func(ctx context.Context, name string, opts swarm.UpdateOptions, image string) error
	RollbackServiceFunc func(ctx context.Context, name string, opts swarm.UpdateOptions) error
	ImagesFunc          func(ctx context.Context, repository string) ([]string, error)
	PruneContainersFunc func(ctx context.Context) error
	RemoveImagesFunc    func(ctx context.Context, ids []string) error
	LoginFunc           func(ctx context.Context, cred swarm.Credential) error
}

var _ swarm.Cluster = &Mock{}

func (m *Mock) Version(ctx context.Context) (string, error) {
	return m.VersionFunc(ctx)
}

func (m *Mock) Services(ctx context.Context, filter string) ([]string, error) {
	return m.ServicesFunc(ctx, filter)
}

func (m *Mock) Inspect(ctx context.Context, name string) (swarm.Service, error) {
	return m.InspectFunc(ctx, name)
}

func (m *Mock) Replicas(ctx context.Context, name string) (int, error) {
	return m.ReplicasFunc(ctx, name)
}

func (m *Mock) ManifestExists(ctx context.Context, image string, opts swarm.ManifestOptions) (bool, error) {
	return m.ManifestExistsFunc(ctx, image, opts)
}

func (m *Mock) UpdateService(ctx context.Context, name string, opts swarm.UpdateOptions, image string) error {
	return m.UpdateServiceFunc(ctx, name, opts, image)
}

func (m *Mock) RollbackService(ctx context.Context, name string, opts swarm.UpdateOptions) error {
	return m.RollbackServiceFunc(ctx, name, opts)
}

func (m *Mock) Images(ctx context.Context, repository string) ([]string, error) {
	return m.ImagesFunc(ctx, repository)
}

func (m *Mock) PruneContainers(ctx context.Context) error {
	return m.PruneContainersFunc(ctx)
}

func (m *Mock) RemoveImages(ctx context.Context, ids []string) error {
	return m.RemoveImagesFunc(ctx, ids)
}

func (m *Mock) Login(ctx context.Context, cred swarm.Credential) error {
	return m.LoginFunc(ctx, cred)
}
