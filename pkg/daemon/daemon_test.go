package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/shepherd/pkg/capability"
	"github.com/fluxcd/shepherd/pkg/config"
	fluxerr "github.com/fluxcd/shepherd/pkg/errors"
	"github.com/fluxcd/shepherd/pkg/notify"
	"github.com/fluxcd/shepherd/pkg/swarm"
	"github.com/fluxcd/shepherd/pkg/swarm/mock"
	"github.com/fluxcd/shepherd/pkg/update"
)

const (
	digestOld = "sha256:1111111111111111111111111111111111111111111111111111111111111111"
	digestNew = "sha256:2222222222222222222222222222222222222222222222222222222222222222"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

type loginFunc func(ctx context.Context) error

func (f loginFunc) Login(ctx context.Context) error {
	return f(ctx)
}

// fakeSwarm holds services in memory; an update to a resolvable tag
// moves the service to digestNew.
type fakeSwarm struct {
	mock.Mock
	services   map[string]swarm.Service
	order      []string
	resolvable map[string]bool
	calls      map[string][]string
	images     []string
}

func newFakeSwarm() *fakeSwarm {
	f := &fakeSwarm{
		services:   map[string]swarm.Service{},
		resolvable: map[string]bool{},
		calls:      map[string][]string{},
	}
	f.ServicesFunc = func(_ context.Context, filter string) ([]string, error) {
		return f.order, nil
	}
	f.InspectFunc = func(_ context.Context, name string) (swarm.Service, error) {
		f.record(name, "inspect")
		svc, ok := f.services[name]
		if !ok {
			return swarm.Service{}, errors.Errorf("no such service: %s", name)
		}
		return svc, nil
	}
	f.ManifestExistsFunc = func(_ context.Context, image string, _ swarm.ManifestOptions) (bool, error) {
		for name, svc := range f.services {
			if image == stripped(svc.Image) {
				f.record(name, "probe")
			}
		}
		if !f.resolvable[image] {
			return false, errors.New("no such manifest")
		}
		return true, nil
	}
	f.ReplicasFunc = func(_ context.Context, name string) (int, error) {
		return 1, nil
	}
	f.UpdateServiceFunc = func(_ context.Context, name string, _ swarm.UpdateOptions, image string) error {
		f.record(name, "update")
		svc := f.services[name]
		svc.PreviousImage = svc.Image
		svc.Image = image + "@" + digestNew
		f.services[name] = svc
		return nil
	}
	f.RollbackServiceFunc = func(_ context.Context, name string, _ swarm.UpdateOptions) error {
		f.record(name, "rollback")
		return nil
	}
	f.ImagesFunc = func(context.Context, string) ([]string, error) {
		return f.images, nil
	}
	f.PruneContainersFunc = func(context.Context) error { return nil }
	f.RemoveImagesFunc = func(_ context.Context, ids []string) error {
		f.record("gc", ids...)
		return nil
	}
	return f
}

func stripped(image string) string {
	for i := range image {
		if image[i] == '@' {
			return image[:i]
		}
	}
	return image
}

func (f *fakeSwarm) record(name string, calls ...string) {
	f.calls[name] = append(f.calls[name], calls...)
}

func (f *fakeSwarm) add(name, image string, resolvable bool) {
	f.services[name] = swarm.Service{Name: name, Image: image + "@" + digestOld}
	f.order = append(f.order, name)
	f.resolvable[image] = resolvable
}

func newDaemon(t *testing.T, f *fakeSwarm, n notify.Notifier, ignore string) *Daemon {
	logger := log.NewNopLogger()
	return &Daemon{
		Cluster:  f,
		Registry: loginFunc(func(context.Context) error { return nil }),
		Prober:   &update.Prober{Checker: f},
		Executor: &update.Executor{
			Cluster:      f,
			Capabilities: capability.Set{SyncUpdates: true},
			Timeout:      time.Second,
			Rollback:     true,
			Logger:       logger,
		},
		Notifier: n,
		Messages: notify.Messages{Hostname: "manager-1"},
		Ignore:   config.ParseIgnoreSet(ignore),
		Logger:   logger,
		LoopVars: &LoopVars{RunOnce: true},
	}
}

func TestPass_EndToEnd(t *testing.T) {
	f := newFakeSwarm()
	f.add("a", "registry.example.com/team/a:stable", true)
	f.add("b", "registry.example.com/team/b:stable", true)
	f.add("c", "registry.example.com/team/c:gone", false)
	n := &recordingNotifier{}
	d := newDaemon(t, f, n, "b")

	require.NoError(t, d.Pass(context.Background()))

	require.Len(t, n.sent, 2)
	assert.Equal(t, notify.Success, n.sent[0].Severity)
	assert.Equal(t, "[Shepherd] Service a updated on manager-1", n.sent[0].Title)
	assert.Equal(t, notify.Failure, n.sent[1].Severity)
	assert.Equal(t, "[Shepherd] Error updating service c on manager-1", n.sent[1].Title)

	assert.Empty(t, f.calls["b"])
	assert.Equal(t, []string{"inspect", "probe", "update", "inspect"}, f.calls["a"])
	assert.Equal(t, []string{"inspect", "probe"}, f.calls["c"])
	assert.Equal(t, "registry.example.com/team/a:stable@"+digestNew, f.services["a"].Image)
}

func TestPass_NoChangeIsSilent(t *testing.T) {
	f := newFakeSwarm()
	f.add("a", "nginx:1.19", true)
	f.UpdateServiceFunc = func(_ context.Context, name string, _ swarm.UpdateOptions, _ string) error {
		svc := f.services[name]
		svc.PreviousImage = svc.Image
		f.services[name] = svc
		return nil
	}
	n := &recordingNotifier{}
	d := newDaemon(t, f, n, "")

	require.NoError(t, d.Pass(context.Background()))
	assert.Empty(t, n.sent)
}

func TestPass_FailureRollsBackAndContinues(t *testing.T) {
	f := newFakeSwarm()
	f.add("a", "nginx:1.19", true)
	f.add("b", "redis:6", true)
	next := f.UpdateServiceFunc
	f.UpdateServiceFunc = func(ctx context.Context, name string, opts swarm.UpdateOptions, image string) error {
		if name == "a" {
			f.record(name, "update")
			return errors.New("update out of sequence")
		}
		return next(ctx, name, opts, image)
	}
	n := &recordingNotifier{}
	d := newDaemon(t, f, n, "")

	require.NoError(t, d.Pass(context.Background()))
	assert.Equal(t, []string{"inspect", "probe", "update", "rollback"}, f.calls["a"])
	require.Len(t, n.sent, 2)
	assert.Equal(t, "[Shepherd] Service a update failed on manager-1", n.sent[0].Title)
	assert.Equal(t, notify.Success, n.sent[1].Severity)
}

func TestPass_CollectsOnlyAfterUpdate(t *testing.T) {
	f := newFakeSwarm()
	f.add("a", "nginx:1.19", true)
	f.add("c", "nginx:gone", false)
	f.images = []string{"n3", "n2", "n1"}
	d := newDaemon(t, f, &recordingNotifier{}, "")
	d.Collector = &update.Collector{Store: f, Limit: 1, Logger: log.NewNopLogger()}

	require.NoError(t, d.Pass(context.Background()))
	assert.Equal(t, []string{"n2", "n1"}, f.calls["gc"])
}

func TestPass_LoginFailureIsFatal(t *testing.T) {
	f := newFakeSwarm()
	f.add("a", "nginx:1.19", true)
	d := newDaemon(t, f, &recordingNotifier{}, "")
	d.Registry = loginFunc(func(context.Context) error {
		return fluxerr.FatalError(errors.New("unauthorized"), "")
	})

	err := d.Pass(context.Background())
	assert.Error(t, err)
	assert.True(t, fluxerr.IsFatal(err))
	assert.Empty(t, f.calls["a"])
}

func TestPass_ListFailureIsFatal(t *testing.T) {
	f := newFakeSwarm()
	f.ServicesFunc = func(context.Context, string) ([]string, error) {
		return nil, errors.New("this node is not a swarm manager")
	}
	d := newDaemon(t, f, &recordingNotifier{}, "")
	assert.True(t, fluxerr.IsFatal(d.Pass(context.Background())))
}

func TestPass_InspectFailureIsUnavailable(t *testing.T) {
	f := newFakeSwarm()
	f.order = []string{"vanished"}
	n := &recordingNotifier{}
	d := newDaemon(t, f, n, "")

	require.NoError(t, d.Pass(context.Background()))
	require.Len(t, n.sent, 1)
	assert.Equal(t, notify.Failure, n.sent[0].Severity)
}

func TestLastPass(t *testing.T) {
	f := newFakeSwarm()
	f.add("a", "nginx:1.19", true)
	f.add("c", "nginx:gone", false)
	d := newDaemon(t, f, &recordingNotifier{}, "")

	_, err := d.LastPass(context.Background())
	assert.True(t, fluxerr.IsMissing(err))

	require.NoError(t, d.Pass(context.Background()))
	last, err := d.LastPass(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, last.ID)
	assert.Empty(t, last.Error)
	assert.False(t, last.Finished.Before(last.Started))
	require.Len(t, last.Services, 2)
	assert.Equal(t, "updated", last.Services[0].Outcome)
	assert.Equal(t, "unavailable", last.Services[1].Outcome)
	assert.NotEmpty(t, last.Services[1].Error)
}

func TestPing(t *testing.T) {
	f := newFakeSwarm()
	f.VersionFunc = func(context.Context) (string, error) { return "", errors.New("Cannot connect to the Docker daemon") }
	d := newDaemon(t, f, &recordingNotifier{}, "")
	assert.True(t, fluxerr.IsFatal(d.Ping(context.Background())))

	f.VersionFunc = func(context.Context) (string, error) { return "19.03.8", nil }
	assert.NoError(t, d.Ping(context.Background()))
}
