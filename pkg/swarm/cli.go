package swarm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
)

const defaultBinary = "docker"

// command is a single invocation of the docker CLI.
type command struct {
	args  []string
	env   []string
	stdin string
}

func (c command) String() string {
	return strings.Join(c.args, " ")
}

type runner func(ctx context.Context, c command) (stdout string, err error)

// CLI drives a swarm manager through the docker command line client,
// which must be on the PATH (or given as Binary) and able to reach the
// engine, typically through a mounted /var/run/docker.sock.
type CLI struct {
	Binary string
	// ConfigRoot holds one docker config directory per auth scope;
	// a scope "ci" maps to <ConfigRoot>/ci.
	ConfigRoot string
	Logger     log.Logger
	// Trace logs every command and its outcome.
	Trace bool

	run runner
}

var _ Cluster = &CLI{}

// NewCLI returns a CLI driver. An empty configRoot means
// $HOME/.docker, which is where the docker client keeps its default
// config too.
func NewCLI(binary, configRoot string, logger log.Logger) *CLI {
	if binary == "" {
		binary = defaultBinary
	}
	if configRoot == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configRoot = filepath.Join(home, ".docker")
		}
	}
	c := &CLI{
		Binary:     binary,
		ConfigRoot: configRoot,
		Logger:     logger,
	}
	c.run = c.execDocker
	return c
}

func (c *CLI) execDocker(ctx context.Context, cmd command) (string, error) {
	x := exec.CommandContext(ctx, c.Binary, cmd.args...)
	x.Env = append(os.Environ(), cmd.env...)
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	x.Stdout = stdout
	x.Stderr = stderr
	if cmd.stdin != "" {
		x.Stdin = strings.NewReader(cmd.stdin)
	}

	err := x.Run()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = errors.New(msg)
		} else if msg := strings.TrimSpace(stdout.String()); msg != "" {
			err = errors.New(msg)
		}
	}

	if c.Trace && c.Logger != nil {
		c.Logger.Log("cmd", cmd.String(), "err", err)
	}

	if ctx.Err() == context.DeadlineExceeded {
		return "", errors.Wrap(ctx.Err(), fmt.Sprintf("running docker command: %s", cmd))
	} else if ctx.Err() == context.Canceled {
		return "", errors.Wrap(ctx.Err(), fmt.Sprintf("context was unexpectedly cancelled when running docker command: %s", cmd))
	}
	return stdout.String(), err
}

// scoped prefixes args with the config directory for a scope.
func (c *CLI) scoped(scope string, args ...string) []string {
	if scope == "" {
		return args
	}
	return append([]string{"--config", filepath.Join(c.ConfigRoot, scope)}, args...)
}

func lines(out string) []string {
	var res []string
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			res = append(res, l)
		}
	}
	return res
}

func (c *CLI) Version(ctx context.Context) (string, error) {
	out, err := c.run(ctx, command{args: []string{"version", "--format", "{{.Server.Version}}"}})
	if err != nil {
		return "", errors.Wrap(err, "getting engine version")
	}
	return strings.TrimSpace(out), nil
}

func (c *CLI) Services(ctx context.Context, filter string) ([]string, error) {
	args := []string{"service", "ls", "--format", "{{.Name}}"}
	if filter != "" {
		args = append(args, "--filter", filter)
	}
	out, err := c.run(ctx, command{args: args})
	if err != nil {
		return nil, errors.Wrap(err, "listing services")
	}
	return lines(out), nil
}

type containerSpec struct {
	TaskTemplate struct {
		ContainerSpec struct {
			Image string
		}
	}
	Labels map[string]string
}

type inspectedService struct {
	Spec         containerSpec
	PreviousSpec *containerSpec
}

func (c *CLI) Inspect(ctx context.Context, name string) (Service, error) {
	out, err := c.run(ctx, command{args: []string{"service", "inspect", name}})
	if err != nil {
		return Service{}, errors.Wrapf(err, "inspecting service %s", name)
	}
	var inspected []inspectedService
	if err := json.Unmarshal([]byte(out), &inspected); err != nil {
		return Service{}, errors.Wrapf(err, "decoding inspection of service %s", name)
	}
	if len(inspected) != 1 {
		return Service{}, errors.Errorf("expected one service named %s, got %d", name, len(inspected))
	}
	s := inspected[0]
	svc := Service{
		Name:       name,
		Image:      s.Spec.TaskTemplate.ContainerSpec.Image,
		AuthConfig: s.Spec.Labels[AuthConfigLabel],
	}
	if s.PreviousSpec != nil {
		svc.PreviousImage = s.PreviousSpec.TaskTemplate.ContainerSpec.Image
	}
	return svc, nil
}

func (c *CLI) Replicas(ctx context.Context, name string) (int, error) {
	out, err := c.run(ctx, command{args: []string{
		"service", "ls", "--filter", "name=" + name, "--format", "{{.Name}}\t{{.Mode}}\t{{.Replicas}}",
	}})
	if err != nil {
		return 0, errors.Wrapf(err, "counting replicas of %s", name)
	}
	// the name filter matches prefixes, so look for the exact name
	for _, l := range lines(out) {
		fields := strings.SplitN(l, "\t", 3)
		if len(fields) != 3 || fields[0] != name {
			continue
		}
		if fields[1] == "global" {
			return -1, nil
		}
		return parseDesiredReplicas(fields[2])
	}
	return 0, errors.Errorf("service %s not found", name)
}

// parseDesiredReplicas reads the desired count out of "2/3" or
// "0/0 (max 1 per node)".
func parseDesiredReplicas(s string) (int, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, errors.Errorf("unexpected replicas column %q", s)
	}
	desired := strings.Fields(parts[1])
	if len(desired) == 0 {
		return 0, errors.Errorf("unexpected replicas column %q", s)
	}
	n, err := strconv.Atoi(desired[0])
	if err != nil {
		return 0, errors.Wrapf(err, "unexpected replicas column %q", s)
	}
	return n, nil
}

func (c *CLI) ManifestExists(ctx context.Context, image string, opts ManifestOptions) (bool, error) {
	args := []string{"manifest", "inspect"}
	if opts.Insecure {
		args = append(args, "--insecure")
	}
	args = append(args, image)
	_, err := c.run(ctx, command{
		args: c.scoped(opts.ConfigScope, args...),
		env:  []string{"DOCKER_CLI_EXPERIMENTAL=enabled"},
	})
	if err != nil {
		return false, errors.Wrapf(err, "inspecting manifest of %s", image)
	}
	return true, nil
}

func updateFlags(opts UpdateOptions) []string {
	var args []string
	if opts.Detach != nil {
		args = append(args, "--detach="+strconv.FormatBool(*opts.Detach))
	}
	if opts.WithRegistryAuth {
		args = append(args, "--with-registry-auth")
	}
	if opts.NoResolveImage {
		args = append(args, "--no-resolve-image")
	}
	// `service update` has no insecure switch; pulls from insecure
	// registries are governed by each engine's own configuration.
	return append(args, opts.Extra...)
}

func (c *CLI) UpdateService(ctx context.Context, name string, opts UpdateOptions, image string) error {
	args := append([]string{"service", "update"}, updateFlags(opts)...)
	args = append(args, "--image", image, name)
	if _, err := c.run(ctx, command{args: c.scoped(opts.ConfigScope, args...)}); err != nil {
		return errors.Wrapf(err, "updating service %s", name)
	}
	return nil
}

func (c *CLI) RollbackService(ctx context.Context, name string, opts UpdateOptions) error {
	args := append([]string{"service", "update", "--rollback"}, updateFlags(opts)...)
	args = append(args, name)
	if _, err := c.run(ctx, command{args: c.scoped(opts.ConfigScope, args...)}); err != nil {
		return errors.Wrapf(err, "rolling back service %s", name)
	}
	return nil
}

func (c *CLI) Images(ctx context.Context, repository string) ([]string, error) {
	out, err := c.run(ctx, command{args: []string{
		"images", "--filter", "reference=" + repository, "--format", "{{.ID}}",
	}})
	if err != nil {
		return nil, errors.Wrapf(err, "listing images of %s", repository)
	}
	// an image with several tags is listed once per tag
	var ids []string
	seen := map[string]bool{}
	for _, id := range lines(out) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *CLI) PruneContainers(ctx context.Context) error {
	if _, err := c.run(ctx, command{args: []string{"container", "prune", "--force"}}); err != nil {
		return errors.Wrap(err, "pruning stopped containers")
	}
	return nil
}

func (c *CLI) RemoveImages(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := c.run(ctx, command{args: append([]string{"rmi"}, ids...)}); err != nil {
		return errors.Wrap(err, "removing images")
	}
	return nil
}

func (c *CLI) Login(ctx context.Context, cred Credential) error {
	args := []string{"login", "--username", cred.User, "--password-stdin"}
	if cred.Host != "" {
		args = append(args, cred.Host)
	}
	if _, err := c.run(ctx, command{args: c.scoped(cred.Scope, args...), stdin: cred.Secret}); err != nil {
		return errors.Wrapf(err, "logging in to %q as %s", cred.Host, cred.User)
	}
	return nil
}
