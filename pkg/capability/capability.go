// Package capability decides which `docker service update` modifiers
// are safe to use against the engine we are talking to.
package capability

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"

	fluxerr "github.com/fluxcd/shepherd/pkg/errors"
)

// MinimumSyncVersion is the first engine release whose CLI can wait
// for a service update to converge (`--detach=false`).
var MinimumSyncVersion = semver.New(17, 5, 0, "", "")

// Declarations are the operator's explicit switches, as read from
// configuration.
type Declarations struct {
	RegistryUser     string
	WithRegistryAuth bool
	Insecure         bool
	NoResolveImage   bool
}

// Set is fixed for the lifetime of a process.
type Set struct {
	SyncUpdates      bool
	WithRegistryAuth bool
	Insecure         bool
	NoResolveImage   bool
}

func (s Set) String() string {
	return fmt.Sprintf("sync=%t registry-auth=%t insecure=%t no-resolve-image=%t",
		s.SyncUpdates, s.WithRegistryAuth, s.Insecure, s.NoResolveImage)
}

// Versioner is the part of the control plane we need here.
type Versioner interface {
	Version(ctx context.Context) (string, error)
}

// Detect asks the control plane for its version and combines it with
// the declarations. Failing to reach the control plane is fatal.
func Detect(ctx context.Context, v Versioner, decl Declarations) (Set, error) {
	raw, err := v.Version(ctx)
	if err != nil {
		return Set{}, fluxerr.FatalError(errors.Wrap(err, "querying engine version"),
			"the docker engine could not be reached; check that the docker socket is mounted")
	}
	sync, err := SupportsSyncUpdates(raw)
	if err != nil {
		return Set{}, fluxerr.FatalError(err, "the docker engine reported a version that could not be understood")
	}
	return Set{
		SyncUpdates:      sync,
		WithRegistryAuth: decl.RegistryUser != "" || decl.WithRegistryAuth,
		Insecure:         decl.Insecure,
		NoResolveImage:   decl.NoResolveImage,
	}, nil
}

// SupportsSyncUpdates compares an engine version against
// MinimumSyncVersion numerically.
func SupportsSyncUpdates(raw string) (bool, error) {
	v, err := ParseEngineVersion(raw)
	if err != nil {
		return false, err
	}
	return v.Compare(MinimumSyncVersion) >= 0, nil
}

var engineVersionRegexp = regexp.MustCompile(`^v?(\d+)(?:\.(\d+))?(?:\.(\d+))?`)

// ParseEngineVersion understands the version strings docker engines
// report, e.g. "17.05.0-ce", "20.10.7", "17.10" or "1.13.1". Anything
// after the numeric part (edition, pre-release, build) is dropped:
// "17.05.0-ce" has to compare equal to 17.5.0, not below it.
func ParseEngineVersion(raw string) (*semver.Version, error) {
	m := engineVersionRegexp.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return nil, errors.Errorf("unrecognised engine version %q", raw)
	}
	var parts [3]uint64
	for i, s := range m[1:] {
		if s == "" {
			continue
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing engine version %q", raw)
		}
		parts[i] = n
	}
	return semver.New(parts[0], parts[1], parts[2], "", ""), nil
}
