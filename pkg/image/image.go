package image

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

const (
	dockerHubHost = "index.docker.io"

	oldDockerHubHost = "docker.io"
)

var (
	ErrInvalidImageID   = errors.New("invalid image ID")
	ErrBlankImageID     = errors.Wrap(ErrInvalidImageID, "blank image name")
	ErrMalformedImageID = errors.Wrap(ErrInvalidImageID, `expected image name as <image>[:<tag>][@<digest>]`)
	ErrMalformedDigest  = errors.Wrap(ErrInvalidImageID, "malformed digest")
)

// Name represents an unversioned (i.e., untagged) image a.k.a.,
// an image repo. These sometimes include a domain, e.g., quay.io, and
// always include a path with at least one element. By convention,
// images at DockerHub may have the domain omitted; and, if they only
// have single path element, the prefix `library` is implied.
//
// Examples (stringified):
//   * alpine
//   * library/alpine
//   * docker.io/containrrr/shepherd
//   * localhost:5000/arbitrary/path/to/repo
type Name struct {
	Domain, Image string
}

// CanonicalName is an image name with none of the fields left to be
// implied by convention.
type CanonicalName struct {
	Name
}

// String gives the repository as it was written, which is also what
// the local image store filters on.
func (i Name) String() string {
	if i.Image == "" {
		return ""
	}
	var host string
	if i.Domain != "" {
		host = i.Domain + "/"
	}
	return fmt.Sprintf("%s%s", host, i.Image)
}

// Repository returns the canonicalised path part of an Name.
func (i Name) Repository() string {
	switch i.Domain {
	case "", oldDockerHubHost, dockerHubHost:
		path := strings.Split(i.Image, "/")
		if len(path) == 1 {
			return "library/" + i.Image
		}
		return i.Image
	default:
		return i.Image
	}
}

// Registry returns the domain name of the Docker image registry, to
// use to fetch the image or image metadata.
func (i Name) Registry() string {
	switch i.Domain {
	case "", oldDockerHubHost:
		return dockerHubHost
	default:
		return i.Domain
	}
}

// CanonicalName returns the canonicalised registry host and image parts
// of the ID.
func (i Name) CanonicalName() CanonicalName {
	return CanonicalName{
		Name: Name{
			Domain: i.Registry(),
			Image:  i.Repository(),
		},
	}
}

// Ref represents a versioned image, as it appears in a service
// spec. Swarm pins the digest it resolved when the service was
// created or last updated, so a running service usually carries both
// a tag and a digest.
//
// Examples (stringified):
//  * alpine:3.5
//  * nginx:latest@sha256:0d17b565c37bcbd895e9d92315a05c1c3c9a29f762b011a10c54a66cd53c9b31
//  * localhost:5000/arbitrary/path/to/repo:revision-sha1
type Ref struct {
	Name
	Tag    string
	Digest digest.Digest
}

// String returns the Ref as a string (i.e., unparsed) without canonicalising it.
func (i Ref) String() string {
	var tag, dgst string
	if i.Tag != "" {
		tag = ":" + i.Tag
	}
	if i.Digest != "" {
		dgst = "@" + i.Digest.String()
	}
	return fmt.Sprintf("%s%s%s", i.Name.String(), tag, dgst)
}

// WithoutDigest drops the pinned digest, leaving the reference a
// registry resolves afresh on every lookup.
func (i Ref) WithoutDigest() Ref {
	i.Digest = ""
	return i
}

// ParseRef parses a string representation of an image reference
// into a Ref value. The grammar is shown here:
// https://github.com/docker/distribution/blob/master/reference/reference.go
// (but we do not care about all the productions.)
func ParseRef(s string) (Ref, error) {
	var id Ref
	if s == "" {
		return id, errors.Wrapf(ErrBlankImageID, "parsing %q", s)
	}

	if at := strings.Index(s, "@"); at >= 0 {
		d, err := digest.Parse(s[at+1:])
		if err != nil {
			return id, errors.Wrapf(ErrMalformedDigest, "parsing %q: %s", s, err)
		}
		id.Digest = d
		s = s[:at]
	}

	if s == "" || strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") {
		return id, errors.Wrapf(ErrMalformedImageID, "parsing %q", s)
	}

	elements := strings.Split(s, "/")
	switch len(elements) {
	case 1: // no slashes, e.g., "alpine:1.5"; treat as library image
		id.Image = s
	case 2: // may have a domain e.g., "localhost/foo", or not e.g., "containrrr/shepherd"
		if domainRegexp.MatchString(elements[0]) || strings.Contains(elements[0], ":") {
			id.Domain = elements[0]
			id.Image = elements[1]
		} else {
			id.Image = s
		}
	default: // cannot be a library image, so the first element is assumed to be a domain
		id.Domain = elements[0]
		id.Image = strings.Join(elements[1:], "/")
	}

	imageParts := strings.Split(id.Image, ":")
	switch len(imageParts) {
	case 1:
		break
	case 2:
		if imageParts[0] == "" || imageParts[1] == "" {
			return id, errors.Wrapf(ErrMalformedImageID, "parsing %q", s)
		}
		id.Image = imageParts[0]
		id.Tag = imageParts[1]
	default:
		return id, errors.Wrapf(ErrMalformedImageID, "parsing %q", s)
	}

	return id, nil
}

var (
	domainComponent = `([a-zA-Z0-9]|[a-zA-Z0-9][a-zA-Z0-9-]*[a-zA-Z0-9])`
	domain          = fmt.Sprintf(`^(localhost|(%s([.]%s)+))(:[0-9]+)?$`, domainComponent, domainComponent)
	domainRegexp    = regexp.MustCompile(domain)
)
