package image

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const testDigest = "sha256:0d17b565c37bcbd895e9d92315a05c1c3c9a29f762b011a10c54a66cd53c9b31"

func TestDomainRegexp(t *testing.T) {
	for _, d := range []string{
		"localhost", "localhost:5000",
		"example.com", "example.com:80",
		"gcr.io",
		"index.docker.com",
	} {
		if !domainRegexp.MatchString(d) {
			t.Errorf("domain regexp did not match %q", d)
		}
	}
	for _, d := range []string{"containrrr", "mylocalhostapp"} {
		if domainRegexp.MatchString(d) {
			t.Errorf("domain regexp unexpectedly matched %q", d)
		}
	}
}

func TestParseRef(t *testing.T) {
	for _, x := range []struct {
		test     string
		registry string
		repo     string
		name     string
	}{
		{"alpine", dockerHubHost, "library/alpine", "alpine"},
		{"library/alpine", dockerHubHost, "library/alpine", "library/alpine"},
		{"alpine:mytag", dockerHubHost, "library/alpine", "alpine"},
		{"docker.io/library/alpine", dockerHubHost, "library/alpine", "docker.io/library/alpine"},
		{"localhost/hello:v1.1", "localhost", "hello", "localhost/hello"},
		{"localhost:5000/hello:v1.1", "localhost:5000", "hello", "localhost:5000/hello"},
		{"registry:5000/hello:v1.1", "registry:5000", "hello", "registry:5000/hello"},
		{"quay.io/library/alpine:latest", "quay.io", "library/alpine", "quay.io/library/alpine"},
		{"localhost:5000/path/to/repo/alpine:mytag", "localhost:5000", "path/to/repo/alpine", "localhost:5000/path/to/repo/alpine"},
		{"nginx:latest@" + testDigest, dockerHubHost, "library/nginx", "nginx"},
		{"containrrr/shepherd@" + testDigest, dockerHubHost, "containrrr/shepherd", "containrrr/shepherd"},
	} {
		i, err := ParseRef(x.test)
		if !assert.NoError(t, err, x.test) {
			continue
		}
		assert.Equal(t, x.test, i.String())
		assert.Equal(t, x.registry, i.Registry())
		assert.Equal(t, x.repo, i.Repository())
		assert.Equal(t, x.name, i.Name.String())
	}
}

func TestParseRefErrors(t *testing.T) {
	for _, x := range []string{
		"",
		"/alpine",
		"alpine/",
		"alpine:",
		":tag",
		"a:b:c",
		"alpine@sha256:nothex",
		"@" + testDigest,
	} {
		_, err := ParseRef(x)
		assert.Error(t, err, "expected %q to fail", x)
	}
}

func TestWithoutDigest(t *testing.T) {
	ref, err := ParseRef("localhost:5000/app:1.2@" + testDigest)
	assert.NoError(t, err)
	assert.Equal(t, "1.2", ref.Tag)
	assert.Equal(t, testDigest, ref.Digest.String())

	stripped := ref.WithoutDigest()
	assert.Equal(t, "localhost:5000/app:1.2", stripped.String())
	// the original is left alone
	assert.Equal(t, "localhost:5000/app:1.2@"+testDigest, ref.String())
}

func TestCanonicalName(t *testing.T) {
	ref, err := ParseRef("docker.io/nginx:1.19")
	assert.NoError(t, err)
	canon := ref.CanonicalName()
	assert.Equal(t, "index.docker.io", canon.Domain)
	assert.Equal(t, "library/nginx", canon.Image)
	assert.Equal(t, "index.docker.io/library/nginx", canon.String())
}
