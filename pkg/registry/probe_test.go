package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/shepherd/pkg/registry/middleware"
	"github.com/fluxcd/shepherd/pkg/swarm"
)

const manifestDigest = "sha256:0d17b565c37bcbd895e9d92315a05c1c3c9a29f762b011a10c54a66cd53c9b31"

// fakeRegistry serves a single tag, app:1.0, behind basic auth when
// user is set.
func fakeRegistry(t *testing.T, user, pass string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user != "" {
			u, p, ok := r.BasicAuth()
			if !ok || u != user || p != pass {
				w.Header().Set("WWW-Authenticate", `Basic realm="fake"`)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}
		switch r.URL.Path {
		case "/v2/":
			w.WriteHeader(http.StatusOK)
		case "/v2/app/manifests/1.0":
			w.Header().Set("Content-Type", "application/vnd.docker.distribution.manifest.v2+json")
			w.Header().Set("Docker-Content-Digest", manifestDigest)
			w.Header().Set("Content-Length", "528")
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func hostOf(t *testing.T, s *httptest.Server) string {
	u, err := url.Parse(s.URL)
	require.NoError(t, err)
	return u.Host
}

func TestProberAnonymous(t *testing.T) {
	ts := fakeRegistry(t, "", "")
	defer ts.Close()
	host := hostOf(t, ts)

	p := &Prober{
		Limiters: &middleware.RateLimiters{RPS: 50, Burst: 5},
		Logger:   log.NewNopLogger(),
	}
	opts := swarm.ManifestOptions{Insecure: true}

	ok, err := p.ManifestExists(context.Background(), host+"/app:1.0", opts)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.ManifestExists(context.Background(), host+"/app:2.0", opts)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestProberUsesScopedCredentials(t *testing.T) {
	ts := fakeRegistry(t, "bot", "s3cret")
	defer ts.Close()
	host := hostOf(t, ts)

	p := &Prober{
		Credentials: func() (Credentials, error) {
			return Credentials{Entries: []swarm.Credential{
				{Scope: "other", Host: host, User: "someone", Secret: "wrong"},
				{Scope: "ci", Host: host, User: "bot", Secret: "s3cret"},
			}}, nil
		},
	}

	ok, err := p.ManifestExists(context.Background(), host+"/app:1.0", swarm.ManifestOptions{ConfigScope: "ci", Insecure: true})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.ManifestExists(context.Background(), host+"/app:1.0", swarm.ManifestOptions{ConfigScope: "other", Insecure: true})
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestCredsFor(t *testing.T) {
	primary := swarm.Credential{Host: "reg.example.com", User: "admin"}
	cs := Credentials{
		Primary: &primary,
		Entries: []swarm.Credential{
			{Scope: "ci", Host: "reg.example.com", User: "bot"},
			{Scope: "hub", Host: "", User: "hubuser"},
			{Scope: "ghcr", Host: "ghcr.io", User: "me"},
		},
	}
	assert.Equal(t, "bot", credsFor(cs, "reg.example.com", "ci").User)
	assert.Equal(t, "admin", credsFor(cs, "reg.example.com", "").User)
	assert.Equal(t, "admin", credsFor(cs, "reg.example.com", "nosuchscope").User)
	assert.Equal(t, "me", credsFor(cs, "ghcr.io", "").User)
	assert.Equal(t, "hubuser", credsFor(cs, "index.docker.io", "").User)
	assert.Equal(t, swarm.Credential{}, credsFor(cs, "quay.io", ""))
}
