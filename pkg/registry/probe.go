package registry

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/docker/distribution"
	_ "github.com/docker/distribution/manifest/manifestlist"
	_ "github.com/docker/distribution/manifest/ocischema"
	_ "github.com/docker/distribution/manifest/schema2"
	"github.com/docker/distribution/registry/client"
	"github.com/docker/distribution/registry/client/auth"
	"github.com/docker/distribution/registry/client/auth/challenge"
	"github.com/docker/distribution/registry/client/transport"
	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/fluxcd/shepherd/pkg/image"
	"github.com/fluxcd/shepherd/pkg/registry/middleware"
	"github.com/fluxcd/shepherd/pkg/swarm"
)

const defaultTag = "latest"

// Prober answers "does this tag resolve?" by talking to the registry
// API directly, rather than through `docker manifest inspect`. It
// authenticates with the same credentials the login sessions use.
type Prober struct {
	// Credentials supplies the logins to choose from; it is called
	// on every probe.
	Credentials func() (Credentials, error)
	Limiters    *middleware.RateLimiters
	Logger      log.Logger
	Trace       bool

	mu               sync.Mutex
	challengeManager challenge.Manager
}

type logging struct {
	logger    log.Logger
	transport http.RoundTripper
}

func (t *logging) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := t.transport.RoundTrip(req)
	if err == nil {
		t.logger.Log("url", req.URL.String(), "status", res.Status)
	} else {
		t.logger.Log("url", req.URL.String(), "err", err.Error())
	}
	return res, err
}

// Adapt to docker distribution `reference.Named`. The distribution
// client builds URLs from Name, which must not include the domain.
type named struct {
	image.CanonicalName
}

func (n named) Name() string {
	return n.Image
}

// credsFor picks the login for a host. A service's auth scope takes
// precedence; otherwise the primary credential, then any default
// scope entry, then any entry for the host.
func credsFor(cs Credentials, host, scope string) swarm.Credential {
	matches := func(c swarm.Credential) bool {
		return c.Host == host || (c.Host == "" && host == "index.docker.io")
	}
	if scope != "" {
		for _, c := range cs.Entries {
			if c.Scope == scope && matches(c) {
				return c
			}
		}
	}
	if cs.Primary != nil && matches(*cs.Primary) {
		return *cs.Primary
	}
	var fallback *swarm.Credential
	for i, c := range cs.Entries {
		if !matches(c) {
			continue
		}
		if c.Scope == "" {
			return c
		}
		if fallback == nil {
			fallback = &cs.Entries[i]
		}
	}
	if fallback != nil {
		return *fallback
	}
	return swarm.Credential{}
}

func (p *Prober) manager() challenge.Manager {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.challengeManager == nil {
		p.challengeManager = challenge.NewSimpleManager()
	}
	return p.challengeManager
}

func (p *Prober) doChallenge(ctx context.Context, manager challenge.Manager, tx http.RoundTripper, domain string, insecureOK bool) (*url.URL, error) {
	registryURL := url.URL{
		Scheme: "https",
		Host:   domain,
		Path:   "/v2/",
	}

attemptChallenge:
	cs, err := manager.GetChallenges(registryURL)
	if err != nil {
		return nil, err
	}
	if len(cs) == 0 {
		// No prior challenge; ping the registry endpoint to get one.
		req, err := http.NewRequest("GET", registryURL.String(), nil)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		res, err := (&http.Client{
			Transport: tx,
		}).Do(req.WithContext(ctx))
		if err != nil {
			if insecureOK && registryURL.Scheme == "https" {
				registryURL.Scheme = "http"
				goto attemptChallenge
			}
			return nil, err
		}
		defer res.Body.Close()
		if err = manager.AddResponse(res); err != nil {
			return nil, err
		}
		registryURL = *res.Request.URL // <- the URL after any redirection
	}
	return &registryURL, nil
}

// ManifestExists implements the manifest probe against the registry.
func (p *Prober) ManifestExists(ctx context.Context, ref string, opts swarm.ManifestOptions) (bool, error) {
	id, err := image.ParseRef(ref)
	if err != nil {
		return false, err
	}
	repo := id.CanonicalName()

	var tx http.RoundTripper = &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.Insecure},
		MaxIdleConns:    10,
		IdleConnTimeout: 10 * time.Second,
		Proxy:           http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: 30 * time.Second,
		}).DialContext,
	}
	if p.Limiters != nil {
		tx = p.Limiters.RoundTripper(tx, repo.Domain)
	}
	if p.Trace && p.Logger != nil {
		tx = &logging{p.Logger, tx}
	}

	manager := p.manager()
	registryURL, err := p.doChallenge(ctx, manager, tx, repo.Domain, opts.Insecure)
	if err != nil {
		return false, errors.Wrapf(err, "contacting registry %s", repo.Domain)
	}

	var cs Credentials
	if p.Credentials != nil {
		if cs, err = p.Credentials(); err != nil {
			return false, err
		}
	}
	cred := credsFor(cs, repo.Domain, opts.ConfigScope)
	if p.Trace && p.Logger != nil {
		p.Logger.Log("repo", repo.String(), "auth", credString(cred), "api", registryURL.String())
	}

	authHandlers := []auth.AuthenticationHandler{
		auth.NewTokenHandler(tx, &store{cred}, repo.Image, "pull"),
		auth.NewBasicHandler(&store{cred}),
	}
	tx = transport.NewTransport(tx, auth.NewAuthorizer(manager, authHandlers...))

	registryURL.Path = ""
	repository, err := client.NewRepository(named{repo}, registryURL.String(), tx)
	if err != nil {
		return false, err
	}

	tag := id.Tag
	if tag == "" {
		tag = defaultTag
	}
	if _, err := repository.Tags(ctx).Get(ctx, tag); err != nil {
		if _, ok := err.(distribution.ErrTagUnknown); ok {
			return false, errors.Errorf("tag %s not found in %s", tag, repo)
		}
		return false, errors.Wrapf(err, "fetching manifest for %s", id.WithoutDigest())
	}
	if p.Limiters != nil {
		p.Limiters.Recover(repo.Domain)
	}
	return true, nil
}

// store adapts a pre-selected credential to be an
// auth.CredentialStore.
type store struct {
	cred swarm.Credential
}

func (s *store) Basic(*url.URL) (string, string) {
	return s.cred.User, s.cred.Secret
}

func (s *store) RefreshToken(*url.URL, string) string {
	return ""
}

func (s *store) SetRefreshToken(*url.URL, string, string) {
}
