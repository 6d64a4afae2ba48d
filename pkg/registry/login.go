package registry

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	fluxerr "github.com/fluxcd/shepherd/pkg/errors"
	"github.com/fluxcd/shepherd/pkg/swarm"
)

// Session is something that can hold a registry login.
type Session interface {
	Login(ctx context.Context, cred swarm.Credential) error
}

// Authenticator establishes the configured logins. Entries from the
// registries file are re-read on every call, so edits are picked up
// by the next pass.
type Authenticator struct {
	Session Session
	Primary *swarm.Credential
	// File is the path of the registries file; may be empty.
	File   string
	Logger log.Logger
}

// Credentials returns the primary credential and the current content
// of the registries file.
func (a *Authenticator) Credentials() (Credentials, error) {
	entries, err := LoadCredentialsFile(a.File)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Primary: a.Primary, Entries: entries}, nil
}

// Login logs in with every credential, sequentially. The first
// failure stops it; a pass cannot proceed with a missing session.
func (a *Authenticator) Login(ctx context.Context) error {
	creds, err := a.Credentials()
	if err != nil {
		return fluxerr.FatalError(err, "the registries file could not be read")
	}
	for _, cred := range creds.All() {
		if err := a.Session.Login(ctx, cred); err != nil {
			return fluxerr.FatalError(errors.Wrap(err, credString(cred)),
				"a registry login failed; check the registry credentials")
		}
		if a.Logger != nil {
			a.Logger.Log("login", credString(cred))
		}
	}
	return nil
}
