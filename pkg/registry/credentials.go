package registry

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/fluxcd/shepherd/pkg/swarm"
)

// Credentials are the registry logins to establish before a pass.
type Credentials struct {
	// Primary is the optional single login given directly in
	// configuration; it uses the default docker config.
	Primary *swarm.Credential
	// Entries come from the registries file.
	Entries []swarm.Credential
}

// All returns the primary credential (if any) followed by the
// entries, in file order.
func (cs Credentials) All() []swarm.Credential {
	var all []swarm.Credential
	if cs.Primary != nil {
		all = append(all, *cs.Primary)
	}
	return append(all, cs.Entries...)
}

// Hosts lists the distinct hosts credentials are held for.
func (cs Credentials) Hosts() []string {
	var hosts []string
	seen := map[string]bool{}
	for _, c := range cs.All() {
		if !seen[c.Host] {
			seen[c.Host] = true
			hosts = append(hosts, c.Host)
		}
	}
	return hosts
}

func credString(c swarm.Credential) string {
	scope := c.Scope
	if scope == "" {
		scope = "default"
	}
	return fmt.Sprintf("<registry creds for %s@%s, scope %s>", c.User, c.Host, scope)
}

// ParseCredentialsFile reads tab-separated lines of
//
//	scope<TAB>host<TAB>user<TAB>secret
//
// Lines containing a '#' anywhere, and lines without exactly four
// fields, are skipped.
func ParseCredentialsFile(r io.Reader) ([]swarm.Credential, error) {
	var entries []swarm.Credential
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.Contains(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			continue
		}
		entries = append(entries, swarm.Credential{
			Scope:  fields[0],
			Host:   fields[1],
			User:   fields[2],
			Secret: fields[3],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading registries file")
	}
	return entries, nil
}

// LoadCredentialsFile reads the registries file at path. A missing
// file means there are no entries.
func LoadCredentialsFile(path string) ([]swarm.Credential, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening registries file %s", path)
	}
	defer f.Close()
	return ParseCredentialsFile(f)
}
