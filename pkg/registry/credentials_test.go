package registry

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/shepherd/pkg/swarm"
)

const registriesFile = "" +
	"# scope\thost\tuser\tsecret\n" +
	"ci\treg.example.com\tbot\ts3cret\n" +
	"\n" +
	"broken\treg.example.com\tbot\n" +
	"too\tmany\tfields\tin\tthis\n" +
	"hub\t\thubuser\tpass word\n" +
	"inline\treg.example.com\tbot\tpass#word\n" +
	"ghcr\tghcr.io\tme\ttoken\r\n"

func TestParseCredentialsFile(t *testing.T) {
	entries, err := ParseCredentialsFile(strings.NewReader(registriesFile))
	require.NoError(t, err)
	assert.Equal(t, []swarm.Credential{
		{Scope: "ci", Host: "reg.example.com", User: "bot", Secret: "s3cret"},
		{Scope: "hub", Host: "", User: "hubuser", Secret: "pass word"},
		{Scope: "ghcr", Host: "ghcr.io", User: "me", Secret: "token"},
	}, entries)
}

func TestParseCredentialsFileSpacesAreNotSeparators(t *testing.T) {
	entries, err := ParseCredentialsFile(strings.NewReader("ci reg.example.com bot s3cret\n"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadCredentialsFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "shepherd-creds")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	entries, err := LoadCredentialsFile(filepath.Join(dir, "absent"))
	assert.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = LoadCredentialsFile("")
	assert.NoError(t, err)
	assert.Empty(t, entries)

	path := filepath.Join(dir, "registries")
	require.NoError(t, ioutil.WriteFile(path, []byte(registriesFile), 0600))
	entries, err = LoadCredentialsFile(path)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestCredentialsAll(t *testing.T) {
	cs := Credentials{
		Primary: &swarm.Credential{Host: "reg.example.com", User: "admin", Secret: "pw"},
		Entries: []swarm.Credential{
			{Scope: "ci", Host: "reg.example.com", User: "bot", Secret: "s3cret"},
			{Scope: "ghcr", Host: "ghcr.io", User: "me", Secret: "token"},
		},
	}
	all := cs.All()
	require.Len(t, all, 3)
	assert.Equal(t, "admin", all[0].User)
	assert.Equal(t, []string{"reg.example.com", "ghcr.io"}, cs.Hosts())
	assert.Equal(t, "<registry creds for admin@reg.example.com, scope default>", credString(all[0]))

	assert.Empty(t, Credentials{}.All())
}
