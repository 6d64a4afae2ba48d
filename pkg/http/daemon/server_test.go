package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/shepherd/pkg/api"
	fluxerr "github.com/fluxcd/shepherd/pkg/errors"
	transport "github.com/fluxcd/shepherd/pkg/http"
)

type fakeServer struct {
	pingErr   error
	last      *api.PassStatus
	triggered int
}

func (s *fakeServer) Ping(context.Context) error { return s.pingErr }

func (s *fakeServer) Version(context.Context) (string, error) { return "1.2.3", nil }

func (s *fakeServer) LastPass(context.Context) (api.PassStatus, error) {
	if s.last == nil {
		return api.PassStatus{}, fluxerr.MissingError(errors.New("no pass has finished yet"), "")
	}
	return *s.last, nil
}

func (s *fakeServer) Trigger(context.Context) error {
	s.triggered++
	return nil
}

func serve(s api.Server) *httptest.Server {
	return httptest.NewServer(NewHandler(s, NewRouter()))
}

func TestRouterImplementsServer(t *testing.T) {
	router := NewRouter()
	// Calling NewHandler attaches handlers to the router
	NewHandler(nil, router)
	assert.NoError(t, transport.ImplementsServer(router))
}

func TestPingAndVersion(t *testing.T) {
	s := &fakeServer{}
	ts := serve(s)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/ping")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/v1/version")
	require.NoError(t, err)
	var version string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&version))
	resp.Body.Close()
	assert.Equal(t, "1.2.3", version)

	s.pingErr = fluxerr.FatalError(errors.New("docker is not running"), "is the socket mounted?")
	resp, err = http.Get(ts.URL + "/v1/ping")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestLastPass(t *testing.T) {
	s := &fakeServer{}
	ts := serve(s)
	defer ts.Close()

	req, _ := http.NewRequest("GET", ts.URL+"/v1/pass", nil)
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var apiErr map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "missing", apiErr["type"])

	s.last = &api.PassStatus{
		ID:       "a5b2",
		Started:  time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC),
		Finished: time.Date(2020, 6, 1, 12, 1, 0, 0, time.UTC),
		Services: []api.ServiceStatus{{Service: "web", Outcome: "updated", From: "nginx:1.18", To: "nginx:1.19"}},
	}
	resp, err = http.Get(ts.URL + "/v1/pass")
	require.NoError(t, err)
	var got api.PassStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	resp.Body.Close()
	assert.Equal(t, "a5b2", got.ID)
	assert.Equal(t, s.last.Services, got.Services)
}

func TestTriggerAndNotFound(t *testing.T) {
	s := &fakeServer{}
	ts := serve(s)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/pass", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, s.triggered)

	resp, err = http.Get(ts.URL + "/v2/services")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := serve(&fakeServer{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
