package daemon

import (
	"net/http"

	"github.com/gorilla/mux"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weaveworks/common/middleware"

	"github.com/fluxcd/shepherd/pkg/api"
	transport "github.com/fluxcd/shepherd/pkg/http"
	fluxmetrics "github.com/fluxcd/shepherd/pkg/metrics"
)

var (
	requestDuration = stdprometheus.NewHistogramVec(stdprometheus.HistogramOpts{
		Namespace: "shepherd",
		Name:      "request_duration_seconds",
		Help:      "Time (in seconds) spent serving HTTP requests.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{fluxmetrics.LabelMethod, fluxmetrics.LabelRoute, "status_code", "ws"})
)

func init() {
	stdprometheus.MustRegister(requestDuration)
}

// An API server for the daemon
func NewRouter() *mux.Router {
	r := transport.NewAPIRouter()

	r.NewRoute().Name("Metrics").Methods("GET").Path("/metrics").Handler(promhttp.Handler())
	// We assume every request that doesn't match a route is a client
	// calling an unsupported API.
	r.NewRoute().Name("NotFound").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transport.WriteError(w, r, http.StatusNotFound, transport.MakeAPINotFound(r.URL.Path))
	})

	return r
}

func NewHandler(s api.Server, r *mux.Router) http.Handler {
	handle := HTTPServer{s}

	r.Get(transport.Ping).HandlerFunc(handle.Ping)
	r.Get(transport.Version).HandlerFunc(handle.Version)
	r.Get(transport.LastPass).HandlerFunc(handle.LastPass)
	r.Get(transport.Trigger).HandlerFunc(handle.Trigger)

	return middleware.Instrument{
		RouteMatcher: r,
		Duration:     requestDuration,
	}.Wrap(r)
}

type HTTPServer struct {
	server api.Server
}

func (s HTTPServer) Ping(w http.ResponseWriter, r *http.Request) {
	if err := s.server.Ping(r.Context()); err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s HTTPServer) Version(w http.ResponseWriter, r *http.Request) {
	version, err := s.server.Version(r.Context())
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, version)
}

func (s HTTPServer) LastPass(w http.ResponseWriter, r *http.Request) {
	status, err := s.server.LastPass(r.Context())
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, status)
}

func (s HTTPServer) Trigger(w http.ResponseWriter, r *http.Request) {
	if err := s.server.Trigger(r.Context()); err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
