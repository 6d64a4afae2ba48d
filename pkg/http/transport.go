package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	fluxerr "github.com/fluxcd/shepherd/pkg/errors"
)

func NewAPIRouter() *mux.Router {
	r := mux.NewRouter()

	r.NewRoute().Name(Ping).Methods("GET").Path("/v1/ping")
	r.NewRoute().Name(Version).Methods("GET").Path("/v1/version")
	r.NewRoute().Name(LastPass).Methods("GET").Path("/v1/pass")
	r.NewRoute().Name(Trigger).Methods("POST").Path("/v1/pass")

	return r
}

func WriteError(w http.ResponseWriter, r *http.Request, code int, err error) {
	// Clients asking for JSON get the classified error; anyone else,
	// e.g., curl with no Accept header, gets the help text.
	if len(r.Header.Get("Accept")) > 0 {
		switch negotiateContentType(r, []string{"application/json", "text/plain"}) {
		case "application/json":
			body, encodeErr := json.Marshal(err)
			if encodeErr != nil {
				w.Header().Set(http.CanonicalHeaderKey("Content-Type"), "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprintf(w, "Error encoding error response: %s\n\nOriginal error: %s", encodeErr.Error(), err.Error())
				return
			}
			w.Header().Set(http.CanonicalHeaderKey("Content-Type"), "application/json; charset=utf-8")
			w.WriteHeader(code)
			w.Write(body)
			return
		}
	}
	w.Header().Set(http.CanonicalHeaderKey("Content-Type"), "text/plain; charset=utf-8")
	w.WriteHeader(code)
	if ferr, ok := err.(*fluxerr.Error); ok && ferr.Help != "" {
		fmt.Fprint(w, ferr.Help)
		return
	}
	fmt.Fprint(w, err.Error())
}

func JSONResponse(w http.ResponseWriter, r *http.Request, result interface{}) {
	body, err := json.Marshal(result)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// ErrorResponse picks a status code by the classification of err.
func ErrorResponse(w http.ResponseWriter, r *http.Request, apiError error) {
	var code int
	outErr, ok := fluxerr.Find(apiError)
	if !ok {
		outErr = &fluxerr.Error{Type: fluxerr.Service, Err: apiError}
	}
	switch outErr.Type {
	case fluxerr.Missing:
		code = http.StatusNotFound
	case fluxerr.Fatal:
		code = http.StatusServiceUnavailable
	default:
		code = http.StatusInternalServerError
	}
	WriteError(w, r, code, outErr)
}
