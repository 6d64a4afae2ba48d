package http

import (
	"errors"

	fluxerr "github.com/fluxcd/shepherd/pkg/errors"
)

func MakeAPINotFound(path string) *fluxerr.Error {
	return fluxerr.MissingError(errors.New("API endpoint not found"), `The API endpoint requested is not supported by this server.
The endpoints are

    GET  /v1/ping
    GET  /v1/version
    GET  /v1/pass
    POST /v1/pass
    GET  /metrics

The path requested was

    `+path+`
`)
}
