package httperror

import (
	"fmt"
	"net/http"
)

// APIError is returned when an HTTP endpoint we post to (a
// notification sidecar, a webhook) answers with anything other than
// a 2xx. It is the base error, retrievable with errors.Cause(err).
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (err *APIError) Error() string {
	if err.Body == "" {
		return err.Status
	}
	return fmt.Sprintf("%s (%s)", err.Status, err.Body)
}

// Does this error mean the endpoint is down, or not there yet?
func (err *APIError) IsUnavailable() bool {
	switch err.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Is the URL wrong? Usually a misconfigured path on the sidecar.
func (err *APIError) IsMissing() bool {
	return err.StatusCode == http.StatusNotFound
}
