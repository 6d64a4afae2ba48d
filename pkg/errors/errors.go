package errors

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Error classifies a failure by how far it is allowed to travel. The
// reconciler keeps per-service and best-effort failures inside the
// service that caused them; only fatal errors end a pass.
type Error struct {
	Type Type
	// a message that can be printed out for the operator
	Help string
	// the underlying error that can be e.g., logged
	Err error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

// MarshalJSON gives the shape the HTTP API sends errors in.
func (e *Error) MarshalJSON() ([]byte, error) {
	var errMsg string
	if e.Err != nil {
		errMsg = e.Err.Error()
	}
	return json.Marshal(&struct {
		Type string `json:"type"`
		Help string `json:"help,omitempty"`
		Err  string `json:"error,omitempty"`
	}{
		Type: string(e.Type),
		Help: e.Help,
		Err:  errMsg,
	})
}

// Cause lets github.com/pkg/errors unwrap to the underlying error.
func (e *Error) Cause() error {
	return e.Err
}

type Type string

const (
	// The control plane or a registry login is unusable; nothing in
	// this pass can succeed.
	Fatal Type = "fatal"
	// Something went wrong for one service; skip it until the next pass.
	Service Type = "service"
	// Cleanup, rollback or notification failed; log and move on.
	BestEffort Type = "best-effort"
	// The thing asked for does not exist (yet).
	Missing Type = "missing"
)

// Find returns the first *Error among err and the errors it wraps.
// errors.Cause cannot be used for this, since it looks through an
// *Error to whatever that wraps.
func Find(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		cause, ok := err.(interface{ Cause() error })
		if !ok {
			return nil, false
		}
		err = cause.Cause()
	}
	return nil, false
}

func is(err error, t Type) bool {
	e, ok := Find(err)
	return ok && e.Type == t
}

// IsFatal reports whether err, or any error it wraps, is Fatal.
func IsFatal(err error) bool {
	return is(err, Fatal)
}

func IsService(err error) bool {
	return is(err, Service)
}

func IsBestEffort(err error) bool {
	return is(err, BestEffort)
}

func IsMissing(err error) bool {
	return is(err, Missing)
}

// FatalError marks err as fatal to the whole pass.
func FatalError(err error, help string) *Error {
	return &Error{Type: Fatal, Help: help, Err: err}
}

// ServiceError marks err as confined to a single service.
func ServiceError(err error) *Error {
	return &Error{Type: Service, Err: err}
}

// BestEffortError marks err as not worth escalating.
func BestEffortError(err error) *Error {
	return &Error{Type: BestEffort, Err: err}
}

// MissingError marks a request for something that is not there.
func MissingError(err error, help string) *Error {
	return &Error{Type: Missing, Help: help, Err: err}
}

// Wrap annotates err while keeping its classification reachable.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}
