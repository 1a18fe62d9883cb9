// Package errs defines the error kinds shared across the scheduling and
// execution engine, so callers can branch on failure category with
// errors.As instead of string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories the engine distinguishes.
type Kind string

const (
	CatalogFetchError    Kind = "catalog_fetch_error"
	RecommenderInfeasible Kind = "recommender_infeasible"
	PermissionError      Kind = "permission_error"
	EndpointError        Kind = "endpoint_error"
	NotFound             Kind = "not_found"
	DeploymentNotRunning Kind = "deployment_not_running"
	SubprocessNonzero    Kind = "subprocess_nonzero"
	ParseError           Kind = "parse_error"
	DeleteError          Kind = "delete_error"
	AlreadyExists        Kind = "already_exists"
)

// Error wraps an underlying cause with a Kind so callers can distinguish
// failure categories without parsing messages.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a Kind-tagged error with no underlying cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap returns a Kind-tagged error wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Is reports whether err is (or wraps) an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
