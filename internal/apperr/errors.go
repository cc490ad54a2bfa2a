// Package apperr defines the error taxonomy shared by the gateway and the
// tenancy service. Callers wrap a sentinel with context using fmt.Errorf and
// match it with errors.Is; the HTTP layer maps sentinels to status codes.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrAuthentication indicates a missing, malformed or untrusted credential.
	ErrAuthentication = errors.New("authentication failed")
	// ErrAuthorization indicates the caller is authenticated but not allowed.
	ErrAuthorization = errors.New("forbidden")
	// ErrValidation indicates a malformed body or an empty required field.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness race was lost; the whole request may be retried.
	ErrConflict = errors.New("conflict")
	// ErrUpstreamTimeout indicates an upstream call exceeded its deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrUpstream indicates a non-timeout transport failure talking to an upstream.
	ErrUpstream = errors.New("upstream error")
)

type mapping struct {
	err    error
	status int
	code   string
}

// ordered by specificity, first match wins
var mappings = []mapping{
	{ErrAuthentication, http.StatusUnauthorized, "unauthorized"},
	{ErrAuthorization, http.StatusForbidden, "forbidden"},
	{ErrValidation, http.StatusBadRequest, "validation_error"},
	{ErrNotFound, http.StatusNotFound, "not_found"},
	{ErrConflict, http.StatusConflict, "conflict"},
	{ErrUpstreamTimeout, http.StatusGatewayTimeout, "upstream timeout"},
	{ErrUpstream, http.StatusBadGateway, "upstream_error"},
}

// HTTPStatus returns the status code an error should be reported with.
// Unknown errors are internal errors.
func HTTPStatus(err error) int {
	for _, m := range mappings {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// Code returns the short machine readable error code for err.
func Code(err error) string {
	for _, m := range mappings {
		if errors.Is(err, m.err) {
			return m.code
		}
	}
	return "internal_error"
}

// IsInternal returns true if err does not belong to the taxonomy and its
// message must not be shown to callers.
func IsInternal(err error) bool {
	return HTTPStatus(err) == http.StatusInternalServerError
}

// FromStatus maps a status code reported by another service back to a sentinel.
// It returns nil for 2xx codes.
func FromStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return ErrAuthentication
	case status == http.StatusForbidden:
		return ErrAuthorization
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return ErrValidation
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrConflict
	case status == http.StatusGatewayTimeout:
		return ErrUpstreamTimeout
	default:
		return ErrUpstream
	}
}
