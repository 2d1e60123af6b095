package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// GenericErrorMessage is shown when the backend failed without a detail.
const GenericErrorMessage = "Request failed. Please try again."

// TransportErrorMessage is shown when the backend could not be reached.
const TransportErrorMessage = "Could not reach the analysis service."

// ErrNotFound matches an APIError carrying HTTP 404.
var ErrNotFound = errors.New("backend: not found")

// APIError is a non-2xx response from the backend.
type APIError struct {
	Op         string
	StatusCode int
	Detail     string // empty when the body carried no string "detail"
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend: %s: status %d: %s", e.Op, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("backend: %s: status %d", e.Op, e.StatusCode)
}

// Is allows errors.Is(err, ErrNotFound).
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// TransportError means the request never produced an HTTP response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("backend: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrorMessage converts any error returned by a Client into the text shown
// to the user in place of a pending result.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Detail != "" {
			return apiErr.Detail
		}
		return GenericErrorMessage
	}
	var tErr *TransportError
	if errors.As(err, &tErr) {
		return TransportErrorMessage
	}
	return GenericErrorMessage
}
