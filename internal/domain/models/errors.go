package models

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a request failure that maps to a specific HTTP status code.
// The message is the exact reason string returned to the client.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// BadRequest creates an APIError carrying HTTP 400.
func BadRequest(format string, args ...any) *APIError {
	return &APIError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Forbidden creates an APIError carrying HTTP 403.
func Forbidden(format string, args ...any) *APIError {
	return &APIError{Status: http.StatusForbidden, Message: fmt.Sprintf(format, args...)}
}

// AsAPIError extracts an APIError from err's chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// Engine-level errors surfaced by engine implementations.
var (
	ErrEngineUnavailable = errors.New("generation backend is unavailable")
)
