package tokengate

import (
	"fmt"
	"net/http"
)

// Error codes written by Handler.
const (
	ErrorCodeUnauthorized = "unauthorized"
)

// Error is an HTTP error answered by Handler.
type Error struct {
	Code        string // machine readable code, e.g. "unauthorized"
	Description string // message written to the response body
	Status      int    // HTTP status code
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewError creates a new Error
func NewError(code, description string, status int) *Error {
	return &Error{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

var (
	// ErrUnauthorized is answered when the Authorization header carries no bearer token
	ErrUnauthorized = func() *Error {
		return NewError(ErrorCodeUnauthorized, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
)
