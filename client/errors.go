package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/giantswarm/tokengate/pkce"
)

// User-visible messages.
const (
	MessageStateMismatch = "Wrong State parameter. Please try again."
	MessageGeneric       = "Something went wrong"
	MessageServerError   = "Internal Server Error"
	MessageNetwork       = "Could not get API data"
	MessageEnvironment   = "This environment does not provide secure randomness"
)

var (
	// ErrMalformedRedirect is returned when the redirect query cannot be parsed.
	// The flow cannot continue.
	ErrMalformedRedirect = errors.New("malformed redirect")

	// ErrStateMismatch is returned when the redirect state does not match the
	// stored one. The secrets have been cleared; the caller restarts the flow.
	ErrStateMismatch = errors.New("state mismatch")

	// ErrNotAuthenticated is returned by Token when no usable token is held.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrInvalidTokenResponse is returned when a successful token endpoint
	// response lacks a token or an expiry.
	ErrInvalidTokenResponse = errors.New("token response is missing tokens or expiries")

	// ErrEnvironmentUnsupported is returned when secrets cannot be generated.
	ErrEnvironmentUnsupported = pkce.ErrEnvironmentUnsupported
)

// Kind classifies a client failure.
type Kind int

const (
	KindMalformedRedirect Kind = iota + 1
	KindStateMismatch
	KindExchange
	KindNetwork
	KindEnvironment
)

func (k Kind) String() string {
	switch k {
	case KindMalformedRedirect:
		return "malformed_redirect"
	case KindStateMismatch:
		return "state_mismatch"
	case KindExchange:
		return "exchange"
	case KindNetwork:
		return "network"
	case KindEnvironment:
		return "environment"
	default:
		return "unknown"
	}
}

// Error is a classified client failure. Message is safe to show to the user.
type Error struct {
	Kind Kind

	// Status is the HTTP status of a KindExchange failure, 0 otherwise.
	Status int

	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s (status %d): %s: %v", e.Kind, e.Status, e.Message, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ServerError reports whether the failure was a 5xx answer.
func (e *Error) ServerError() bool {
	return e.Kind == KindExchange && e.Status >= 500
}

// errorBody is the error shape of the token endpoint and protected APIs.
type errorBody struct {
	ErrorDescription string `json:"error_description"`
	StatusText       string `json:"statusText"`
}

// classifyStatus turns a non-2xx answer into an Error. 4xx answers carry the
// server's message, 5xx answers a generic one.
func classifyStatus(status int, body []byte) *Error {
	e := &Error{Kind: KindExchange, Status: status, Message: MessageGeneric}
	if status >= http.StatusInternalServerError && status <= 599 {
		e.Message = MessageServerError
		return e
	}
	if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil {
			switch {
			case eb.ErrorDescription != "":
				e.Message = eb.ErrorDescription
			case eb.StatusText != "":
				e.Message = eb.StatusText
			}
		}
	}
	return e
}

func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Message: MessageNetwork, Err: err}
}

func environmentError(err error) *Error {
	return &Error{Kind: KindEnvironment, Message: MessageEnvironment, Err: err}
}

// statusOf returns the HTTP status carried by err, 0 if none.
func statusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// messageOf returns the user-visible message for err.
func messageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return MessageGeneric
}
