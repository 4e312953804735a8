package tokengate

// ErrorResponse is the body of a 401 or 500 answer.
type ErrorResponse struct {
	Message string `json:"message"`
}

// DenyResponse is the body of a 403 answer. It mirrors the context of a deny
// policy so clients can show the verifier code.
type DenyResponse struct {
	StatusCode int    `json:"statusCode"`
	StatusText string `json:"statusText"`
}
