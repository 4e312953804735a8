package policy

// Effect is the outcome of an access decision.
type Effect string

const (
	EffectAllow Effect = "Allow"
	EffectDeny  Effect = "Deny"
)

const (
	// Version is the policy language version written into every document.
	Version = "2012-10-17"

	// ActionInvoke is the only action a decision grants or denies.
	ActionInvoke = "execute-api:Invoke"

	// DenyPrincipal is the principal reported for every denied request.
	DenyPrincipal = "nobody"

	// DenyStatusCode is the HTTP status carried in the deny context.
	DenyStatusCode = 403
)

// Context keys of a deny decision.
const (
	ContextStatusCode = "statusCode"
	ContextStatusText = "statusText"
)

// Response is the access decision returned to the enforcement layer.
type Response struct {
	PrincipalID    string         `json:"principalId"`
	PolicyDocument Document       `json:"policyDocument"`
	Context        map[string]any `json:"context,omitempty"`
}

// Document is a policy document with a single statement.
type Document struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// Statement grants or denies ActionInvoke on one resource.
type Statement struct {
	Action   string `json:"Action"`
	Effect   Effect `json:"Effect"`
	Resource string `json:"Resource"`
}

// Build assembles a response. A nil context is omitted from the JSON form.
func Build(principal string, effect Effect, resource string, context map[string]any) *Response {
	return &Response{
		PrincipalID: principal,
		PolicyDocument: Document{
			Version: Version,
			Statement: []Statement{{
				Action:   ActionInvoke,
				Effect:   effect,
				Resource: resource,
			}},
		},
		Context: context,
	}
}

// Allow grants principal access to resource and passes claims through as the context.
func Allow(principal, resource string, claims map[string]any) *Response {
	return Build(principal, EffectAllow, resource, claims)
}

// Deny refuses access to resource on behalf of DenyPrincipal. The context
// carries DenyStatusCode and the error code.
func Deny(resource, code string) *Response {
	return Build(DenyPrincipal, EffectDeny, resource, map[string]any{
		ContextStatusCode: DenyStatusCode,
		ContextStatusText: code,
	})
}

// Allowed reports whether the response grants access.
func (r *Response) Allowed() bool {
	if r == nil || len(r.PolicyDocument.Statement) == 0 {
		return false
	}
	for _, s := range r.PolicyDocument.Statement {
		if s.Effect != EffectAllow {
			return false
		}
	}
	return true
}

// StatusText returns the error code of a deny response, or "" for any other response.
func (r *Response) StatusText() string {
	if r == nil || r.Context == nil || r.Allowed() {
		return ""
	}
	text, _ := r.Context[ContextStatusText].(string)
	return text
}
