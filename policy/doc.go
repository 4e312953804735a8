// Package policy renders access decisions in the shape an API gateway
// authorizer returns: a principal, a single-statement policy document and an
// optional context map.
//
// The deny context is bound by key name in gateway response templates, so its
// field names (statusCode, statusText) never change.
package policy
