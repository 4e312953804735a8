// Package testutil provides testing utilities for tokengate: a mock time source,
// RSA key and JWT minting helpers, and a fake authorization server that speaks
// the token endpoint contract (POST exchange, PATCH refresh, DELETE revoke).
package testutil
