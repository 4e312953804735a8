// Package util holds small helpers shared by the tokengate packages: log-safe
// truncation of token values and redirect URI checks.
package util
