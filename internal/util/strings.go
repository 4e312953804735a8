package util

import "strings"

// TokenLogLength is how many leading characters of a token may appear in logs.
const TokenLogLength = 8

// SafeTruncate returns at most the first maxLen bytes of s. A negative maxLen
// returns "".
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// TokenPrefix returns the loggable prefix of a token.
func TokenPrefix(token string) string {
	return SafeTruncate(token, TokenLogLength)
}

// NormalizeURL drops trailing slashes so base URLs join cleanly with paths.
func NormalizeURL(url string) string {
	return strings.TrimRight(url, "/")
}
