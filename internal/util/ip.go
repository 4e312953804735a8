package util

import (
	"net"
	"net/url"
)

// IsLoopbackHostname reports whether hostname (without port) is "localhost" or
// a loopback IP, including the whole 127.0.0.0/8 range and ::1. 0.0.0.0 is not
// loopback.
func IsLoopbackHostname(hostname string) bool {
	if hostname == "localhost" {
		return true
	}
	if n := len(hostname); n > 2 && hostname[0] == '[' && hostname[n-1] == ']' {
		hostname = hostname[1 : n-1]
	}
	ip := net.ParseIP(hostname)
	return ip != nil && ip.IsLoopback()
}

// IsSecureRedirect reports whether u may receive an authorization response:
// https anywhere, or http on a loopback host for native and command line
// clients (RFC 8252 section 7.3).
func IsSecureRedirect(u *url.URL) bool {
	switch u.Scheme {
	case "https":
		return u.Host != ""
	case "http":
		return IsLoopbackHostname(u.Hostname())
	default:
		return false
	}
}
