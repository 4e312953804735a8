package verifier

import (
	"encoding/json"
	"math"
	"time"
)

// Claims is the typed view of a verified token payload.
type Claims struct {
	Issuer    string
	Audience  string
	Subject   string
	ExpiresAt time.Time

	// NotBefore is zero when the token carries no nbf claim.
	NotBefore time.Time
	IssuedAt  time.Time

	// Raw holds every payload field verbatim, including unrecognised ones.
	// Numbers are json.Number so they re-encode exactly as received.
	Raw map[string]any
}

// Email returns the email claim, or "" when the token has none.
func (c *Claims) Email() string {
	if c == nil {
		return ""
	}
	email, _ := c.Raw["email"].(string)
	return email
}

// numericClaim reads a NumericDate claim. present reports whether the claim
// key exists at all; ok reports whether its value is a number.
func numericClaim(raw map[string]any, name string) (value float64, present, ok bool) {
	v, present := raw[name]
	if !present || v == nil {
		return 0, false, false
	}
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, true, false
		}
		return f, true, true
	case float64:
		return n, true, true
	default:
		return 0, true, false
	}
}

func stringClaim(raw map[string]any, name string) (string, bool) {
	s, ok := raw[name].(string)
	return s, ok
}

func epochTime(seconds float64) time.Time {
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(frac*1e9))
}

func newClaims(raw map[string]any) *Claims {
	c := &Claims{Raw: raw}
	c.Issuer, _ = stringClaim(raw, "iss")
	c.Audience, _ = stringClaim(raw, "aud")
	c.Subject, _ = stringClaim(raw, "sub")
	if exp, _, ok := numericClaim(raw, "exp"); ok {
		c.ExpiresAt = epochTime(exp)
	}
	if nbf, _, ok := numericClaim(raw, "nbf"); ok {
		c.NotBefore = epochTime(nbf)
	}
	if iat, _, ok := numericClaim(raw, "iat"); ok {
		c.IssuedAt = epochTime(iat)
	}
	return c
}
