package security

import "time"

const (
	// DefaultExpiryMargin is the fixed clock-skew and latency margin applied to stored
	// tokens. A token with less remaining lifetime than this is treated as absent.
	DefaultExpiryMargin = 30 * time.Second
)

// HasRemainingLifetime reports whether expiresAt leaves at least margin of lifetime
// after now. The comparison is done in whole epoch seconds, which is the resolution
// tokens are persisted with. A zero expiresAt never has remaining lifetime.
func HasRemainingLifetime(expiresAt, now time.Time, margin time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return expiresAt.Unix()-now.Unix() >= int64(margin/time.Second)
}
