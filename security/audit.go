package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
	now     func() time.Time
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
		now:     time.Now,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	Subject   string
	ClientID  string
	RequestID string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with the subject hashed (nil-safe)
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = a.now()

	attrs := []any{
		"event_type", event.Type,
		"subject_hash", hashForLogging(event.Subject),
		"timestamp", event.Timestamp,
	}
	if event.ClientID != "" {
		attrs = append(attrs, "client_id", event.ClientID)
	}
	if event.RequestID != "" {
		attrs = append(attrs, "request_id", event.RequestID)
	}
	if len(event.Details) > 0 {
		attrs = append(attrs, "details", event.Details)
	}

	a.logger.Info("security_audit", attrs...)
}

// LogStateMismatch logs a redirect whose state did not match the stored value
func (a *Auditor) LogStateMismatch(clientID string) {
	a.LogEvent(Event{
		Type:     EventStateMismatch,
		ClientID: clientID,
	})
}

// LogTokenIssued logs a successful code exchange
func (a *Auditor) LogTokenIssued(clientID string, accessExpiry time.Time) {
	a.LogEvent(Event{
		Type:     EventTokenIssued,
		ClientID: clientID,
		Details: map[string]any{
			"access_token_exp": accessExpiry.Unix(),
		},
	})
}

// LogTokenRefreshed logs a refresh; adopted is true when the pair came from a sibling context
func (a *Auditor) LogTokenRefreshed(clientID string, adopted bool) {
	eventType := EventTokenRefreshed
	if adopted {
		eventType = EventTokenAdopted
	}
	a.LogEvent(Event{
		Type:     eventType,
		ClientID: clientID,
	})
}

// LogExchangeFailed logs a rejected exchange or refresh
func (a *Auditor) LogExchangeFailed(clientID, grantType string, status int) {
	a.LogEvent(Event{
		Type:     EventExchangeFailed,
		ClientID: clientID,
		Details: map[string]any{
			"grant_type": grantType,
			"status":     status,
		},
	})
}

// LogLoggedOut logs a local logout
func (a *Auditor) LogLoggedOut(clientID string, hadRefreshToken bool) {
	a.LogEvent(Event{
		Type:     EventLoggedOut,
		ClientID: clientID,
		Details: map[string]any{
			"revocation_requested": hadRefreshToken,
		},
	})
}

// LogAccessDecision logs the verifier outcome for a protected call
func (a *Auditor) LogAccessDecision(subject, requestID, resource, errorCode string) {
	event := Event{
		Type:      EventAccessGranted,
		Subject:   subject,
		RequestID: requestID,
		Details: map[string]any{
			"resource": resource,
		},
	}
	if errorCode != "" {
		event.Type = EventAccessDenied
		event.Details["error_code"] = errorCode
	}
	a.LogEvent(event)
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
