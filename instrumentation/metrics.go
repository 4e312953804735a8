package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments of the client and the verifier
type Metrics struct {
	// Client flow metrics
	FlowStarted      metric.Int64Counter
	StateMismatch    metric.Int64Counter
	CodeExchanged    metric.Int64Counter
	TokenRefreshed   metric.Int64Counter
	TokenRevoked     metric.Int64Counter
	ExchangeFailures metric.Int64Counter

	// Verifier metrics
	VerifierDecisions       metric.Int64Counter
	SignatureVerifyDuration metric.Float64Histogram

	// Storage metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram

	// Audit metrics
	AuditEventsTotal metric.Int64Counter
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	clientMeter := inst.Meter("client")
	verifierMeter := inst.Meter("verifier")
	storageMeter := inst.Meter("storage")
	securityMeter := inst.Meter("security")

	var err error
	m.FlowStarted, err = clientMeter.Int64Counter(
		"tokengate.flow.started",
		metric.WithDescription("Number of authorization flows started"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow.started counter: %w", err)
	}

	m.StateMismatch, err = clientMeter.Int64Counter(
		"tokengate.flow.state_mismatch",
		metric.WithDescription("Number of redirects rejected for a wrong state parameter"),
		metric.WithUnit("{redirect}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow.state_mismatch counter: %w", err)
	}

	m.CodeExchanged, err = clientMeter.Int64Counter(
		"tokengate.code.exchanged",
		metric.WithDescription("Number of authorization codes exchanged for tokens"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create code.exchanged counter: %w", err)
	}

	m.TokenRefreshed, err = clientMeter.Int64Counter(
		"tokengate.token.refreshed",
		metric.WithDescription("Number of token pairs refreshed"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.refreshed counter: %w", err)
	}

	m.TokenRevoked, err = clientMeter.Int64Counter(
		"tokengate.token.revoked",
		metric.WithDescription("Number of refresh token revocation requests"),
		metric.WithUnit("{revocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.revoked counter: %w", err)
	}

	m.ExchangeFailures, err = clientMeter.Int64Counter(
		"tokengate.exchange.failures",
		metric.WithDescription("Number of failed token endpoint and API calls"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange.failures counter: %w", err)
	}

	m.VerifierDecisions, err = verifierMeter.Int64Counter(
		"tokengate.verifier.decisions",
		metric.WithDescription("Number of bearer token access decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verifier.decisions counter: %w", err)
	}

	m.SignatureVerifyDuration, err = verifierMeter.Float64Histogram(
		"tokengate.signature.verify.duration",
		metric.WithDescription("Signature verification duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create signature.verify.duration histogram: %w", err)
	}

	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"tokengate.storage.operations.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operations.total counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"tokengate.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.AuditEventsTotal, err = securityMeter.Int64Counter(
		"tokengate.audit.events.total",
		metric.WithDescription("Total number of security audit events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events.total counter: %w", err)
	}

	return m, nil
}

// RecordFlowStarted records the start of an authorization flow
func (m *Metrics) RecordFlowStarted(ctx context.Context, clientID string, reusedSecrets bool) {
	m.FlowStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("reused_secrets", reusedSecrets),
	))
}

// RecordStateMismatch records a redirect rejected by state validation
func (m *Metrics) RecordStateMismatch(ctx context.Context, clientID string) {
	m.StateMismatch.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordCodeExchange records a successful code exchange
func (m *Metrics) RecordCodeExchange(ctx context.Context, clientID string) {
	m.CodeExchanged.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("pkce_method", "S256"),
	))
}

// RecordTokenRefresh records a successful refresh. adopted is true when the pair
// rotated by a sibling process was taken over instead of the local result.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, clientID string, adopted bool) {
	m.TokenRefreshed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("adopted", adopted),
	))
}

// RecordTokenRevocation records a revocation request and whether it succeeded
func (m *Metrics) RecordTokenRevocation(ctx context.Context, clientID string, ok bool) {
	m.TokenRevoked.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("ok", ok),
	))
}

// RecordExchangeFailure records a failed call, classified by status code
func (m *Metrics) RecordExchangeFailure(ctx context.Context, operation string, statusCode int) {
	m.ExchangeFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("error_type", StatusClass(statusCode)),
	))
}

// RecordVerifierDecision records an access decision. code is empty on allow.
func (m *Metrics) RecordVerifierDecision(ctx context.Context, decision, code string) {
	attrs := []attribute.KeyValue{attribute.String("decision", decision)}
	if code != "" {
		attrs = append(attrs, attribute.String("code", code))
	}
	m.VerifierDecisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSignatureVerify records the latency of one signature verification
func (m *Metrics) RecordSignatureVerify(ctx context.Context, result string, durationMs float64) {
	m.SignatureVerifyDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("result", result),
	))
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, backend, operation, result string, durationMs float64) {
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
	))
}

// RecordAuditEvent records an audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// StatusClass maps an HTTP status to the error_type attribute value.
// A zero status means the request never got a response.
func StatusClass(statusCode int) string {
	switch {
	case statusCode == 0:
		return "network_error"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "unknown"
	}
}
