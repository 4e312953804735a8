// Package instrumentation provides OpenTelemetry (OTEL) instrumentation for tokengate.
//
// The client flow, the bearer token verifier, signature verification and the storage
// backends all record spans and metrics through one Instrumentation value:
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "sample-api",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//		OTLPEndpoint:   "http://localhost:4318",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
// When Enabled is false, or when no endpoint or provider is configured, no-op
// providers are used and instrumentation has no overhead. Components accept a nil
// *Instrumentation and fall back to Noop().
//
// # Available Metrics
//
// Client:
//   - tokengate.flow.started{client_id, reused_secrets} - Authorization flows started
//   - tokengate.flow.state_mismatch{client_id} - Redirects rejected by state validation
//   - tokengate.code.exchanged{client_id, pkce_method} - Authorization codes exchanged
//   - tokengate.token.refreshed{client_id, adopted} - Token pairs refreshed
//   - tokengate.token.revoked{client_id, ok} - Revocation requests
//   - tokengate.exchange.failures{operation, error_type} - Failed token endpoint and API calls
//
// Verifier:
//   - tokengate.verifier.decisions{decision, code} - Access decisions by taxonomy code
//   - tokengate.signature.verify.duration{result} - Signature verification latency in ms
//
// Storage:
//   - tokengate.storage.operations.total{backend, operation, result}
//   - tokengate.storage.operation.duration{backend, operation}
//
// Security:
//   - tokengate.audit.events.total{event_type}
//
// # Security Considerations
//
// Never record token values, authorization codes, PKCE verifiers or state values.
// Only metadata (expiries, decision codes, results) belongs in traces and metrics.
//
// # Thread Safety
//
// All instrumentation operations can be called concurrently from multiple goroutines.
package instrumentation
