package instrumentation

import (
	"context"
	"testing"
)

func TestMetrics_RecordClientFlow(t *testing.T) {
	ctx := context.Background()
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	metrics := inst.Metrics()

	metrics.RecordFlowStarted(ctx, "test-client", false)
	metrics.RecordFlowStarted(ctx, "test-client", true)
	metrics.RecordStateMismatch(ctx, "test-client")
	metrics.RecordCodeExchange(ctx, "test-client")
	metrics.RecordTokenRefresh(ctx, "test-client", false)
	metrics.RecordTokenRefresh(ctx, "test-client", true)
	metrics.RecordTokenRevocation(ctx, "test-client", true)
	metrics.RecordTokenRevocation(ctx, "test-client", false)

	// All should complete without panic
}

func TestMetrics_RecordExchangeFailure(t *testing.T) {
	ctx := context.Background()
	metrics := Noop().Metrics()

	tests := []struct {
		name       string
		operation  string
		statusCode int
	}{
		{"network", "exchange", 0},
		{"client error", "exchange", 400},
		{"server error", "refresh", 503},
		{"api forbidden", "api", 403},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Should not panic
			metrics.RecordExchangeFailure(ctx, tt.operation, tt.statusCode)
		})
	}
}

func TestMetrics_RecordVerifier(t *testing.T) {
	ctx := context.Background()
	metrics := Noop().Metrics()

	metrics.RecordVerifierDecision(ctx, "Allow", "")
	metrics.RecordVerifierDecision(ctx, "Deny", "EXPIRED_TOKEN")
	metrics.RecordSignatureVerify(ctx, "valid", 1.5)
	metrics.RecordSignatureVerify(ctx, "error", 20)
	metrics.RecordStorageOperation(ctx, "memory", "get", "success", 0.1)
	metrics.RecordAuditEvent(ctx, "access_denied")
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{0, "network_error"},
		{200, "unknown"},
		{302, "unknown"},
		{400, "client_error"},
		{499, "client_error"},
		{500, "server_error"},
		{504, "server_error"},
	}

	for _, tt := range tests {
		if got := StatusClass(tt.status); got != tt.want {
			t.Errorf("StatusClass(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}
