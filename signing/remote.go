package signing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/giantswarm/tokengate/instrumentation"
	"github.com/giantswarm/tokengate/verifier"
)

const (
	// DefaultRequestsPerSecond is the default client-side limit on verify calls.
	DefaultRequestsPerSecond = 50

	// DefaultBurst is the default burst allowed above the steady rate.
	DefaultBurst = 100

	// DefaultRemoteTimeout bounds a verify call when the HTTP client has none.
	DefaultRemoteTimeout = 3 * time.Second

	// messageTypeRaw marks the message as the signed bytes rather than a digest.
	messageTypeRaw = "RAW"

	// amzTarget selects the Verify operation on KMS-compatible endpoints.
	amzTarget = "TrentService.Verify"

	// invalidSignatureType is the error type a KMS endpoint returns for a
	// signature that does not verify.
	invalidSignatureType = "KMSInvalidSignatureException"

	maxResponseSize = 64 << 10
)

// ErrRateLimited is returned when the limiter cannot admit the call before the
// context is done.
var ErrRateLimited = errors.New("signature verification rate limited")

// RemoteConfig configures a RemoteService.
type RemoteConfig struct {
	// Endpoint is the URL verify requests are POSTed to (required).
	Endpoint string

	// HTTPClient sends the requests.
	// Default: an http.Client with DefaultRemoteTimeout
	HTTPClient *http.Client

	// RequestsPerSecond limits verify calls. Default: DefaultRequestsPerSecond
	RequestsPerSecond float64

	// Burst allows short bursts above the steady rate. Default: DefaultBurst
	Burst int

	// Logger for failed calls. Default: slog.Default()
	Logger *slog.Logger

	// Instrumentation records a span per call. Optional.
	Instrumentation *instrumentation.Instrumentation
}

// verifyRequest is the KMS Verify request body. []byte fields encode as
// standard base64, as KMS expects.
type verifyRequest struct {
	KeyID            string `json:"KeyId"`
	Message          []byte `json:"Message"`
	Signature        []byte `json:"Signature"`
	SigningAlgorithm string `json:"SigningAlgorithm"`
	MessageType      string `json:"MessageType"`
}

type verifyResponse struct {
	KeyID            string `json:"KeyId"`
	SignatureValid   bool   `json:"SignatureValid"`
	SigningAlgorithm string `json:"SigningAlgorithm"`
}

type errorResponse struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

// RemoteService verifies signatures with a remote key management service.
type RemoteService struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
	tracer   trace.Tracer
}

var _ verifier.SignatureVerifier = (*RemoteService)(nil)

// NewRemoteService creates a RemoteService.
func NewRemoteService(config RemoteConfig) (*RemoteService, error) {
	if config.Endpoint == "" {
		return nil, errors.New("signing service endpoint is required")
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: DefaultRemoteTimeout}
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = DefaultBurst
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &RemoteService{
		endpoint: config.Endpoint,
		client:   config.HTTPClient,
		limiter:  rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		logger:   config.Logger,
		tracer:   instrumentation.OrNoop(config.Instrumentation).Tracer("signing"),
	}, nil
}

// Verify implements verifier.SignatureVerifier. The service reporting an
// invalid signature returns false with a nil error; every other failure
// returns an error.
func (s *RemoteService) Verify(ctx context.Context, keyID string, message, signature []byte, algorithm string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "signing.remote_verify")
	defer span.End()
	instrumentation.AddKeyAttributes(span, keyID, algorithm)

	valid, err := s.verify(ctx, keyID, message, signature, algorithm)
	if err != nil {
		instrumentation.RecordError(span, err)
		return false, err
	}
	span.SetAttributes(attribute.Bool("signing.signature_valid", valid))
	instrumentation.SetSpanSuccess(span)
	return valid, nil
}

func (s *RemoteService) verify(ctx context.Context, keyID string, message, signature []byte, algorithm string) (bool, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	body, err := json.Marshal(verifyRequest{
		KeyID:            keyID,
		Message:          message,
		Signature:        signature,
		SigningAlgorithm: algorithm,
		MessageType:      messageTypeRaw,
	})
	if err != nil {
		return false, fmt.Errorf("failed to encode verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", amzTarget)

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("verify request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return false, fmt.Errorf("failed to read verify response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if json.Unmarshal(data, &apiErr) == nil && strings.HasSuffix(apiErr.Type, invalidSignatureType) {
			return false, nil
		}
		s.logger.Warn("Signing service rejected verify request",
			"status", resp.StatusCode,
			"key_id", keyID,
			"error_type", apiErr.Type)
		return false, fmt.Errorf("signing service returned status %d", resp.StatusCode)
	}

	var out verifyResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return false, fmt.Errorf("failed to decode verify response: %w", err)
	}
	if out.KeyID != "" && out.KeyID != keyID && !strings.HasSuffix(out.KeyID, "/"+keyID) {
		return false, fmt.Errorf("signing service answered for key %q", out.KeyID)
	}
	return out.SignatureValid, nil
}
