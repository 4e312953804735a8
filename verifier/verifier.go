package verifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/tokengate/instrumentation"
	"github.com/giantswarm/tokengate/policy"
)

// DefaultSignatureTimeout bounds a single SignatureVerifier call.
const DefaultSignatureTimeout = 5 * time.Second

// SignatureVerifier confirms that signature is a valid signature of message
// under the key identified by keyID. A false result and a non-nil error both
// deny the token.
type SignatureVerifier interface {
	Verify(ctx context.Context, keyID string, message, signature []byte, algorithm string) (bool, error)
}

// Config configures a Verifier.
type Config struct {
	// Issuer is the expected iss claim (required).
	Issuer string

	// Audience is the expected aud claim (required). Only a scalar aud equal
	// to this value is accepted.
	Audience string

	// SignatureVerifier checks the token signature (required).
	SignatureVerifier SignatureVerifier

	// SignatureTimeout bounds the signature check.
	// Default: DefaultSignatureTimeout
	SignatureTimeout time.Duration

	// Now returns the current time. Default: time.Now
	Now func() time.Time

	// Logger for rejected tokens. Default: slog.Default()
	Logger *slog.Logger

	// Instrumentation records decisions and signature latency. Optional.
	Instrumentation *instrumentation.Instrumentation
}

// Validate checks the required fields.
func (c Config) Validate() error {
	if c.Issuer == "" {
		return errors.New("issuer is required")
	}
	if c.Audience == "" {
		return errors.New("audience is required")
	}
	if c.SignatureVerifier == nil {
		return ErrMissingSignatureVerifier
	}
	return nil
}

// Result is the outcome of verifying one token.
type Result struct {
	Decision  Decision
	Principal string

	// Code is empty on allow.
	Code Code

	// Claims is nil on deny.
	Claims *Claims
}

// Allowed reports whether the token was accepted.
func (r Result) Allowed() bool {
	return r.Decision == DecisionAllow
}

// Policy renders the result as an access decision for resource.
func (r Result) Policy(resource string) *policy.Response {
	if !r.Allowed() || r.Claims == nil {
		return policy.Deny(resource, string(r.Code))
	}
	return policy.Allow(r.Principal, resource, r.Claims.Raw)
}

func deny(code Code) Result {
	return Result{Decision: DecisionDeny, Principal: policy.DenyPrincipal, Code: code}
}

// Verifier runs the bearer token checks. It holds no mutable state and is safe
// for concurrent use.
type Verifier struct {
	issuer           string
	audience         string
	signatures       SignatureVerifier
	signatureTimeout time.Duration
	now              func() time.Time
	logger           *slog.Logger
	parser           *jwt.Parser
	tracer           trace.Tracer
	metrics          *instrumentation.Metrics
}

// New creates a Verifier.
func New(config Config) (*Verifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid verifier config: %w", err)
	}
	if config.SignatureTimeout <= 0 {
		config.SignatureTimeout = DefaultSignatureTimeout
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	inst := instrumentation.OrNoop(config.Instrumentation)

	return &Verifier{
		issuer:           config.Issuer,
		audience:         config.Audience,
		signatures:       config.SignatureVerifier,
		signatureTimeout: config.SignatureTimeout,
		now:              config.Now,
		logger:           config.Logger,
		parser:           jwt.NewParser(jwt.WithJSONNumber(), jwt.WithStrictDecoding()),
		tracer:           inst.Tracer("verifier"),
		metrics:          inst.Metrics(),
	}, nil
}

// Verify checks token and returns the decision. It never returns an allow
// unless the SignatureVerifier positively confirmed the signature.
func (v *Verifier) Verify(ctx context.Context, token string) Result {
	ctx, span := v.tracer.Start(ctx, "verifier.verify")
	defer span.End()

	result := v.verify(ctx, span, token)

	v.metrics.RecordVerifierDecision(ctx, string(result.Decision), string(result.Code))
	instrumentation.AddVerifierAttributes(span, string(result.Decision), string(result.Code))
	if result.Allowed() {
		instrumentation.SetSpanSuccess(span)
	} else {
		instrumentation.SetSpanError(span, string(result.Code))
	}
	return result
}

func (v *Verifier) verify(ctx context.Context, span trace.Span, token string) Result {
	if strings.Count(token, ".") != 2 {
		v.logger.Info("Wrong token format", "segments", strings.Count(token, ".")+1)
		return deny(CodeBadToken)
	}

	claims := jwt.MapClaims{}
	parsed, parts, err := v.parser.ParseUnverified(token, claims)
	// An unknown or missing alg is reported by the algorithm check below.
	if err != nil && !errors.Is(err, jwt.ErrTokenUnverifiable) {
		v.logger.Info("Wrong header or payload format", "error", err)
		return deny(CodeBadToken)
	}
	if parsed == nil || parsed.Header == nil {
		v.logger.Info("Wrong header or payload format", "error", "header is not a JSON object")
		return deny(CodeBadToken)
	}
	raw := map[string]any(claims)
	email, _ := stringClaim(raw, "email")
	now := float64(v.now().Unix())

	exp, _, ok := numericClaim(raw, "exp")
	if !ok || now > exp {
		v.logger.Info("Token expired", "email", email, "now", int64(now), "exp", raw["exp"])
		return deny(CodeExpiredToken)
	}
	if nbf, present, ok := numericClaim(raw, "nbf"); present && (!ok || now < nbf) {
		v.logger.Info("NBF time has not come", "email", email, "now", int64(now), "nbf", raw["nbf"])
		return deny(CodeNotBeforeToken)
	}
	iat, _, ok := numericClaim(raw, "iat")
	if !ok || now < iat {
		v.logger.Info("IAT must be before the current time", "email", email, "now", int64(now), "iat", raw["iat"])
		return deny(CodeIssuedAtToken)
	}

	if iss, ok := stringClaim(raw, "iss"); !ok || iss != v.issuer {
		v.logger.Info("Bad issuer", "email", email, "iss", raw["iss"])
		return deny(CodeBadIssuer)
	}
	if aud, ok := stringClaim(raw, "aud"); !ok || aud != v.audience {
		v.logger.Info("Bad audience", "email", email, "aud", raw["aud"])
		return deny(CodeBadAudience)
	}

	if alg, _ := parsed.Header["alg"].(string); alg != HeaderAlgorithm {
		v.logger.Info("Algorithm is not RS256", "email", email, "alg", parsed.Header["alg"])
		return deny(CodeBadAlgorithm)
	}
	kid, _ := parsed.Header["kid"].(string)
	if kid == "" {
		v.logger.Info("Key ID is not specified", "email", email)
		return deny(CodeNoKeyID)
	}
	instrumentation.AddKeyAttributes(span, kid, SigningAlgorithm)

	signature, err := v.parser.DecodeSegment(parts[2])
	if err != nil {
		v.logger.Info("Signature is not base64url", "email", email, "kid", kid)
		return deny(CodeInvalidSignature)
	}
	message := []byte(parts[0] + "." + parts[1])
	if !v.checkSignature(ctx, kid, message, signature) {
		v.logger.Info("Invalid signature", "email", email, "kid", kid)
		return deny(CodeInvalidSignature)
	}

	c := newClaims(raw)
	return Result{Decision: DecisionAllow, Principal: c.Subject, Claims: c}
}

type signatureOutcome struct {
	valid bool
	err   error
}

// checkSignature runs the delegated check under the signature timeout. A
// verifier that ignores its context is abandoned when the timeout fires.
func (v *Verifier) checkSignature(ctx context.Context, kid string, message, signature []byte) bool {
	ctx, cancel := context.WithTimeout(ctx, v.signatureTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan signatureOutcome, 1)
	go func() {
		valid, err := v.signatures.Verify(ctx, kid, message, signature, SigningAlgorithm)
		done <- signatureOutcome{valid: valid, err: err}
	}()

	var outcome signatureOutcome
	select {
	case outcome = <-done:
	case <-ctx.Done():
		outcome = signatureOutcome{err: ctx.Err()}
	}

	result := "valid"
	switch {
	case outcome.err != nil:
		result = "error"
		v.logger.Warn("Signature verification failed", "kid", kid, "error", outcome.err)
	case !outcome.valid:
		result = "invalid"
	}
	v.metrics.RecordSignatureVerify(ctx, result, float64(time.Since(start).Microseconds())/1000)

	return outcome.err == nil && outcome.valid
}
