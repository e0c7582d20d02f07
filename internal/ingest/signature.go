package ingest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"leadflow/internal/observability"

	"go.uber.org/zap"
)

const SignaturePrefix = "sha256="

var (
	ErrMissingSignature    = errors.New("missing webhook signature")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrSecretNotConfigured = errors.New("webhook secret not configured")
)

// SignatureVerifier checks HMAC-SHA256 signatures over raw webhook bodies.
type SignatureVerifier struct {
	logger *zap.Logger
}

func NewSignatureVerifier(logger *zap.Logger) *SignatureVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignatureVerifier{logger: logger.Named("signature")}
}

// Verify reports whether signatureHeader carries HMAC-SHA256(secret, rawBody).
// It never panics; any malformed input yields false.
func (v *SignatureVerifier) Verify(rawBody []byte, signatureHeader string, secret []byte) bool {
	return v.check(v.log(), rawBody, signatureHeader, secret) == nil
}

// Authenticate verifies env against secret and, on a match, returns the only
// value a dispatcher will accept. Rejections are logged with the
// request-scoped fields of ctx.
func (v *SignatureVerifier) Authenticate(ctx context.Context, env WebhookEnvelope, secret []byte) (VerifiedEnvelope, error) {
	if env.provider == "" {
		return VerifiedEnvelope{}, ErrInvalidSignature
	}
	logger := observability.Logger(ctx, v.log()).With(
		zap.String("provider", env.provider),
		zap.String("event_type", env.eventType),
		zap.String("delivery_id", env.deliveryID),
	)
	if err := v.check(logger, env.rawBody, env.signatureHeader, secret); err != nil {
		return VerifiedEnvelope{}, err
	}
	return VerifiedEnvelope{env: env}, nil
}

func (v *SignatureVerifier) check(logger *zap.Logger, rawBody []byte, signatureHeader string, secret []byte) error {
	if len(secret) == 0 {
		logger.Error("Webhook secret not configured; rejecting payload")
		return ErrSecretNotConfigured
	}
	header := strings.TrimSpace(signatureHeader)
	if header == "" {
		logger.Warn("Missing webhook signature", zap.Int("body_bytes", len(rawBody)))
		return ErrMissingSignature
	}
	provided, ok := decodeSignature(header)
	expected := Sign(secret, rawBody)
	// The digest comparison runs for malformed headers too.
	if !hmac.Equal(expected, provided) || !ok {
		logger.Warn("Invalid webhook signature",
			zap.Int("body_bytes", len(rawBody)),
			zap.String("signature_scheme", signatureScheme(header)),
			zap.Int("signature_length", len(header)),
		)
		return ErrInvalidSignature
	}
	return nil
}

func (v *SignatureVerifier) log() *zap.Logger {
	if v == nil || v.logger == nil {
		return zap.NewNop()
	}
	return v.logger
}

// Sign returns the raw HMAC-SHA256 digest of body.
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

// SignatureHeaderValue formats a digest the way senders put it on the wire.
func SignatureHeaderValue(secret, body []byte) string {
	return SignaturePrefix + hex.EncodeToString(Sign(secret, body))
}

func decodeSignature(header string) ([]byte, bool) {
	parts := strings.SplitN(header, "=", 2)
	if len(parts) != 2 || !strings.EqualFold(strings.TrimSpace(parts[0]), "sha256") {
		return nil, false
	}
	provided, err := hex.DecodeString(strings.TrimSpace(parts[1]))
	if err != nil || len(provided) != sha256.Size {
		return nil, false
	}
	return provided, true
}

func signatureScheme(header string) string {
	if i := strings.Index(header, "="); i > 0 && i <= 16 {
		return strings.ToLower(header[:i])
	}
	return "unknown"
}
