package github

import (
	"context"
	"strings"

	"leadflow/internal/ingest"
	"leadflow/internal/providers/shared"

	"go.uber.org/zap"
)

const (
	defaultSignatureHeader = "X-Hub-Signature-256"
	eventTypeHeader        = "X-GitHub-Event"
	eventIDHeader          = "X-GitHub-Delivery"
)

type Adapter struct {
	Verifier      *ingest.SignatureVerifier
	Dispatcher    ingest.Dispatcher
	SignatureName string
	secret        []byte
}

func NewAdapter(secret string, logger *zap.Logger) Adapter {
	return Adapter{
		Verifier:      ingest.NewSignatureVerifier(logger),
		Dispatcher:    NewDispatcher(logger),
		SignatureName: defaultSignatureHeader,
		secret:        []byte(strings.TrimSpace(secret)),
	}
}

func (a Adapter) Provider() string { return "github" }
func (a Adapter) EventTypeHeader() string {
	return eventTypeHeader
}
func (a Adapter) EventIDHeader() string {
	return eventIDHeader
}
func (a Adapter) SignatureHeader() string {
	return shared.NonEmpty(a.SignatureName, defaultSignatureHeader)
}

func (a Adapter) Authenticate(ctx context.Context, headers ingest.HeaderReader, body []byte) (ingest.VerifiedEnvelope, error) {
	env := ingest.NewEnvelope(
		a.Provider(),
		headers.Get(eventTypeHeader),
		shared.FallbackDelivery(headers.Get(eventIDHeader), body),
		body,
		headers.Get(a.SignatureHeader()),
	)
	v := a.Verifier
	if v == nil {
		v = ingest.NewSignatureVerifier(nil)
	}
	return v.Authenticate(ctx, env, a.secret)
}

func (a Adapter) Dispatch(ctx context.Context, env ingest.VerifiedEnvelope) (ingest.DispatchResult, error) {
	d := a.Dispatcher
	if d == nil {
		d = NewDispatcher(nil)
	}
	return d.Dispatch(ctx, env)
}
