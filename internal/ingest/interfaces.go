package ingest

import (
	"context"
	"strings"
)

type HeaderReader interface {
	Get(key string) string
}

// ReanalysisRequest is emitted when a push changed dependency manifests on the
// main branch. Acting on it is left to the caller of the dispatcher.
type ReanalysisRequest struct {
	Provider   string   `json:"provider"`
	Repository string   `json:"repository"`
	Ref        string   `json:"ref"`
	CommitSHA  string   `json:"commit_sha"`
	Manifests  []string `json:"manifests"`
}

type DispatchResult struct {
	Success         bool               `json:"success"`
	Message         string             `json:"message"`
	ShouldReanalyze *bool              `json:"shouldReanalyze,omitempty"`
	Event           string             `json:"event,omitempty"`
	Reanalysis      *ReanalysisRequest `json:"-"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, env VerifiedEnvelope) (DispatchResult, error)
}

type WebhookAdapter interface {
	Dispatcher
	Provider() string
	EventTypeHeader() string
	EventIDHeader() string
	SignatureHeader() string
	Authenticate(ctx context.Context, headers HeaderReader, body []byte) (VerifiedEnvelope, error)
}

func NormalizeProvider(in string) string {
	return strings.ToLower(strings.TrimSpace(in))
}

func NormalizeEventType(in string) string {
	return strings.ToLower(strings.TrimSpace(in))
}

func Bool(v bool) *bool {
	return &v
}
