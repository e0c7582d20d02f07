package github

import (
	"context"
	"errors"
	"fmt"

	"leadflow/internal/ingest"

	"go.uber.org/zap"
)

var ErrMalformedPayload = errors.New("malformed webhook payload")

const (
	messagePushProcessed       = "Push event processed"
	messageRepositoryProcessed = "Repository event processed"
	messageIgnored             = "Event ignored"
)

// Dispatcher turns a verified GitHub envelope into a uniform result. It has no
// side effects beyond logging; acting on ShouldReanalyze is up to the caller.
type Dispatcher struct {
	logger *zap.Logger
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logger: logger.Named("github")}
}

func (d *Dispatcher) Dispatch(_ context.Context, env ingest.VerifiedEnvelope) (ingest.DispatchResult, error) {
	if !env.Valid() {
		return ingest.DispatchResult{}, ingest.ErrInvalidSignature
	}
	logger := d.logger.With(
		zap.String("event_type", env.EventType()),
		zap.String("delivery_id", env.DeliveryID()),
	)
	event, err := ParseEvent(env)
	if err != nil {
		logger.Warn("github payload could not be decoded", zap.Error(err))
		return ingest.DispatchResult{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	switch e := event.(type) {
	case PushEvent:
		manifests := e.Manifests()
		reanalyze := e.OnMainBranch() && len(manifests) > 0
		logger.Info("push event processed",
			zap.String("repository", e.Repository),
			zap.String("ref", e.Ref),
			zap.Int("changed_files", len(e.ChangedFiles)),
			zap.Strings("manifests", manifests),
			zap.Bool("should_reanalyze", reanalyze),
		)
		res := ingest.DispatchResult{
			Success:         true,
			Message:         messagePushProcessed,
			ShouldReanalyze: ingest.Bool(reanalyze),
			Event:           e.eventName(),
		}
		if reanalyze {
			res.Reanalysis = &ingest.ReanalysisRequest{
				Provider:   "github",
				Repository: e.Repository,
				Ref:        e.Ref,
				CommitSHA:  e.After,
				Manifests:  manifests,
			}
		}
		return res, nil
	case RepositoryEvent:
		logger.Info("repository event processed",
			zap.String("action", e.Action),
			zap.String("repository", e.Repository),
		)
		return ingest.DispatchResult{
			Success: true,
			Message: messageRepositoryProcessed,
			Event:   e.eventName(),
		}, nil
	case UnknownEvent:
		logger.Debug("github event ignored")
		return ingest.DispatchResult{
			Success: true,
			Message: messageIgnored,
			Event:   e.eventName(),
		}, nil
	default:
		return ingest.DispatchResult{}, fmt.Errorf("unhandled github event variant %T", event)
	}
}
