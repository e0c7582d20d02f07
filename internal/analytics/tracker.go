// Package analytics is the enrichment collaborator for viewed campaigns.
// Track only enqueues; enrichment happens off the request path.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"leadflow/internal/model"
	"leadflow/internal/queue"

	"go.uber.org/zap"
)

var ErrMissingUser = errors.New("analytics event without user id")

type Tracker struct {
	queue  queue.Queue
	logger *zap.Logger
}

func NewTracker(q queue.Queue, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{queue: q, logger: logger.Named("analytics")}
}

func (t *Tracker) Track(ctx context.Context, ev model.DomainEvent) error {
	if strings.TrimSpace(ev.UserID) == "" {
		return ErrMissingUser
	}
	ce, err := ev.ToCloudEvent()
	if err != nil {
		return fmt.Errorf("build analytics event: %w", err)
	}
	if err := t.queue.Publish(ctx, queue.TopicAnalytics, ce); err != nil {
		return fmt.Errorf("enqueue analytics event: %w", err)
	}
	t.logger.Debug("Analytics event enqueued",
		zap.String("event_id", ev.ID),
		zap.String("user_id", ev.UserID),
		zap.String("campaign_id", ev.CampaignID),
	)
	return nil
}
