package queue

import (
	"context"
	"fmt"
	"time"

	"leadflow/internal/ingest"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

const (
	ReanalysisEventType = "leadflow.reanalysis.requested"
	reanalysisSource    = "leadflow/webhooks"
)

// ReanalysisTrigger enqueues dependency re-analysis jobs decided by a
// webhook dispatcher.
type ReanalysisTrigger struct {
	queue Queue
	now   func() time.Time
}

func NewReanalysisTrigger(q Queue) *ReanalysisTrigger {
	return &ReanalysisTrigger{queue: q, now: time.Now}
}

// Trigger publishes req. deliveryID becomes the job id so redelivered
// webhooks produce the same id.
func (t *ReanalysisTrigger) Trigger(ctx context.Context, deliveryID string, req ingest.ReanalysisRequest) error {
	if req.Repository == "" {
		return fmt.Errorf("reanalysis request without repository")
	}
	ce := cloudevents.NewEvent()
	id := deliveryID
	if id == "" {
		id = uuid.NewString()
	}
	ce.SetID(id)
	ce.SetSource(reanalysisSource + "/" + req.Provider)
	ce.SetType(ReanalysisEventType)
	ce.SetSubject(req.Repository)
	ce.SetTime(t.now().UTC())
	if err := ce.SetData(cloudevents.ApplicationJSON, req); err != nil {
		return fmt.Errorf("encode reanalysis request: %w", err)
	}
	return t.queue.Publish(ctx, TopicReanalysis, ce)
}
