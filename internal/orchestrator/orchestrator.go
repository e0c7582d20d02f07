package orchestrator

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"leadflow/internal/activity"
	"leadflow/internal/delivery"
	"leadflow/internal/model"
	"leadflow/internal/observability"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultCollaboratorTimeout = 2 * time.Second

type Mailer interface {
	SendCampaignEmail(ctx context.Context, req delivery.EmailRequest) (string, error)
}

type Analytics interface {
	Track(ctx context.Context, ev model.DomainEvent) error
}

type Options struct {
	Mailer              Mailer
	Analytics           Analytics
	Log                 activity.Log
	Logger              *zap.Logger
	Metrics             *observability.PipelineMetrics
	CollaboratorTimeout time.Duration
}

// Orchestrator runs the kind-specific action for a domain event and then
// always records it in the activity log.
type Orchestrator struct {
	mailer    Mailer
	analytics Analytics
	log       activity.Log
	logger    *zap.Logger
	metrics   *observability.PipelineMetrics
	timeout   time.Duration
	now       func() time.Time
	newID     func() string
}

func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.CollaboratorTimeout
	if timeout <= 0 {
		timeout = DefaultCollaboratorTimeout
	}
	log := opts.Log
	if log == nil {
		log = activity.NewMemoryLog(0)
	}
	return &Orchestrator{
		mailer:    opts.Mailer,
		analytics: opts.Analytics,
		log:       log,
		logger:    logger.Named("orchestrator"),
		metrics:   opts.Metrics,
		timeout:   timeout,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Prepare assigns an id and timestamp when the caller left them empty.
func (o *Orchestrator) Prepare(ev model.DomainEvent) model.DomainEvent {
	if strings.TrimSpace(ev.ID) == "" {
		ev.ID = o.newID()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = o.now().UTC()
	}
	return ev
}

// Orchestrate handles one event. The returned error, when not nil, is an
// *OrchestrationError. The event's tenant, when set, replaces the tenant
// carried by ctx for every log written downstream.
func (o *Orchestrator) Orchestrate(ctx context.Context, ev model.DomainEvent) error {
	ev = o.Prepare(ev)
	ctx = observability.WithTenant(ctx, ev.Tenant)
	logger := observability.Logger(ctx, o.logger).With(
		zap.String("event_id", ev.ID),
		zap.String("kind", string(ev.Kind)),
		zap.String("user_id", ev.UserID),
		zap.String("campaign_id", ev.CampaignID),
	)

	var actionErr error
	extra := map[string]interface{}{}
	if err := ev.Validate(); err != nil {
		logger.Warn("Rejected domain event", zap.Error(err))
		actionErr = &OrchestrationError{Kind: ErrorInvalidEvent, EventID: ev.ID, EventKind: ev.Kind, Step: StepValidate, Err: err}
	} else {
		actionErr = o.runAction(ctx, ev, logger, extra)
	}

	o.record(ctx, ev, actionErr, extra, logger)

	outcome := "ok"
	if actionErr != nil {
		outcome = "failed"
	}
	o.metrics.Orchestrated(string(ev.Kind), outcome)
	return actionErr
}

func (o *Orchestrator) runAction(ctx context.Context, ev model.DomainEvent, logger *zap.Logger, extra map[string]interface{}) error {
	switch ev.Kind {
	case model.KindCampaignStarted:
		return o.sendCampaignEmail(ctx, ev, logger, extra)
	case model.KindCampaignViewed:
		o.track(ctx, ev, logger, extra)
		return nil
	case model.KindActionTaken:
		return nil
	}
	return nil
}

func (o *Orchestrator) sendCampaignEmail(ctx context.Context, ev model.DomainEvent, logger *zap.Logger, extra map[string]interface{}) error {
	if o.mailer == nil {
		logger.Error("Campaign mailer not configured")
		return &OrchestrationError{Kind: ErrorNotConfigured, EventID: ev.ID, EventKind: ev.Kind, Step: StepSendCampaignEmail, Err: errMailerNotConfigured}
	}
	req := emailRequest(ev)
	id, err := o.mailer.SendCampaignEmail(ctx, req)
	if err != nil {
		fields := []zap.Field{zap.String("recipient", req.Recipient()), zap.Error(err)}
		var derr *delivery.Error
		if errors.As(err, &derr) {
			fields = append(fields, zap.Int("attempts", derr.Attempts), zap.String("failure", string(derr.Kind)))
			extra["attempts"] = derr.Attempts
		}
		logger.Error("Campaign email failed", fields...)
		extra["error"] = err.Error()
		return &OrchestrationError{Kind: ErrorDeliveryFailed, EventID: ev.ID, EventKind: ev.Kind, Step: StepSendCampaignEmail, Err: err}
	}
	extra["message_id"] = id
	logger.Info("Campaign email sent", zap.String("message_id", id))
	return nil
}

func (o *Orchestrator) track(ctx context.Context, ev model.DomainEvent, logger *zap.Logger, extra map[string]interface{}) {
	if o.analytics == nil {
		logger.Warn("Analytics collaborator not configured; skipping")
		return
	}
	tctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	if err := o.analytics.Track(tctx, ev); err != nil {
		o.metrics.CollaboratorFailed("analytics")
		logger.Warn("Analytics tracking failed", zap.Error(err))
		extra["analytics_error"] = err.Error()
	}
}

// record appends to the activity log even when ctx is already cancelled.
func (o *Orchestrator) record(ctx context.Context, ev model.DomainEvent, actionErr error, extra map[string]interface{}, logger *zap.Logger) {
	level := activity.LevelInfo
	if actionErr != nil {
		level = activity.LevelError
	}
	entryCtx := map[string]interface{}{
		"event_id": ev.ID,
		"kind":     string(ev.Kind),
		"user_id":  ev.UserID,
	}
	if ev.CampaignID != "" {
		entryCtx["campaign_id"] = ev.CampaignID
	}
	for k, v := range extra {
		entryCtx[k] = v
	}
	if actionErr != nil {
		entryCtx["error"] = actionErr.Error()
	}
	entry := activity.Entry{
		ID:        o.newID(),
		Level:     level,
		Message:   ev.Summary(),
		Tenant:    ev.Tenant,
		Context:   entryCtx,
		CreatedAt: o.now().UTC(),
	}

	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()
	if err := o.log.Append(lctx, entry); err != nil {
		o.metrics.CollaboratorFailed("activity_log")
		logger.Error("Activity log append failed", zap.Error(err), zap.String("summary", entry.Message))
	}
}

func emailRequest(ev model.DomainEvent) delivery.EmailRequest {
	req := delivery.EmailRequest{
		To:      append([]string(nil), ev.Email.To...),
		Subject: ev.Email.Subject,
		HTML:    ev.Email.HTML,
		ReplyTo: ev.Email.ReplyTo,
	}
	keys := make([]string, 0, len(ev.Email.Tags))
	for k := range ev.Email.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		req.Tags = append(req.Tags, delivery.Tag{Name: k, Value: ev.Email.Tags[k]})
	}
	if ev.CampaignID != "" {
		req.Tags = append(req.Tags, delivery.Tag{Name: "campaign_id", Value: ev.CampaignID})
	}
	return req
}
