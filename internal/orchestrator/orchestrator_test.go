package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"leadflow/internal/activity"
	"leadflow/internal/delivery"
	"leadflow/internal/model"
	"leadflow/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeMailer struct {
	calls []delivery.EmailRequest
	err   error
}

func (f *fakeMailer) SendCampaignEmail(_ context.Context, req delivery.EmailRequest) (string, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	return "em_1", nil
}

type fakeAnalytics struct {
	mu    sync.Mutex
	calls []model.DomainEvent
	err   error
	block bool
}

func (f *fakeAnalytics) Track(ctx context.Context, ev model.DomainEvent) error {
	f.mu.Lock()
	f.calls = append(f.calls, ev)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

// orderLog records the order of collaborator calls.
type orderLog struct {
	*activity.MemoryLog
	order *[]string
	err   error
}

func (l orderLog) Append(ctx context.Context, e activity.Entry) error {
	*l.order = append(*l.order, "log")
	if l.err != nil {
		return l.err
	}
	return l.MemoryLog.Append(ctx, e)
}

type orderMailer struct {
	order *[]string
	err   error
}

func (m orderMailer) SendCampaignEmail(context.Context, delivery.EmailRequest) (string, error) {
	*m.order = append(*m.order, "mail")
	return "em_2", m.err
}

func started() model.DomainEvent {
	return model.DomainEvent{
		ID:         "evt-1",
		Kind:       model.KindCampaignStarted,
		UserID:     "u-1",
		CampaignID: "c-1",
		Tenant:     "acme",
		Metadata:   map[string]interface{}{"plan": "pro"},
		Email:      &model.Email{To: []string{"lead@example.com"}, Subject: "Go live", HTML: "<p>x</p>", Tags: map[string]string{"b": "2", "a": "1"}},
	}
}

func recent(t *testing.T, log activity.Log) []activity.Entry {
	t.Helper()
	entries, err := log.Recent(context.Background(), 10)
	require.NoError(t, err)
	return entries
}

func TestCampaignStartedSendsEmailThenLogs(t *testing.T) {
	var order []string
	log := orderLog{MemoryLog: activity.NewMemoryLog(0), order: &order}
	o := New(Options{Mailer: orderMailer{order: &order}, Log: log})

	require.NoError(t, o.Orchestrate(context.Background(), started()))
	assert.Equal(t, []string{"mail", "log"}, order)

	entries := recent(t, log)
	require.Len(t, entries, 1)
	assert.Equal(t, activity.LevelInfo, entries[0].Level)
	assert.Equal(t, `CAMPAIGN_STARTED user=u-1 campaign=c-1 metadata={"plan":"pro"}`, entries[0].Message)
	assert.Equal(t, "em_2", entries[0].Context["message_id"])
	assert.Equal(t, "acme", entries[0].Tenant)
}

type scopeMailer struct {
	requestID string
	tenant    string
}

func (m *scopeMailer) SendCampaignEmail(ctx context.Context, _ delivery.EmailRequest) (string, error) {
	m.requestID = observability.RequestID(ctx)
	m.tenant = observability.Tenant(ctx)
	return "em_3", nil
}

func TestOrchestrateCarriesRequestScope(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	mailer := &scopeMailer{}
	o := New(Options{Mailer: mailer, Logger: zap.New(core)})
	ctx := observability.WithTenant(observability.WithRequestID(context.Background(), "req-7"), "from-host")

	require.NoError(t, o.Orchestrate(ctx, started()))
	assert.Equal(t, "req-7", mailer.requestID)
	assert.Equal(t, "acme", mailer.tenant)

	entries := logs.FilterMessage("Campaign email sent").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-7", fields["request_id"])
	assert.Equal(t, "acme", fields["tenant"])
	assert.Equal(t, "evt-1", fields["event_id"])
}

func TestCampaignStartedMapsEmailRequest(t *testing.T) {
	mailer := &fakeMailer{}
	o := New(Options{Mailer: mailer})
	require.NoError(t, o.Orchestrate(context.Background(), started()))
	require.Len(t, mailer.calls, 1)
	req := mailer.calls[0]
	assert.Equal(t, []string{"lead@example.com"}, req.To)
	assert.Equal(t, "Go live", req.Subject)
	assert.Equal(t, []delivery.Tag{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}, {Name: "campaign_id", Value: "c-1"}}, req.Tags)
}

func TestDeliveryFailureIsLoggedAndSurfaced(t *testing.T) {
	var order []string
	log := orderLog{MemoryLog: activity.NewMemoryLog(0), order: &order}
	exhausted := &delivery.Error{Kind: delivery.KindExhausted, Operation: "campaign_email", Recipient: "lead@example.com", Attempts: 4, Err: errors.New("503")}
	core, logs := observer.New(zapcore.DebugLevel)
	o := New(Options{Mailer: orderMailer{order: &order, err: exhausted}, Log: log, Logger: zap.New(core)})

	err := o.Orchestrate(context.Background(), started())
	require.Error(t, err)
	var oerr *OrchestrationError
	require.True(t, errors.As(err, &oerr))
	assert.Equal(t, ErrorDeliveryFailed, oerr.Kind)
	assert.Equal(t, StepSendCampaignEmail, oerr.Step)
	assert.True(t, errors.Is(err, delivery.ErrDeliveryExhausted))
	assert.Equal(t, []string{"mail", "log"}, order)

	entries := recent(t, log)
	require.Len(t, entries, 1)
	assert.Equal(t, activity.LevelError, entries[0].Level)
	assert.Equal(t, 4, entries[0].Context["attempts"])

	failed := logs.FilterMessage("Campaign email failed").All()
	require.Len(t, failed, 1)
	assert.EqualValues(t, 4, failed[0].ContextMap()["attempts"])
	assert.Equal(t, "evt-1", failed[0].ContextMap()["event_id"])
}

func TestCampaignViewedTracksAnalytics(t *testing.T) {
	analytics := &fakeAnalytics{}
	log := activity.NewMemoryLog(0)
	o := New(Options{Analytics: analytics, Log: log})

	ev := model.DomainEvent{Kind: model.KindCampaignViewed, UserID: "u-2", CampaignID: "c-9"}
	require.NoError(t, o.Orchestrate(context.Background(), ev))
	require.Len(t, analytics.calls, 1)
	assert.Equal(t, "u-2", analytics.calls[0].UserID)
	assert.NotEmpty(t, analytics.calls[0].ID)
	assert.Len(t, recent(t, log), 1)
}

func TestAnalyticsFailureIsNotFatalButObservable(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := activity.NewMemoryLog(0)
	o := New(Options{Analytics: &fakeAnalytics{err: errors.New("redis down")}, Log: log, Logger: zap.New(core)})

	ev := model.DomainEvent{Kind: model.KindCampaignViewed, UserID: "u-2"}
	require.NoError(t, o.Orchestrate(context.Background(), ev))
	assert.Equal(t, 1, logs.FilterMessage("Analytics tracking failed").FilterLevelExact(zapcore.WarnLevel).Len())
	entries := recent(t, log)
	require.Len(t, entries, 1)
	assert.Equal(t, "redis down", entries[0].Context["analytics_error"])
}

func TestAnalyticsIsBoundedByTimeout(t *testing.T) {
	o := New(Options{Analytics: &fakeAnalytics{block: true}, CollaboratorTimeout: 20 * time.Millisecond})
	start := time.Now()
	require.NoError(t, o.Orchestrate(context.Background(), model.DomainEvent{Kind: model.KindCampaignViewed, UserID: "u-3"}))
	assert.Less(t, time.Since(start), time.Second)
}

func TestActionTakenOnlyLogs(t *testing.T) {
	mailer := &fakeMailer{}
	analytics := &fakeAnalytics{}
	log := activity.NewMemoryLog(0)
	o := New(Options{Mailer: mailer, Analytics: analytics, Log: log})

	require.NoError(t, o.Orchestrate(context.Background(), model.DomainEvent{Kind: model.KindActionTaken, UserID: "u-4", Metadata: map[string]interface{}{"action": "clicked_cta"}}))
	assert.Empty(t, mailer.calls)
	assert.Empty(t, analytics.calls)
	entries := recent(t, log)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, `ACTION_TAKEN user=u-4`)
	assert.Contains(t, entries[0].Message, `"action":"clicked_cta"`)
}

func TestInvalidEventIsRejectedAndStillLogged(t *testing.T) {
	mailer := &fakeMailer{}
	log := activity.NewMemoryLog(0)
	o := New(Options{Mailer: mailer, Log: log})

	err := o.Orchestrate(context.Background(), model.DomainEvent{Kind: "CAMPAIGN_DELETED", UserID: "u-5"})
	var oerr *OrchestrationError
	require.True(t, errors.As(err, &oerr))
	assert.Equal(t, ErrorInvalidEvent, oerr.Kind)
	assert.True(t, errors.Is(err, model.ErrInvalidEvent))
	assert.Empty(t, mailer.calls)
	entries := recent(t, log)
	require.Len(t, entries, 1)
	assert.Equal(t, activity.LevelError, entries[0].Level)
}

func TestLogFailureIsNotFatal(t *testing.T) {
	var order []string
	core, logs := observer.New(zapcore.DebugLevel)
	log := orderLog{MemoryLog: activity.NewMemoryLog(0), order: &order, err: errors.New("db down")}
	o := New(Options{Log: log, Logger: zap.New(core)})

	require.NoError(t, o.Orchestrate(context.Background(), model.DomainEvent{Kind: model.KindActionTaken, UserID: "u-6"}))
	assert.Equal(t, 1, logs.FilterMessage("Activity log append failed").Len())
}

func TestLogRunsWhenParentCancelled(t *testing.T) {
	mailer := &fakeMailer{err: &delivery.Error{Kind: delivery.KindAborted, Err: context.Canceled}}
	log := activity.NewMemoryLog(0)
	o := New(Options{Mailer: mailer, Log: log})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, o.Orchestrate(ctx, started()))
	assert.Len(t, recent(t, log), 1)
}

func TestMissingMailer(t *testing.T) {
	o := New(Options{})
	err := o.Orchestrate(context.Background(), started())
	var oerr *OrchestrationError
	require.True(t, errors.As(err, &oerr))
	assert.Equal(t, ErrorNotConfigured, oerr.Kind)
}
