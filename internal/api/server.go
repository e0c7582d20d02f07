package api

import (
	"context"

	"leadflow/internal/ingest"
	"leadflow/internal/model"
	"leadflow/internal/observability"
	"leadflow/internal/tenant"

	"github.com/go-logr/logr"
	"go.uber.org/zap"
)

// EventOrchestrator runs domain events posted to /v1/events.
type EventOrchestrator interface {
	Prepare(ev model.DomainEvent) model.DomainEvent
	Orchestrate(ctx context.Context, ev model.DomainEvent) error
}

// ReanalysisTrigger acts on a webhook dispatcher's reanalysis decision.
type ReanalysisTrigger interface {
	Trigger(ctx context.Context, deliveryID string, req ingest.ReanalysisRequest) error
}

// HealthCheck reports a dependency problem as a non-nil error.
type HealthCheck func(ctx context.Context) error

type AuthConfig struct {
	Events BearerPolicy
	JWT    JWTPolicy
	Audit  AuditPolicy
	Rate   RateLimitPolicy
}

type BearerPolicy struct {
	Token string
}

type JWTPolicy struct {
	Enabled     bool
	Issuer      string
	Audience    string
	RolesClaim  string
	HS256Secret string
}

type AuditPolicy struct {
	LogFile string
}

type RateLimitPolicy struct {
	Enabled          bool
	WebhookPerMinute int
	EventsPerMinute  int
}

type TenantPolicy struct {
	Resolver      *tenant.Resolver
	Production    bool
	CanonicalHost string
}

type ServerOptions struct {
	Auth            AuthConfig
	WebhookRegistry *ingest.Registry
	Orchestrator    EventOrchestrator
	Reanalysis      ReanalysisTrigger
	Tenant          TenantPolicy
	HTTPMetrics     *observability.HTTPMetrics
	Metrics         *observability.PipelineMetrics
	HealthChecks    map[string]HealthCheck
	Logger          *zap.Logger
	AuditLogger     logr.Logger
}

type Server struct {
	auth            AuthConfig
	webhookRegistry *ingest.Registry
	orchestrator    EventOrchestrator
	reanalysis      ReanalysisTrigger
	tenant          TenantPolicy
	httpMetrics     *observability.HTTPMetrics
	metrics         *observability.PipelineMetrics
	healthChecks    map[string]HealthCheck
	rateLimiter     *authRateLimiter
	logger          *zap.Logger
	audit           logr.Logger
}

func NewServer(opts ServerOptions) *Server {
	reg := opts.WebhookRegistry
	if reg == nil {
		reg = ingest.NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	audit := opts.AuditLogger
	if audit.GetSink() == nil {
		audit = logr.Discard()
	}
	if opts.Tenant.Resolver == nil {
		opts.Tenant.Resolver = tenant.NewResolver(tenant.Options{})
	}
	auth := withAuthDefaults(opts.Auth)
	return &Server{
		auth:            auth,
		webhookRegistry: reg,
		orchestrator:    opts.Orchestrator,
		reanalysis:      opts.Reanalysis,
		tenant:          opts.Tenant,
		httpMetrics:     opts.HTTPMetrics,
		metrics:         opts.Metrics,
		healthChecks:    opts.HealthChecks,
		rateLimiter:     newAuthRateLimiter(auth.Rate),
		logger:          logger.Named("api"),
		audit:           audit.WithName("audit"),
	}
}
