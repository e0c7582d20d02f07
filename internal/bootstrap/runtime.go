package bootstrap

import (
	"context"
	"database/sql"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leadflow/db"
	"leadflow/internal/activity"
	"leadflow/internal/analytics"
	"leadflow/internal/api"
	"leadflow/internal/config"
	"leadflow/internal/delivery"
	"leadflow/internal/ingest"
	"leadflow/internal/migrate"
	"leadflow/internal/observability"
	"leadflow/internal/orchestrator"
	"leadflow/internal/providers/github"
	"leadflow/internal/queue"
	"leadflow/internal/tenant"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	_ "modernc.org/sqlite"
)

const dependencyTimeout = 10 * time.Second

type Runtime struct {
	Handler  http.Handler
	Registry *prometheus.Registry
	Cleanup  func()
}

// NewRuntime wires the pipeline from cfg. Storage and queue backends fall
// back to in-memory implementations when they are unset or unreachable.
func NewRuntime(ctx context.Context, cfg config.Config, logger logr.Logger, zapLogger *zap.Logger) *Runtime {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pipelineMetrics := observability.NewPipelineMetrics(reg)

	activityLog, closeDB := buildActivityLog(ctx, cfg, logger)
	jobs, closeQueue := buildQueue(ctx, cfg, logger, queue.Options{
		Capacity: cfg.Redis.QueueCapacity,
		Logger:   zapLogger,
		Metrics:  observability.NewQueueMetrics(reg),
	})

	sender := delivery.NewSender(zapLogger, observability.NewDeliveryMetrics(reg))
	mailer := delivery.NewCampaignMailer(
		delivery.NewEmailClient(delivery.EmailClientConfig{
			BaseURL: cfg.Email.BaseURL,
			APIKey:  cfg.Email.APIKey,
			Timeout: cfg.Email.Timeout,
		}),
		sender,
		delivery.MailerConfig{
			From:    cfg.Email.From,
			ReplyTo: cfg.Email.ReplyTo,
			Policy: delivery.Policy{
				Retries:        cfg.Delivery.Retries,
				InitialBackoff: cfg.Delivery.InitialBackoff,
				MaxBackoff:     cfg.Delivery.MaxBackoff,
				AttemptTimeout: cfg.Delivery.AttemptTimeout,
			},
		},
	)
	orch := orchestrator.New(orchestrator.Options{
		Mailer:              mailer,
		Analytics:           analytics.NewTracker(jobs, zapLogger),
		Log:                 activityLog,
		Logger:              zapLogger,
		Metrics:             pipelineMetrics,
		CollaboratorTimeout: cfg.Collaborators.Timeout,
	})

	server := api.NewServer(api.ServerOptions{
		Auth: api.AuthConfig{
			Events: api.BearerPolicy{Token: cfg.Auth.Events.Token},
			JWT: api.JWTPolicy{
				Enabled:     cfg.Auth.JWT.Enabled,
				Issuer:      cfg.Auth.JWT.Issuer,
				Audience:    cfg.Auth.JWT.Audience,
				RolesClaim:  cfg.Auth.JWT.RolesClaim,
				HS256Secret: cfg.Auth.JWT.HS256Secret,
			},
			Audit: api.AuditPolicy{LogFile: cfg.Auth.Audit.LogFile},
			Rate: api.RateLimitPolicy{
				Enabled:          cfg.RateLimit.Enabled,
				WebhookPerMinute: cfg.RateLimit.WebhookPerMinute,
				EventsPerMinute:  cfg.RateLimit.EventsPerMinute,
			},
		},
		WebhookRegistry: buildWebhookRegistry(cfg, zapLogger),
		Orchestrator:    orch,
		Reanalysis:      queue.NewReanalysisTrigger(jobs),
		Tenant: api.TenantPolicy{
			Resolver: tenant.NewResolver(tenant.Options{
				Reserved:      cfg.Tenant.Reserved,
				TrustedHeader: cfg.Tenant.Header,
				RootDomain:    cfg.Tenant.RootDomain,
			}),
			Production:    cfg.Production(),
			CanonicalHost: cfg.Tenant.CanonicalHost,
		},
		HTTPMetrics:  observability.NewHTTPMetrics(reg),
		Metrics:      pipelineMetrics,
		HealthChecks: healthChecks(jobs),
		Logger:       zapLogger,
		AuditLogger:  logger,
	})

	rootMux := http.NewServeMux()
	rootMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	rootMux.Handle("/", server.Handler())

	return &Runtime{
		Handler:  rootMux,
		Registry: reg,
		Cleanup: func() {
			closeQueue()
			closeDB()
		},
	}
}

func buildWebhookRegistry(cfg config.Config, logger *zap.Logger) *ingest.Registry {
	reg := ingest.NewRegistry()
	reg.Register(github.NewAdapter(cfg.Webhook.GitHubSecret, logger))
	return reg
}

func healthChecks(jobs queue.Queue) map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{}
	if rq, ok := jobs.(*queue.RedisQueue); ok {
		checks["queue"] = rq.Ping
	}
	return checks
}

func buildActivityLog(ctx context.Context, cfg config.Config, logger logr.Logger) (activity.Log, func()) {
	if cfg.DBDriver == "" || cfg.DBDSN == "" {
		logger.Info("running with in-memory activity log")
		return activity.NewMemoryLog(0), func() {}
	}

	dsn := applyPostgresTLS(cfg)
	conn, err := sql.Open(cfg.DBDriver, dsn)
	if err != nil {
		logger.Error(err, "db open failed, falling back to in-memory activity log")
		return activity.NewMemoryLog(0), func() {}
	}
	if cfg.DBDialect == "sqlite" {
		conn.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, dependencyTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		logger.Error(err, "db ping failed, falling back to in-memory activity log")
		_ = conn.Close()
		return activity.NewMemoryLog(0), func() {}
	}

	if cfg.DBMigrate {
		runner := migrate.NewRunner(db.Migrations).WithRoot("migrations")
		if err := runner.Apply(ctx, conn, cfg.DBDialect); err != nil {
			logger.Error(err, "migration apply failed, falling back to in-memory activity log")
			_ = conn.Close()
			return activity.NewMemoryLog(0), func() {}
		}
	}

	log, err := activity.NewSQLLog(conn, cfg.DBDialect)
	if err != nil {
		logger.Error(err, "sql activity log init failed, falling back to in-memory activity log")
		_ = conn.Close()
		return activity.NewMemoryLog(0), func() {}
	}
	logger.Info("running with SQL activity log", "dialect", cfg.DBDialect)
	return log, func() { _ = conn.Close() }
}

func buildQueue(ctx context.Context, cfg config.Config, logger logr.Logger, opts queue.Options) (queue.Queue, func()) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		logger.Info("running with in-memory job queue", "capacity", opts.Capacity)
		return queue.NewMemoryQueue(opts), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	rq := queue.NewRedisQueue(client, opts)
	pingCtx, cancel := context.WithTimeout(ctx, dependencyTimeout)
	defer cancel()
	if err := rq.Ping(pingCtx); err != nil {
		logger.Error(err, "redis ping failed, falling back to in-memory job queue", "addr", addr)
		_ = client.Close()
		return queue.NewMemoryQueue(opts), func() {}
	}
	logger.Info("running with redis job queue", "addr", addr)
	return rq, func() { _ = client.Close() }
}

func applyPostgresTLS(cfg config.Config) string {
	driver := strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	if driver != "pgx" {
		return cfg.DBDSN
	}
	if strings.TrimSpace(cfg.DB.SSLMode) == "" &&
		strings.TrimSpace(cfg.DB.SSLRootCert) == "" &&
		strings.TrimSpace(cfg.DB.SSLCert) == "" &&
		strings.TrimSpace(cfg.DB.SSLKey) == "" {
		return cfg.DBDSN
	}
	u, err := url.Parse(cfg.DBDSN)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return cfg.DBDSN
	}
	q := u.Query()
	if v := strings.TrimSpace(cfg.DB.SSLMode); v != "" {
		q.Set("sslmode", v)
	}
	if v := strings.TrimSpace(cfg.DB.SSLRootCert); v != "" {
		q.Set("sslrootcert", v)
	}
	if v := strings.TrimSpace(cfg.DB.SSLCert); v != "" {
		q.Set("sslcert", v)
	}
	if v := strings.TrimSpace(cfg.DB.SSLKey); v != "" {
		q.Set("sslkey", v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
