package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadflow/internal/bootstrap"
	"leadflow/internal/config"

	"github.com/go-logr/zapr"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("ignoring .env: %v", err)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zapLogger, err := newZapLogger(cfg.LogMode)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zapLogger.Sync() }()
	logger := zapr.NewLogger(zapLogger)

	rt := bootstrap.NewRuntime(ctx, cfg, logger, zapLogger)
	defer rt.Cleanup()

	summary := cfg.Summary()
	logger.Info("startup config",
		"environment", summary.Environment,
		"activity_log", summary.ActivityLogMode,
		"queue", summary.QueueMode,
		"providers", summary.WebhookProviders,
		"root_domain", summary.RootDomain,
		"canonical_host", summary.CanonicalHost,
		"delivery_retries", summary.DeliveryRetries,
		"jwt_enabled", summary.JWTEnabled,
		"tls_enabled", summary.TLSEnabled,
		"rate_limit", summary.RateLimit,
		"dev_insecure", summary.DevInsecure,
	)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           rt.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("leadflow listening", "addr", cfg.Addr)
		if cfg.TLS.Enabled {
			serveErr <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "http server failed")
			rt.Cleanup()
			log.Fatal(err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error(err, "graceful shutdown failed")
		}
	}
}

func newZapLogger(mode string) (*zap.Logger, error) {
	if mode == config.EnvDevelopment {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
