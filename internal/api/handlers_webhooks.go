package api

import (
	"net/http"
	"strings"

	"leadflow/internal/observability"

	"go.uber.org/zap"
)

const webhookPathPrefix = "/v1/webhooks/"

const (
	webhookOutcomeProcessed    = "processed"
	webhookOutcomeUnauthorized = "unauthorized"
	webhookOutcomeInvalid      = "invalid"
)

// webhookEventUnverified labels deliveries whose event header is not trusted.
const webhookEventUnverified = "unverified"

// webhookEventLabel maps a verified event type onto a closed label set.
func webhookEventLabel(eventType string) string {
	switch eventType {
	case "push", "repository":
		return eventType
	default:
		return "other"
	}
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil, false)
		return
	}
	provider := strings.Trim(strings.TrimPrefix(r.URL.Path, webhookPathPrefix), "/")
	adapter, err := s.webhookRegistry.Adapter(provider)
	if err != nil {
		writeError(w, http.StatusNotFound, "UNKNOWN_PROVIDER", "unknown webhook provider", nil, false)
		return
	}
	provider = adapter.Provider()
	if s.rateLimiter != nil && !s.rateLimiter.Allow(r, actionWebhook) {
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", errRateLimited.Error(), nil, true)
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	env, err := s.webhookRegistry.Authenticate(ctx, provider, r.Header, body)
	if err != nil {
		s.metrics.Webhook(provider, webhookEventUnverified, webhookOutcomeUnauthorized)
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid webhook signature", nil, false)
		return
	}
	eventType := webhookEventLabel(env.EventType())
	res, err := s.webhookRegistry.Dispatch(ctx, env)
	if err != nil {
		s.metrics.Webhook(provider, eventType, webhookOutcomeInvalid)
		writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error(), nil, false)
		return
	}
	if res.Reanalysis != nil && s.reanalysis != nil {
		if err := s.reanalysis.Trigger(ctx, env.DeliveryID(), *res.Reanalysis); err != nil {
			observability.Logger(ctx, s.logger).Error("Reanalysis trigger failed",
				zap.String("provider", provider),
				zap.String("delivery_id", env.DeliveryID()),
				zap.String("repository", res.Reanalysis.Repository),
				zap.Error(err),
			)
		}
	}
	s.metrics.Webhook(provider, eventType, webhookOutcomeProcessed)
	writeJSON(w, http.StatusOK, res)
}
