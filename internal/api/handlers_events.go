package api

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"leadflow/internal/delivery"
	"leadflow/internal/model"
	"leadflow/internal/observability"
	"leadflow/internal/orchestrator"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"go.uber.org/zap"
)

const contentTypeCloudEvents = "application/cloudevents+json"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.healthChecks))
	for name, check := range s.healthChecks {
		if err := check(r.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]interface{}{
		"status":  state,
		"service": "leadflow",
		"checks":  checks,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil, false)
		return
	}
	if err := s.authorizeEvents(r); err != nil {
		if errors.Is(err, errRateLimited) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", err.Error(), nil, true)
			return
		}
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil, false)
		return
	}
	if s.orchestrator == nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "event orchestrator not configured", nil, true)
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	ev, err := decodeDomainEvent(r, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_EVENT", err.Error(), nil, false)
		return
	}

	ctx := r.Context()
	ev = s.orchestrator.Prepare(ev)
	if err := s.orchestrator.Orchestrate(ctx, ev); err != nil {
		s.writeOrchestrationError(ctx, w, ev, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":     ev.ID,
		"kind":   ev.Kind,
		"status": "processed",
	})
}

// decodeDomainEvent accepts a plain domain event or a structured-mode
// CloudEvent carrying one.
func decodeDomainEvent(r *http.Request, body []byte) (model.DomainEvent, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.EqualFold(mediaType, contentTypeCloudEvents) {
		ce := cloudevents.NewEvent()
		if err := ce.UnmarshalJSON(body); err != nil {
			return model.DomainEvent{}, fmt.Errorf("invalid cloudevent: %w", err)
		}
		return model.FromCloudEvent(ce)
	}
	var ev model.DomainEvent
	if err := decodeJSONBytes(body, &ev); err != nil {
		return model.DomainEvent{}, fmt.Errorf("invalid event body: %w", err)
	}
	return ev, nil
}

func (s *Server) writeOrchestrationError(ctx context.Context, w http.ResponseWriter, ev model.DomainEvent, err error) {
	var oerr *orchestrator.OrchestrationError
	if errors.As(err, &oerr) && oerr.Kind == orchestrator.ErrorInvalidEvent {
		writeError(w, http.StatusBadRequest, "INVALID_EVENT", oerr.Err.Error(), nil, false)
		return
	}
	var derr *delivery.Error
	switch {
	case errors.Is(err, delivery.ErrDeliveryExhausted) && errors.As(err, &derr):
		writeError(w, http.StatusBadGateway, "DELIVERY_EXHAUSTED",
			fmt.Sprintf("failed to send campaign email after %d attempts", derr.Attempts), nil, true)
	case errors.Is(err, delivery.ErrPermanentFailure):
		writeError(w, http.StatusUnprocessableEntity, "DELIVERY_REJECTED", "campaign email was rejected", nil, false)
	default:
		observability.Logger(observability.WithTenant(ctx, ev.Tenant), s.logger).Error("Event orchestration failed",
			zap.String("event_id", ev.ID),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil, true)
	}
}
