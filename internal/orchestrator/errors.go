package orchestrator

import (
	"errors"
	"fmt"

	"leadflow/internal/model"
)

type ErrorKind string

const (
	ErrorInvalidEvent   ErrorKind = "invalid_event"
	ErrorDeliveryFailed ErrorKind = "delivery_failed"
	ErrorNotConfigured  ErrorKind = "not_configured"
)

const (
	StepValidate          = "validate"
	StepSendCampaignEmail = "send_campaign_email"
)

var errMailerNotConfigured = errors.New("campaign mailer not configured")

// OrchestrationError reports a required step that failed irrecoverably.
type OrchestrationError struct {
	Kind      ErrorKind
	EventID   string
	EventKind model.Kind
	Step      string
	Err       error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("orchestrate %s %s: %s: %v", e.EventKind, e.EventID, e.Step, e.Err)
}

func (e *OrchestrationError) Unwrap() error { return e.Err }
