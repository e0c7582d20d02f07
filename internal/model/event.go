package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/event"
)

type Kind string

const (
	KindCampaignStarted Kind = "CAMPAIGN_STARTED"
	KindCampaignViewed  Kind = "CAMPAIGN_VIEWED"
	KindActionTaken     Kind = "ACTION_TAKEN"
)

const (
	EventSource     = "leadflow/orchestrator"
	eventTypePrefix = "leadflow.domain."
)

var (
	ErrInvalidEvent = errors.New("invalid domain event")
	ErrUnknownKind  = errors.New("unknown event kind")
)

func (k Kind) Valid() bool {
	switch k {
	case KindCampaignStarted, KindCampaignViewed, KindActionTaken:
		return true
	}
	return false
}

// ParseKind accepts any casing and surrounding whitespace.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(raw)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
	return k, nil
}

// Email is the campaign message carried by CAMPAIGN_STARTED events.
type Email struct {
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	ReplyTo string            `json:"replyTo,omitempty"`
	Tags    map[string]string `json:"tags,omitempty"`
}

type DomainEvent struct {
	ID         string                 `json:"id"`
	Kind       Kind                   `json:"kind"`
	UserID     string                 `json:"userId"`
	CampaignID string                 `json:"campaignId,omitempty"`
	Tenant     string                 `json:"tenant,omitempty"`
	OccurredAt time.Time              `json:"occurredAt"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Email      *Email                 `json:"email,omitempty"`
}

func (e DomainEvent) Validate() error {
	var problems []string
	if !e.Kind.Valid() {
		problems = append(problems, fmt.Sprintf("unknown kind %q", e.Kind))
	}
	if strings.TrimSpace(e.UserID) == "" {
		problems = append(problems, "userId is required")
	}
	if e.Kind == KindCampaignStarted {
		if strings.TrimSpace(e.CampaignID) == "" {
			problems = append(problems, "campaignId is required")
		}
		if e.Email == nil {
			problems = append(problems, "email is required")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidEvent, strings.Join(problems, "; "))
	}
	return nil
}

// Summary is the human readable line written to the activity log.
func (e DomainEvent) Summary() string {
	meta := "{}"
	if len(e.Metadata) > 0 {
		if b, err := json.Marshal(e.Metadata); err == nil {
			meta = string(b)
		} else {
			meta = fmt.Sprintf("%q", err.Error())
		}
	}
	return fmt.Sprintf("%s user=%s campaign=%s metadata=%s", e.Kind, e.UserID, e.CampaignID, meta)
}

// CloudEventType maps a kind to its CloudEvents type attribute.
func (k Kind) CloudEventType() string {
	return eventTypePrefix + strings.ToLower(string(k))
}

func (e DomainEvent) ToCloudEvent() (event.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(e.ID)
	ce.SetSource(EventSource)
	ce.SetType(e.Kind.CloudEventType())
	ce.SetSubject(e.UserID)
	ce.SetTime(e.OccurredAt)

	// Extension attributes used for queue routing.
	if e.Tenant != "" {
		ce.SetExtension("tenant", e.Tenant)
	}
	if e.CampaignID != "" {
		ce.SetExtension("campaignid", e.CampaignID)
	}

	if err := ce.SetData(cloudevents.ApplicationJSON, e); err != nil {
		return ce, err
	}
	if err := ce.Validate(); err != nil {
		return ce, err
	}
	return ce, nil
}

// FromCloudEvent decodes an event produced by ToCloudEvent.
func FromCloudEvent(ce event.Event) (DomainEvent, error) {
	if !strings.HasPrefix(ce.Type(), eventTypePrefix) {
		return DomainEvent{}, fmt.Errorf("%w: cloudevent type %q", ErrUnknownKind, ce.Type())
	}
	var out DomainEvent
	if err := ce.DataAs(&out); err != nil {
		return DomainEvent{}, fmt.Errorf("decode cloudevent data: %w", err)
	}
	return out, nil
}
