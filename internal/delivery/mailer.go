package delivery

import (
	"context"
	"strings"
)

const OperationCampaignEmail = "campaign_email"

// EmailSender performs a single provider call.
type EmailSender interface {
	Send(ctx context.Context, req EmailRequest) (string, error)
}

type MailerConfig struct {
	From    string
	ReplyTo string
	Policy  Policy
}

// CampaignMailer sends campaign emails through the retrying Sender. Delivery
// is at-least-once: no idempotency key is sent to the provider.
type CampaignMailer struct {
	client  EmailSender
	sender  *Sender
	from    string
	replyTo string
	policy  Policy
}

func NewCampaignMailer(client EmailSender, sender *Sender, cfg MailerConfig) *CampaignMailer {
	if sender == nil {
		sender = NewSender(nil, nil)
	}
	return &CampaignMailer{
		client:  client,
		sender:  sender,
		from:    strings.TrimSpace(cfg.From),
		replyTo: strings.TrimSpace(cfg.ReplyTo),
		policy:  cfg.Policy,
	}
}

// SendCampaignEmail fills in sender defaults, validates req and delivers it.
// It returns the provider message id of the successful attempt.
func (m *CampaignMailer) SendCampaignEmail(ctx context.Context, req EmailRequest) (string, error) {
	if strings.TrimSpace(req.From) == "" {
		req.From = m.from
	}
	if strings.TrimSpace(req.ReplyTo) == "" {
		req.ReplyTo = m.replyTo
	}
	target := Target{Operation: OperationCampaignEmail, Recipient: req.Recipient(), Subject: req.Subject}

	var id string
	err := m.sender.Send(ctx, target, m.policy, func(ctx context.Context) error {
		if err := req.Validate(); err != nil {
			return err
		}
		got, err := m.client.Send(ctx, req)
		if err != nil {
			return err
		}
		id = got
		return nil
	})
	return id, err
}

// Attempts reports the attempt bound the mailer runs with.
func (m *CampaignMailer) Attempts() int {
	return m.policy.MaxAttempts()
}
