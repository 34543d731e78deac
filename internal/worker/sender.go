package worker

import (
	"context"
	"errors"
	"time"
)

// EmailMessage is one fully rendered email ready for the ESP.
type EmailMessage struct {
	RecipientID string
	CampaignID  string
	Email       string
	FromName    string
	FromEmail   string
	Subject     string
	HTMLContent string
	TextContent string
}

// SendResult reports the outcome of one delivery attempt.
type SendResult struct {
	Success   bool
	MessageID string
	Error     error
	SentAt    time.Time
}

// ESPSender delivers a single message through an email service provider.
type ESPSender interface {
	Send(ctx context.Context, msg *EmailMessage) (*SendResult, error)
}

// DisabledSender stands in when no ESP is configured. Every send fails
// with a clear reason instead of silently dropping mail.
type DisabledSender struct{}

func (DisabledSender) Send(_ context.Context, _ *EmailMessage) (*SendResult, error) {
	return &SendResult{Success: false, Error: errors.New("email sending is disabled in config")}, nil
}
