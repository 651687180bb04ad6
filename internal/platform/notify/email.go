package notify

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// EmailSender delivers notifications through the Resend API.
type EmailSender struct {
	client *resend.Client
	from   string
}

func NewEmailSender(apiKey, from string) *EmailSender {
	return &EmailSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

func (s *EmailSender) Send(_ context.Context, n Notification) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{n.Recipient},
		Subject: n.Subject,
		Text:    n.Body,
	}
	if _, err := s.client.Emails.Send(params); err != nil {
		return fmt.Errorf("sending email to %s: %w", n.Recipient, err)
	}
	return nil
}
