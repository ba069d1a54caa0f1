package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridSender delivers alert emails via the SendGrid HTTP API; selected
// over SMTPSender whenever a SendGrid API key is configured.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

// NewSendGridSender builds a Sender backed by the SendGrid API.
func NewSendGridSender(apiKey, fromEmail, fromName string) *SendGridSender {
	return &SendGridSender{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *SendGridSender) Send(ctx context.Context, to, subject, html, text string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)

	personalization := mail.NewPersonalization()
	personalization.AddTos(mail.NewEmail("", to))

	m := mail.NewV3Mail()
	m.SetFrom(from)
	m.Subject = subject
	m.AddPersonalizations(personalization)
	if text != "" {
		m.AddContent(mail.NewContent("text/plain", text))
	}
	if html != "" {
		m.AddContent(mail.NewContent("text/html", html))
	}

	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid send failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
