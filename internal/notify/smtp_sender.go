package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPSender delivers alert emails over a direct SMTP connection; the
// default transport when no SendGrid API key is configured.
//
// No library in the reference corpus speaks the raw SMTP protocol (the only
// email-transport dependency available, sendgrid-go, is an HTTP API
// client) so this collaborator is built on the standard library's net/smtp.
type SMTPSender struct {
	host, port string
	auth       smtp.Auth
	from       string
}

// NewSMTPSender builds a Sender that authenticates with PLAIN auth against
// host:port.
func NewSMTPSender(host string, port int, user, pass, from string) *SMTPSender {
	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, pass, host)
	}
	return &SMTPSender{host: host, port: fmt.Sprintf("%d", port), auth: auth, from: from}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, html, text string) error {
	body := text
	contentType := "text/plain; charset=UTF-8"
	if html != "" {
		body = html
		contentType = "text/html; charset=UTF-8"
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Content-Type: %s\r\n\r\n", contentType)
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return smtp.SendMail(addr, s.auth, s.from, []string{to}, []byte(msg.String()))
}
