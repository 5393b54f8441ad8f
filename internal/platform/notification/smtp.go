package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/carebridge/carebridge/internal/platform/retry"
)

// SMTPSender sends email over plain SMTP with optional AUTH.
type SMTPSender struct {
	host     string
	port     int
	from     string
	password string
	policy   retry.Policy

	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(host string, port int, from, password string) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		from:     from,
		password: password,
		policy:   retry.Default(),
		send:     smtp.SendMail,
	}
}

func (s *SMTPSender) SendEmail(ctx context.Context, to, subject, body string) error {
	var auth smtp.Auth
	if s.password != "" {
		auth = smtp.PlainAuth("", s.from, s.password, s.host)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	return s.policy.Do(ctx, func() error {
		return s.send(addr, auth, s.from, []string{to}, []byte(msg.String()))
	})
}
