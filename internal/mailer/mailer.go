// Package mailer delivers verification emails and operator notifications over SMTP.
package mailer

import (
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"
)

// Sender is the outbound email surface the engine consumes.
type Sender interface {
	Send(to, subject, body string) error
	// NotifyAdmin escalates to the operator channel. Best effort: failures
	// are only logged by callers.
	NotifyAdmin(subject, body string) error
}

type Mailer struct {
	dialer     *gomail.Dialer
	from       string
	fromName   string
	adminEmail string
	log        *slog.Logger
}

var _ Sender = (*Mailer)(nil)

func New(host string, port int, user, password, fromEmail, fromName, adminEmail string, log *slog.Logger) *Mailer {
	return &Mailer{
		dialer:     gomail.NewDialer(host, port, user, password),
		from:       fromEmail,
		fromName:   fromName,
		adminEmail: adminEmail,
		log:        log,
	}
}

// Send delivers one message. Body is sent both as plain text and HTML.
func (m *Mailer) Send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, m.fromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	msg.AddAlternative("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}

	m.log.Info("email sent", "to", to, "subject", subject)
	return nil
}

// NotifyAdmin sends an operator notification to the configured admin address.
func (m *Mailer) NotifyAdmin(subject, body string) error {
	return m.Send(m.adminEmail, subject, body)
}
