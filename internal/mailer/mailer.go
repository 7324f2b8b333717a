// Package mailer sends the request and confirmation emails for form
// services.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"
)

// Message is one outbound email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Config holds the SMTP relay settings.
type Config struct {
	// Addr is the relay host:port.
	Addr string

	// From is the envelope and header sender.
	From string

	// Username and Password enable PLAIN auth when set.
	Username string
	Password string
}

// SMTP delivers through a relay. Safe for concurrent use.
type SMTP struct {
	config Config
	logger zerolog.Logger
}

// NewSMTP creates an SMTP mailer.
func NewSMTP(cfg Config, logger zerolog.Logger) *SMTP {
	return &SMTP{config: cfg, logger: logger}
}

// Send delivers one message through the relay.
func (m *SMTP) Send(_ context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("message has no recipients")
	}

	var auth smtp.Auth
	if m.config.Username != "" {
		host := m.config.Addr
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, host)
	}

	if err := smtp.SendMail(m.config.Addr, auth, m.config.From, msg.To, m.render(msg)); err != nil {
		return fmt.Errorf("sending mail to %s: %w", strings.Join(msg.To, ", "), err)
	}

	m.logger.Debug().Strs("to", msg.To).Str("subject", msg.Subject).Msg("mail sent")
	return nil
}

// render assembles the wire form of a message: headers, a blank line,
// then the plain-text body.
func (m *SMTP) render(msg Message) []byte {
	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\n", m.config.From)
	fmt.Fprintf(&body, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&body, "Subject: %s\r\n", msg.Subject)
	body.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	body.WriteString(msg.Body)
	return []byte(body.String())
}

// Nop discards messages; used in development and tests.
type Nop struct{}

func (Nop) Send(context.Context, Message) error {
	return nil
}

// Recorder collects messages for test assertions.
type Recorder struct {
	Messages []Message
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.Messages = append(r.Messages, msg)
	return nil
}
