// Package mailer delivers sign-in links by email.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/reachcapital/portal/internal/ports"
)

// Config describes the SMTP relay.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
}

// DefaultSubject is used when Config.Subject is empty.
const DefaultSubject = "Your Reach Capital sign-in link"

var linkTemplate = template.Must(template.New("signin").Parse(`<!doctype html>
<html><body>
<p>Click the link below to finish signing in. It expires in 15 minutes and can be used once.</p>
<p><a href="{{.Link}}">Sign in to Reach Capital</a></p>
<p>If you didn't ask for this email you can ignore it.</p>
</body></html>`))

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP sends sign-in links through an SMTP relay.
type SMTP struct {
	cfg  Config
	send sendFunc
}

var _ ports.Mailer = (*SMTP)(nil)

// NewSMTP validates cfg and returns an SMTP mailer.
func NewSMTP(cfg Config) (*SMTP, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port <= 0 {
		return nil, errors.New("smtp port must be positive")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("smtp from address is required")
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	return &SMTP{cfg: cfg, send: smtp.SendMail}, nil
}

// SendSignInLink emails link to the recipient.
func (m *SMTP) SendSignInLink(ctx context.Context, to, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(to, "\r\n") {
		return errors.New("invalid recipient")
	}

	var body bytes.Buffer
	if err := linkTemplate.Execute(&body, struct{ Link string }{Link: link}); err != nil {
		return fmt.Errorf("render sign-in email: %w", err)
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", m.cfg.Subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	msg.Write(body.Bytes())

	if err := m.send(addr, auth, m.cfg.From, []string{to}, msg.Bytes()); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// Log writes sign-in links to the logger instead of sending them.
// It backs local development where no relay is configured.
type Log struct {
	Logger *slog.Logger
}

var _ ports.Mailer = Log{}

func (l Log) SendSignInLink(ctx context.Context, to, link string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "sign-in link issued", "to", to, "link", link)
	return nil
}
