// Package email delivers notification mail over SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotConfigured    = errors.New("email: SMTP not configured")
	ErrInvalidRecipient = errors.New("email: invalid recipient email")
	ErrSendFailed       = errors.New("email: failed to send email")
)

const defaultTimeout = 30 * time.Second

// Config holds SMTP settings.
type Config struct {
	Host       string
	Port       int
	User       string
	Password   string
	From       string
	FromName   string
	TLS        bool // STARTTLS after connecting
	SkipVerify bool
	Timeout    time.Duration
}

// Message is one outgoing mail.
type Message struct {
	To      []string
	Subject string
	Body    string
	IsHTML  bool
}

// Sender delivers mail. The notification worker depends on this rather
// than on SMTP so delivery can be swapped out in tests.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
	SendTemplate(ctx context.Context, to string, template Template, data any) error
	IsConfigured() bool
}

// SMTPSender sends each message over a fresh SMTP session.
type SMTPSender struct {
	cfg       Config
	templates *TemplateEngine
}

// NewSMTPSender creates an SMTP sender.
func NewSMTPSender(cfg Config) *SMTPSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &SMTPSender{cfg: cfg, templates: NewTemplateEngine()}
}

// IsConfigured reports whether host, port and sender address are set.
func (s *SMTPSender) IsConfigured() bool {
	return s.cfg.Host != "" && s.cfg.Port > 0 && s.cfg.From != ""
}

// Send delivers msg. Recipients containing line breaks are refused so a
// crafted address cannot inject headers.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if err := checkRecipients(msg.To); err != nil {
		return err
	}
	if err := s.deliver(ctx, msg.To, s.buildMessage(msg)); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// SendTemplate renders template with data and sends it as HTML.
func (s *SMTPSender) SendTemplate(ctx context.Context, to string, template Template, data any) error {
	subject, body, err := s.templates.Render(template, data)
	if err != nil {
		return fmt.Errorf("email: failed to render template: %w", err)
	}
	return s.Send(ctx, &Message{To: []string{to}, Subject: subject, Body: body, IsHTML: true})
}

func checkRecipients(to []string) error {
	if len(to) == 0 {
		return ErrInvalidRecipient
	}
	for _, addr := range to {
		if strings.ContainsAny(addr, "\r\n") {
			return ErrInvalidRecipient
		}
		if _, err := mail.ParseAddress(addr); err != nil {
			return ErrInvalidRecipient
		}
	}
	return nil
}

var headerSanitizer = strings.NewReplacer("\r", " ", "\n", " ")

func (s *SMTPSender) buildMessage(msg *Message) []byte {
	from := s.cfg.From
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", headerSanitizer.Replace(s.cfg.FromName), s.cfg.From)
	}
	contentType := "text/plain"
	if msg.IsHTML {
		contentType = "text/html"
	}

	var b strings.Builder
	writeHeader := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	writeHeader("From", from)
	writeHeader("To", strings.Join(msg.To, ", "))
	writeHeader("Subject", headerSanitizer.Replace(msg.Subject))
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", contentType+"; charset=UTF-8")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return []byte(b.String())
}

func (s *SMTPSender) deliver(ctx context.Context, to []string, content []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := (&net.Dialer{Timeout: s.cfg.Timeout}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()
	// Bound the whole session, not only the dial.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.Timeout))
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer c.Close()

	if s.cfg.TLS {
		//nolint:gosec // SkipVerify is an explicit opt-in for self-signed relays
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host, InsecureSkipVerify: s.cfg.SkipVerify}); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}
	if s.cfg.User != "" && s.cfg.Password != "" {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := c.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("failed to open data: %w", err)
	}
	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}
	return c.Quit()
}

// NoOpSender drops every message. The worker uses it when SMTP is unset.
type NoOpSender struct{}

// NewNoOpSender creates a no-op sender.
func NewNoOpSender() *NoOpSender { return &NoOpSender{} }

func (*NoOpSender) IsConfigured() bool                                        { return true }
func (*NoOpSender) Send(context.Context, *Message) error                      { return nil }
func (*NoOpSender) SendTemplate(context.Context, string, Template, any) error { return nil }
