// Package mail renders and delivers notification e-mail.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"text/template"
	"time"

	gomail "github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/config"
)

// Address is a single recipient.
type Address struct {
	Name  string
	Email string
}

// Message is a plain-text e-mail ready for delivery.
type Message struct {
	To      []Address
	Subject string
	Body    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Render executes the subject and body templates of route against data.
func Render(route config.TemplateRoute, data any) (string, string, error) {
	subject, err := execute("subject", route.Subject, data)
	if err != nil {
		return "", "", err
	}
	body, err := execute("body", route.Body, data)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(subject), body, nil
}

func execute(name, src string, data any) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", fmt.Errorf("parse %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", name, err)
	}
	return buf.String(), nil
}

// Compose builds an RFC 5322 message with a single text/plain part.
func Compose(from Address, msg Message, now time.Time) ([]byte, error) {
	if len(msg.To) == 0 {
		return nil, errors.New("mail: no recipients")
	}
	var h gomail.Header
	h.SetDate(now)
	h.SetSubject(msg.Subject)
	h.SetAddressList("From", []*gomail.Address{{Name: from.Name, Address: from.Email}})
	to := make([]*gomail.Address, 0, len(msg.To))
	for _, a := range msg.To {
		to = append(to, &gomail.Address{Name: a.Name, Address: a.Email})
	}
	h.SetAddressList("To", to)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := gomail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message writer: %w", err)
	}
	if _, err := w.Write([]byte(msg.Body)); err != nil {
		return nil, fmt.Errorf("write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message body: %w", err)
	}
	return buf.Bytes(), nil
}

// SMTPSender delivers over SMTP, upgrading with STARTTLS when offered.
type SMTPSender struct {
	cfg config.MailConfig
	now func() time.Time
}

// NewSender returns an SMTP sender, or a logging sender when no host is configured.
func NewSender(cfg config.MailConfig, logger *zap.Logger) Sender {
	if cfg.Host == "" {
		return &LogSender{logger: logger}
	}
	return &SMTPSender{cfg: cfg, now: time.Now}
}

// Send composes msg and delivers it to every recipient in one transaction.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	raw, err := Compose(Address{Email: s.cfg.From}, msg, s.now())
	if err != nil {
		return err
	}

	if timeout := s.cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("dial to %s: %w", s.cfg.Addr(), err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return fmt.Errorf("SMTP STARTTLS: %w", err)
		}
	}
	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth: %w", err)
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}
	for _, rcpt := range msg.To {
		if err := client.Rcpt(rcpt.Email); err != nil {
			return fmt.Errorf("SMTP RCPT TO %s: %w", rcpt.Email, err)
		}
	}
	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}
	if _, err := writer.Write(raw); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}
	return client.Quit()
}

// LogSender records messages instead of delivering them.
type LogSender struct {
	logger *zap.Logger
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	recipients := make([]string, 0, len(msg.To))
	for _, a := range msg.To {
		recipients = append(recipients, a.Email)
	}
	s.logger.Info("mail delivery disabled; message dropped",
		zap.Strings("to", recipients),
		zap.String("subject", msg.Subject),
	)
	return nil
}
