package auth

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// MailSender delivers magic links.
type MailSender interface {
	SendMagicLink(ctx context.Context, to, displayName, link string, expiresIn time.Duration) error
}

// SMSSender delivers one-time codes.
type SMSSender interface {
	SendCode(ctx context.Context, phone, code string) error
}

var errMissingSMTPHost = errors.New("smtp mailer: host required")

// SMTPConfig holds the outgoing mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends magic links through an SMTP relay.
type SMTPMailer struct {
	config SMTPConfig
	dialer *gomail.Dialer
	logger *zap.Logger
}

// NewSMTPMailer builds a mailer for the configured relay.
func NewSMTPMailer(cfg SMTPConfig, logger *zap.Logger) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errMissingSMTPHost
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPMailer{
		config: cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: logger,
	}, nil
}

// SendMagicLink mails a sign-in link with a plain text body and an HTML alternative.
func (m *SMTPMailer) SendMagicLink(_ context.Context, to, displayName, link string, expiresIn time.Duration) error {
	msg, err := buildMagicLinkMessage(m.config.From, to, displayName, link, expiresIn)
	if err != nil {
		return fmt.Errorf("smtp mailer: %w", err)
	}
	if err := m.dialer.DialAndSend(msg); err != nil {
		m.logger.Warn("failed to send magic link", zap.String("email", to), zap.Error(err))
		return fmt.Errorf("smtp mailer: %w", err)
	}
	m.logger.Info("magic link sent", zap.String("email", to))
	return nil
}

var magicLinkHTML = template.Must(template.New("magic-link").Parse(
	`<p>Hi {{.DisplayName}},</p><p><a href="{{.Link}}">Sign in to Movie Club</a></p><p>The link expires in {{.ExpiresIn}}. If you did not ask for it you can ignore this email.</p>`,
))

type magicLinkContent struct {
	DisplayName string
	Link        string
	ExpiresIn   string
}

// magicLinkBodies renders the plain text and HTML parts. Values in the HTML
// part are escaped by html/template.
func magicLinkBodies(displayName, link string, expiresIn time.Duration) (string, string, error) {
	content := magicLinkContent{DisplayName: displayName, Link: link, ExpiresIn: formatExpiry(expiresIn)}
	textBody := fmt.Sprintf("Hi %s,\n\nUse this link to sign in to Movie Club:\n\n%s\n\nThe link expires in %s. If you did not ask for it you can ignore this email.\n", content.DisplayName, content.Link, content.ExpiresIn)

	var htmlBody strings.Builder
	if err := magicLinkHTML.Execute(&htmlBody, content); err != nil {
		return "", "", err
	}
	return textBody, htmlBody.String(), nil
}

func buildMagicLinkMessage(from, to, displayName, link string, expiresIn time.Duration) (*gomail.Message, error) {
	textBody, htmlBody, err := magicLinkBodies(displayName, link, expiresIn)
	if err != nil {
		return nil, err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Your Movie Club sign-in link")
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)
	return msg, nil
}

// formatExpiry renders a link lifetime as whole hours or minutes, rounding up.
func formatExpiry(d time.Duration) string {
	if d <= 0 {
		d = defaultMagicLinkTTL
	}
	if d >= time.Hour && d%time.Hour == 0 {
		return pluralize(int(d/time.Hour), "hour")
	}
	minutes := int((d + time.Minute - 1) / time.Minute)
	return pluralize(minutes, "minute")
}

func pluralize(count int, unit string) string {
	if count == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", count, unit)
}

// LogMailer writes magic links to the log. Used when no SMTP relay is configured.
type LogMailer struct {
	Logger *zap.Logger
}

func (m LogMailer) SendMagicLink(_ context.Context, to, _ string, link string, _ time.Duration) error {
	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("magic link issued", zap.String("email", to), zap.String("link", link))
	return nil
}

// LogSMSSender writes one-time codes to the log in place of an SMS gateway.
type LogSMSSender struct {
	Logger *zap.Logger
}

func (s LogSMSSender) SendCode(_ context.Context, phone, code string) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("sms code issued", zap.String("phone", phone), zap.String("code", code))
	return nil
}
