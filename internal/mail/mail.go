// Package mail delivers account emails over SMTP, or writes them to the log
// when SMTP is not configured.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	subjectVerification  = "Verify your Gatekeep email address"
	subjectPasswordReset = "Reset your Gatekeep password"
)

// VerificationLink builds the frontend link that confirms an email address.
func VerificationLink(frontendURL, token string) string {
	return strings.TrimRight(frontendURL, "/") + "/auth/verify-email?token=" + url.QueryEscape(token)
}

// PasswordResetLink builds the frontend link that opens the reset form.
func PasswordResetLink(frontendURL, token string) string {
	return strings.TrimRight(frontendURL, "/") + "/auth/reset-password?token=" + url.QueryEscape(token)
}

type templateData struct {
	Name string
	Link string
	Year int
}

func render(name string, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

// sendFunc matches smtp.SendMail so tests can capture outgoing messages.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends HTML mail through an SMTP relay.
type SMTPMailer struct {
	cfg         common.MailConfig
	frontendURL string
	logger      *common.Logger
	send        sendFunc
	now         func() time.Time
}

var _ interfaces.Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer creates a mailer for the [mail] config section.
func NewSMTPMailer(cfg common.MailConfig, frontendURL string, logger *common.Logger) *SMTPMailer {
	m := &SMTPMailer{cfg: cfg, frontendURL: frontendURL, logger: logger, now: time.Now}
	if cfg.Port == 465 {
		m.send = m.sendImplicitTLS
	} else {
		m.send = smtp.SendMail
	}
	return m
}

func (m *SMTPMailer) SendVerificationEmail(ctx context.Context, email, name, token string) error {
	return m.deliver(ctx, email, subjectVerification, "verification.html", templateData{
		Name: name,
		Link: VerificationLink(m.frontendURL, token),
	})
}

func (m *SMTPMailer) SendPasswordResetEmail(ctx context.Context, email, name, token string) error {
	return m.deliver(ctx, email, subjectPasswordReset, "password_reset.html", templateData{
		Name: name,
		Link: PasswordResetLink(m.frontendURL, token),
	})
}

func (m *SMTPMailer) deliver(ctx context.Context, to, subject, tmpl string, data templateData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data.Year = m.now().Year()
	body, err := render(tmpl, data)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}
	msg := buildMessage(m.cfg.From, to, subject, body)
	if err := m.send(addr, auth, envelopeAddress(m.cfg.From), []string{to}, msg); err != nil {
		m.logger.Error().Err(err).Str("to", to).Str("subject", subject).Msg("Failed to send email")
		return fmt.Errorf("failed to send email: %w", err)
	}
	m.logger.Info().Str("to", to).Str("subject", subject).Msg("Email sent")
	return nil
}

// sendImplicitTLS handles port 465, where TLS starts before the SMTP greeting.
func (m *SMTPMailer) sendImplicitTLS(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12})
	if err != nil {
		return err
	}
	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if a != nil {
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(from, to, subject, html string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	return []byte(b.String())
}

// envelopeAddress extracts the bare address from "Name <addr>".
func envelopeAddress(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.LastIndex(from, ">"); j > i {
			return from[i+1 : j]
		}
	}
	return strings.TrimSpace(from)
}

// LogMailer writes links to the log instead of sending mail. Used in
// development and whenever SMTP is disabled.
type LogMailer struct {
	frontendURL string
	logger      *common.Logger
}

var _ interfaces.Mailer = (*LogMailer)(nil)

// NewLogMailer creates a LogMailer.
func NewLogMailer(frontendURL string, logger *common.Logger) *LogMailer {
	return &LogMailer{frontendURL: frontendURL, logger: logger}
}

func (m *LogMailer) SendVerificationEmail(_ context.Context, email, name, token string) error {
	m.logger.Info().Str("to", email).Str("link", VerificationLink(m.frontendURL, token)).Msg("Verification email (mail disabled)")
	return nil
}

func (m *LogMailer) SendPasswordResetEmail(_ context.Context, email, name, token string) error {
	m.logger.Info().Str("to", email).Str("link", PasswordResetLink(m.frontendURL, token)).Msg("Password reset email (mail disabled)")
	return nil
}

// New returns the SMTP mailer when mail is enabled, else the log mailer.
func New(cfg common.MailConfig, frontendURL string, logger *common.Logger) interfaces.Mailer {
	if cfg.Enabled {
		return NewSMTPMailer(cfg, frontendURL, logger)
	}
	return NewLogMailer(frontendURL, logger)
}
