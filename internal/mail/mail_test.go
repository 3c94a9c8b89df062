package mail

import (
	"bytes"
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/gatekeep/internal/common"
)

type captured struct {
	addr string
	from string
	to   []string
	msg  string
}

func testMailer(t *testing.T, fail error) (*SMTPMailer, *captured) {
	t.Helper()
	c := &captured{}
	m := NewSMTPMailer(common.MailConfig{
		Enabled: true, Host: "smtp.example.com", Port: 587,
		User: "mailer", Password: "pw", From: "Gatekeep <noreply@example.com>",
	}, "https://app.example.com/", common.NewSilentLogger())
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		c.addr, c.from, c.to, c.msg = addr, from, to, string(msg)
		return fail
	}
	return m, c
}

func TestSMTPMailer_Verification(t *testing.T) {
	m, c := testMailer(t, nil)

	require.NoError(t, m.SendVerificationEmail(context.Background(), "alice@example.com", "Alice", "abc123"))

	assert.Equal(t, "smtp.example.com:587", c.addr)
	assert.Equal(t, "noreply@example.com", c.from)
	assert.Equal(t, []string{"alice@example.com"}, c.to)
	assert.Contains(t, c.msg, "Subject: "+subjectVerification)
	assert.Contains(t, c.msg, "https://app.example.com/auth/verify-email?token=abc123")
	assert.Contains(t, c.msg, "Hi Alice,")
}

func TestSMTPMailer_PasswordResetEscapesName(t *testing.T) {
	m, c := testMailer(t, nil)

	require.NoError(t, m.SendPasswordResetEmail(context.Background(), "bob@example.com", "<b>Bob</b>", "tok"))

	assert.Contains(t, c.msg, "/auth/reset-password?token=tok")
	assert.NotContains(t, c.msg, "<b>Bob</b>")
}

func TestSMTPMailer_SendFailure(t *testing.T) {
	m, _ := testMailer(t, errors.New("connection refused"))

	err := m.SendVerificationEmail(context.Background(), "a@example.com", "A", "t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestLogMailer_WritesLink(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer("http://localhost:3001", common.NewLoggerWithOutput("info", &buf))

	require.NoError(t, m.SendPasswordResetEmail(context.Background(), "a@example.com", "A", "xyz"))
	assert.Contains(t, buf.String(), "http://localhost:3001/auth/reset-password?token=xyz")
}

func TestNew_SelectsImplementation(t *testing.T) {
	log := common.NewSilentLogger()
	assert.IsType(t, &LogMailer{}, New(common.MailConfig{}, "", log))
	assert.IsType(t, &SMTPMailer{}, New(common.MailConfig{Enabled: true, Port: 465}, "", log))
}

func TestEnvelopeAddress(t *testing.T) {
	assert.Equal(t, "noreply@example.com", envelopeAddress("Gatekeep <noreply@example.com>"))
	assert.Equal(t, "plain@example.com", envelopeAddress(" plain@example.com "))
}
