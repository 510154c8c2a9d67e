// Package mailer sends the account e-mails of the TaskZen server.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/emersion/go-message/mail"
	"gopkg.in/gomail.v2"

	"github.com/nhle/taskzen/internal/model"
)

const verificationSubject = "Verify your TaskZen email address"

// Mailer delivers account e-mails.
type Mailer interface {
	SendVerification(ctx context.Context, to, link string) error
}

// SMTPMailer composes messages with go-message and delivers them over SMTP.
type SMTPMailer struct {
	from string
	dial func() (gomail.SendCloser, error)
	now  func() time.Time
}

// NewSMTPMailer returns a mailer for the configured SMTP relay.
func NewSMTPMailer(cfg model.SMTPConfig) *SMTPMailer {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &SMTPMailer{
		from: from,
		dial: dialer.Dial,
		now:  time.Now,
	}
}

// SendVerification mails the verification link to the given address.
func (m *SMTPMailer) SendVerification(ctx context.Context, to, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := composeVerification(&buf, m.from, to, link, m.now()); err != nil {
		return fmt.Errorf("composing verification email: %w", err)
	}

	sc, err := m.dial()
	if err != nil {
		return fmt.Errorf("connecting to smtp server: %w", err)
	}
	defer sc.Close()

	if err := sc.Send(m.from, []string{to}, &buf); err != nil {
		return fmt.Errorf("sending verification email to %s: %w", to, err)
	}
	return nil
}

// composeVerification writes a multipart/alternative message carrying a
// plain-text and an HTML body.
func composeVerification(w io.Writer, from, to, link string, date time.Time) error {
	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return fmt.Errorf("parsing sender %q: %w", from, err)
	}
	toAddr, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("parsing recipient %q: %w", to, err)
	}

	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{fromAddr})
	h.SetAddressList("To", []*mail.Address{toAddr})
	h.SetSubject(verificationSubject)
	if err := h.GenerateMessageID(); err != nil {
		return fmt.Errorf("generating message id: %w", err)
	}

	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return err
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return err
	}

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", fmt.Sprintf(
			"Welcome to TaskZen!\r\n\r\nConfirm your email address by opening this link:\r\n\r\n%s\r\n\r\n"+
				"If you did not create an account, you can ignore this email.\r\n", link)},
		{"text/html", fmt.Sprintf(
			`<h2>Welcome to TaskZen!</h2>
<p>Confirm your email address by opening the link below.</p>
<p><a href="%[1]s">%[1]s</a></p>
<p>If you did not create an account, you can ignore this email.</p>`, link)},
	}
	for _, p := range parts {
		var ih mail.InlineHeader
		ih.SetContentType(p.contentType, map[string]string{"charset": "utf-8"})
		pw, err := tw.CreatePart(ih)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(pw, p.body); err != nil {
			return err
		}
		if err := pw.Close(); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return mw.Close()
}

// LogMailer logs verification links instead of sending them. It is used
// when no SMTP relay is configured.
type LogMailer struct {
	logger *log.Logger
}

// NewLogMailer returns a mailer writing to l, or to stderr when l is nil.
func NewLogMailer(l *log.Logger) *LogMailer {
	if l == nil {
		l = log.New(os.Stderr, "[mailer] ", log.LstdFlags)
	}
	return &LogMailer{logger: l}
}

func (m *LogMailer) SendVerification(_ context.Context, to, link string) error {
	m.logger.Printf("verification link for %s: %s", to, link)
	return nil
}

// New picks the SMTP mailer when a relay is configured and the log mailer
// otherwise.
func New(cfg model.SMTPConfig) Mailer {
	if cfg.Host == "" {
		return NewLogMailer(nil)
	}
	return NewSMTPMailer(cfg)
}
