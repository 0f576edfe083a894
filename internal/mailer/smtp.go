// Package mailer delivers one-time codes over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	mail "github.com/go-mail/mail"
	"go.uber.org/zap"

	"github.com/davitran/accountd/internal/observability/logger"
)

// Config holds SMTP connection settings. An empty Username skips auth, which
// suits local catch-all servers like MailHog.
type Config struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	SSL      bool
}

// SMTPSender implements account.Mailer. Each send dials a fresh connection;
// code emails are rare enough that pooling is not worth carrying.
type SMTPSender struct {
	cfg Config
	log *zap.Logger
}

func NewSMTPSender(cfg Config) *SMTPSender {
	return &SMTPSender{cfg: cfg, log: logger.Named("mailer")}
}

func (s *SMTPSender) SendRegistrationCode(ctx context.Context, to, code string, validFor time.Duration) error {
	return s.send(ctx, to, "Your registration code", registrationEmail(code, validFor))
}

func (s *SMTPSender) SendPasswordResetCode(ctx context.Context, to, code string, validFor time.Duration) error {
	return s.send(ctx, to, "Your password reset code", passwordResetEmail(code, validFor))
}

func (s *SMTPSender) send(ctx context.Context, to, subject string, body emailBody) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body.text)
	m.AddAlternative("text/html", body.html)

	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.SSL = s.cfg.SSL
	d.TLSConfig = &tls.Config{ServerName: s.cfg.Host}

	if err := d.DialAndSend(m); err != nil {
		s.log.Error("smtp send failed",
			zap.String("host", s.cfg.Host),
			zap.String("subject", subject),
			zap.Error(err))
		return fmt.Errorf("smtp send: %w", err)
	}

	s.log.Debug("email sent", zap.String("subject", subject))
	return nil
}
