// Package email sends notification mail over SMTP.
package email

import (
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Mailer sends HTML mail via an SMTP relay.
type Mailer struct {
	dialer      *gomail.Dialer
	fromName    string
	fromAddress string
	logger      *zap.Logger
}

// Config holds SMTP settings.
type Config struct {
	Host        string
	Port        int
	User        string
	Pass        string
	FromName    string
	FromAddress string
}

// NewMailer creates an SMTP mailer. With an empty host the mailer is a no-op
// that only logs, so local setups work without a relay.
func NewMailer(cfg Config, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Mailer{
		fromName:    cfg.FromName,
		fromAddress: cfg.FromAddress,
		logger:      logger,
	}
	if cfg.Host != "" {
		m.dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass)
	}
	return m
}

// Send delivers one HTML message.
func (m *Mailer) Send(to, subject, htmlBody string) error {
	if m.dialer == nil {
		m.logger.Info("smtp not configured, dropping email",
			zap.String("to", to), zap.String("subject", subject))
		return nil
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", fmt.Sprintf("%s <%s>", m.fromName, m.fromAddress))
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
