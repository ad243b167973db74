package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"referral-platform/internal/config"
)

// Mailer delivers one-time codes to users
type Mailer interface {
	SendOTP(to, code string) error
}

// SMTPMailer sends mail through a configured SMTP server
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// NewSMTPMailer creates an SMTP-backed mailer
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// SendOTP sends the OTP to the user's email address
func (m *SMTPMailer) SendOTP(to, code string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.Sender)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Your verification code")
	msg.SetBody("text/plain", "Your verification code is: "+code)

	d := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.User, m.cfg.Password)

	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send OTP email to %s: %w", to, err)
	}

	return nil
}
