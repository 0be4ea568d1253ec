// Package mailer delivers verification passcodes over SMTP.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config describes the SMTP transport used for passcode delivery.
type Config struct {
	Host     string `env:"HDNOTES_SMTP_HOST" envDefault:"smtp.gmail.com"`
	Port     int    `env:"HDNOTES_SMTP_PORT" envDefault:"587"`
	Username string `env:"HDNOTES_EMAIL_USER"`
	Password string `env:"HDNOTES_EMAIL_PASS"`
	From     string `env:"HDNOTES_EMAIL_FROM"`
}

// LoadConfigFromEnv reads mail transport configuration.
//
// Missing credentials are a startup error: a server that cannot dispatch
// passcodes would fail every signup and login request it accepts.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse mailer env: %w", err)
	}
	if strings.TrimSpace(cfg.Username) == "" {
		return Config{}, fmt.Errorf("HDNOTES_EMAIL_USER is required")
	}
	if strings.TrimSpace(cfg.Password) == "" {
		return Config{}, fmt.Errorf("HDNOTES_EMAIL_PASS is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		cfg.From = cfg.Username
	}
	return cfg, nil
}

// sendMailFunc matches smtp.SendMail, injectable for tests.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP sends passcode email through a plain-auth SMTP relay.
type SMTP struct {
	cfg      Config
	codeTTL  time.Duration
	sendMail sendMailFunc
}

// NewSMTP builds an SMTP mailer. codeTTL is only used for the message copy
// and should match the issuer's expiry.
func NewSMTP(cfg Config, codeTTL time.Duration) *SMTP {
	if codeTTL <= 0 {
		codeTTL = 10 * time.Minute
	}
	return &SMTP{cfg: cfg, codeTTL: codeTTL, sendMail: smtp.SendMail}
}

// SendOTP delivers a passcode to the address. The error result is the
// caller's only signal that the code was not sent.
func (m *SMTP) SendOTP(ctx context.Context, email, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := strings.Join([]string{
		fmt.Sprintf("From: \"HD Notes\" <%s>", m.cfg.From),
		"To: " + email,
		"Subject: Your Verification Code",
		"",
		fmt.Sprintf("Your verification code is: %s. It will expire in %d minutes.", code, int(m.codeTTL.Minutes())),
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := m.sendMail(addr, auth, m.cfg.From, []string{email}, []byte(msg)); err != nil {
		return fmt.Errorf("send passcode email: %w", err)
	}
	return nil
}
