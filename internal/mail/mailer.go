// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

// Package mail delivers transactional email over SMTP.
package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/oops"
	gomail "github.com/wneessen/go-mail"
)

// DefaultSendTimeout bounds one SMTP delivery, dial included.
const DefaultSendTimeout = 10 * time.Second

// Config holds SMTP delivery settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// From is the envelope sender. Empty means Username.
	From string

	// SiteURL is the public base URL reset links point at.
	SiteURL string

	// SendTimeout bounds one delivery. Zero means DefaultSendTimeout.
	SendTimeout time.Duration
}

// SMTPMailer sends mail through a submission relay with STARTTLS, satisfying
// auth.ResetMailer.
type SMTPMailer struct {
	cfg Config
}

// NewSMTPMailer creates an SMTPMailer.
func NewSMTPMailer(cfg Config) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("smtp credentials are required")
	}
	if cfg.SiteURL == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("site url is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	return &SMTPMailer{cfg: cfg}, nil
}

// SendPasswordReset mails a reset link carrying the token to the recipient.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, recipient, token string) error {
	msg, err := m.buildResetMessage(recipient, token)
	if err != nil {
		return err
	}

	client, err := gomail.NewClient(m.cfg.Host,
		gomail.WithPort(m.cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(m.cfg.Username),
		gomail.WithPassword(m.cfg.Password),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
		gomail.WithTimeout(m.cfg.SendTimeout),
	)
	if err != nil {
		return oops.Code("MAIL_CLIENT_FAILED").
			With("operation", "create smtp client").
			With("host", m.cfg.Host).
			Wrap(err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.SendTimeout)
	defer cancel()

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("operation", "send reset email").
			With("host", m.cfg.Host).
			Wrap(err)
	}
	return nil
}

func (m *SMTPMailer) buildResetMessage(recipient, token string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, oops.Code("MAIL_MESSAGE_INVALID").
			With("operation", "set sender").
			Wrap(err)
	}
	if err := msg.To(recipient); err != nil {
		return nil, oops.Code("MAIL_MESSAGE_INVALID").
			With("operation", "set recipient").
			Wrap(err)
	}

	url := resetURL(m.cfg.SiteURL, token)
	msg.Subject("Admin password reset")
	msg.SetBodyString(gomail.TypeTextPlain, resetTextBody(url))
	msg.AddAlternativeString(gomail.TypeTextHTML, resetHTMLBody(url))
	return msg, nil
}

// resetURL builds the link the recipient clicks. The token rides in the query
// string and the admin frontend picks it up from there.
func resetURL(siteURL, token string) string {
	return strings.TrimRight(siteURL, "/") + "/auth?reset_token=" + token
}

func resetTextBody(url string) string {
	return fmt.Sprintf(`Hello!

A password reset was requested for the admin panel.

Follow this link to set a new password:
%s

The link is valid for 1 hour.

If you did not request a reset, you can safely ignore this message.
`, url)
}

func resetHTMLBody(url string) string {
	return fmt.Sprintf(`<html>
  <body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
      <h2>Password reset</h2>
      <p>Hello!</p>
      <p>A password reset was requested for the admin panel.</p>
      <p style="margin: 30px 0;">
        <a href="%s"
           style="background-color: #5D4037; color: white; padding: 12px 24px;
                  text-decoration: none; border-radius: 4px; display: inline-block;">
          Reset password
        </a>
      </p>
      <p style="color: #666; font-size: 14px;">The link is valid for 1 hour.</p>
      <p style="color: #666; font-size: 14px;">
        If you did not request a reset, you can safely ignore this message.
      </p>
    </div>
  </body>
</html>
`, url)
}
