// Package mailer sends plain-text mail through the SMTP settings persisted
// by the admin surface.
package mailer

import (
	"fmt"
	"net/smtp"

	"p9e.in/mfgops/models"
)

// Send delivers a plain-text message using cfg.
func Send(cfg *models.SMTPConfig, to, subject, body string) error {
	if cfg == nil || cfg.Host == "" {
		return fmt.Errorf("no SMTP configuration available")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	message := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		cfg.FromAddress, to, subject, body)

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return smtp.SendMail(addr, auth, cfg.FromAddress, []string{to}, []byte(message))
}
