package models

import (
	"gorm.io/gorm"
)

// EmailSettings holds per-user provider credentials. Read-only to the delivery
// subsystem. Passwords and API keys are encrypted in the application layer.
type EmailSettings struct {
	gorm.Model
	UserID uint `gorm:"not null;uniqueIndex" json:"user_id"`

	FromEmail string `gorm:"not null" json:"from_email"`
	FromName  string `json:"from_name"`

	// ========= SMTP Configuration =========
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `gorm:"default:587" json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"-"` // Encrypted in application layer

	// ========= HTTP API Providers =========
	SendGridAPIKey string `json:"-"` // Encrypted
	MailgunAPIKey  string `json:"-"` // Encrypted
	MailgunDomain  string `json:"mailgun_domain"`

	// ========= IMAP (reply polling) =========
	IMAPHost     string `json:"imap_host"`
	IMAPPort     int    `gorm:"default:993" json:"imap_port"`
	IMAPUsername string `json:"imap_username"`
	IMAPPassword string `json:"-"` // Encrypted

	// Relations
	User User `json:"-"`
}

// Sanitize blanks credentials before the record is returned to a client.
func (s *EmailSettings) Sanitize() {
	s.SMTPPassword = ""
	s.SendGridAPIKey = ""
	s.MailgunAPIKey = ""
	s.IMAPPassword = ""
}
