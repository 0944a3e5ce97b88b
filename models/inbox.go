package models

import (
	"time"

	"gorm.io/gorm"
)

// InboxMessage is a normalized inbound reply persisted after matching.
// Contact/campaign/send-record links are optional: a message may resolve only
// to a user, or (webhook path) not be persisted at all.
type InboxMessage struct {
	gorm.Model
	UserID            uint  `gorm:"not null;index" json:"user_id"`
	ContactID         *uint `gorm:"index" json:"contact_id"`
	CampaignID        *uint `gorm:"index" json:"campaign_id"`
	CampaignContactID *uint `gorm:"index" json:"campaign_contact_id"`

	FromAddress string    `gorm:"not null" json:"from_address"`
	ToAddress   string    `gorm:"not null" json:"to_address"`
	Subject     string    `json:"subject"`
	TextBody    string    `gorm:"type:text" json:"text_body"`
	HTMLBody    string    `gorm:"type:text" json:"html_body"`
	MessageID   string    `gorm:"index" json:"message_id"`
	InReplyTo   string    `gorm:"index" json:"in_reply_to"`
	Provider    string    `json:"provider"` // postmark, mailgun, sendgrid, imap, generic
	ReceivedAt  time.Time `gorm:"not null" json:"received_at"`
	IsRead      bool      `gorm:"default:false" json:"is_read"`

	// Relations
	User User `json:"-"`
}
