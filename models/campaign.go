package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign statuses. Transitions are monotonic forward except running->paused
// (warmup exhaustion or external stop); a completed or failed campaign never
// sends again.
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusRunning   = "running"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
	CampaignStatusFailed    = "failed"
)

// Campaign represents an email campaign
type Campaign struct {
	gorm.Model
	UserID     uint  `gorm:"not null;index" json:"user_id"`
	TemplateID *uint `gorm:"index" json:"template_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`

	// Scheduling
	Status      string     `gorm:"default:'draft'" json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	// Statistics (denormalized for performance)
	TotalRecipients int `gorm:"default:0" json:"total_recipients"`
	SentCount       int `gorm:"default:0" json:"sent_count"`
	FailedCount     int `gorm:"default:0" json:"failed_count"`
	OpenCount       int `gorm:"default:0" json:"open_count"`
	ClickCount      int `gorm:"default:0" json:"click_count"`
	ReplyCount      int `gorm:"default:0" json:"reply_count"`

	// Relations
	Template *Template         `json:"template,omitempty"`
	Contacts []CampaignContact `gorm:"foreignKey:CampaignID" json:"contacts,omitempty"`
}

// CampaignContact statuses. "sending" is the in-flight claim marker that
// serializes concurrent delivery loops on the same campaign.
const (
	SendStatusPending = "pending"
	SendStatusSending = "sending"
	SendStatusSent    = "sent"
	SendStatusFailed  = "failed"
	SendStatusReplied = "replied"
)

// CampaignContact is the per-(campaign, contact) send record and the unit of
// idempotent tracking: opened_at/clicked_at are set once, on first occurrence.
type CampaignContact struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index:idx_campaign_contact,unique" json:"campaign_id"`
	ContactID  uint `gorm:"not null;index:idx_campaign_contact,unique" json:"contact_id"`

	Status       string `gorm:"default:'pending';index" json:"status"`
	MessageID    string `gorm:"index" json:"message_id"` // outbound Message-ID, used for reply correlation
	Provider     string `json:"provider"`                // transport that accepted the message (smtp, sendgrid, mailgun, resend, demo)
	ErrorMessage string `json:"error_message"`

	SentAt    *time.Time `json:"sent_at"`
	OpenedAt  *time.Time `json:"opened_at"`
	ClickedAt *time.Time `json:"clicked_at"`

	// Relations
	Campaign Campaign `json:"-"`
	Contact  Contact  `json:"contact"`
}

// EmailEvent event types
const (
	EventTypeOpen  = "open"
	EventTypeClick = "click"
)

// EmailEvent is an append-only log row per tracked interaction. Never mutated
// or deleted; source of truth for the send record's first-touch timestamps.
type EmailEvent struct {
	gorm.Model
	CampaignContactID uint `gorm:"not null;index" json:"campaign_contact_id"`

	EventType string `gorm:"not null" json:"event_type"`
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	TargetURL string `json:"target_url"` // click events only
}

// ActivityLog is the audit trail for delivery and inbound processing
type ActivityLog struct {
	gorm.Model
	UserID uint `gorm:"index" json:"user_id"`

	Action     string                 `gorm:"not null" json:"action"` // email_sent, email_failed, reply_matched, ...
	EntityType string                 `json:"entity_type"`
	EntityID   uint                   `json:"entity_id"`
	Metadata   map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"metadata"`
}
