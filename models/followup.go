package models

import (
	"time"

	"gorm.io/gorm"
)

// Follow-up trigger conditions evaluated against completed campaigns
const (
	TriggerNotOpened        = "not_opened"
	TriggerOpenedNotClicked = "opened_not_clicked"
	TriggerClicked          = "clicked"
)

const (
	SequenceStatusActive = "active"
	SequenceStatusPaused = "paused"
)

// FollowUpSequence is a rule that conditionally schedules a second message to
// recipients of a completed campaign based on their engagement with the first.
type FollowUpSequence struct {
	gorm.Model
	UserID     uint `gorm:"not null;index" json:"user_id"`
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`

	Name        string `json:"name"`
	TriggerType string `gorm:"not null" json:"trigger_type"`
	DelayHours  int    `gorm:"not null" json:"delay_hours"`
	Subject     string `gorm:"not null" json:"subject"`
	Content     string `gorm:"type:text" json:"content"`
	Status      string `gorm:"default:'active'" json:"status"`

	// Relations
	Campaign Campaign `json:"-"`
}

const (
	QueueStatusPending = "pending"
	QueueStatusSending = "sending"
	QueueStatusSent    = "sent"
	QueueStatusFailed  = "failed"
)

// FollowUpQueueEntry schedules one follow-up send. At most one entry exists
// per (sequence, send record) pair, enforced by an existence check on enqueue.
type FollowUpQueueEntry struct {
	gorm.Model
	SequenceID        uint `gorm:"not null;index:idx_followup_seq_record" json:"sequence_id"`
	CampaignContactID uint `gorm:"not null;index:idx_followup_seq_record" json:"campaign_contact_id"`

	ScheduledAt  time.Time  `gorm:"not null;index" json:"scheduled_at"`
	Status       string     `gorm:"default:'pending';index" json:"status"`
	ErrorMessage string     `json:"error_message"`
	SentAt       *time.Time `json:"sent_at"`

	// Relations
	Sequence        FollowUpSequence `json:"-"`
	CampaignContact CampaignContact  `json:"-"`
}
