package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	WarmupStatusActive = "active"
	WarmupStatusPaused = "paused"
)

// WarmupSchedule tracks the ramp-up of a sending domain's daily volume.
// current_daily_limit grows by increment_per_day once per calendar day,
// triggered lazily by the first send attempt of that day, until it reaches
// target_daily_limit. emails_sent_today resets at the same transition.
type WarmupSchedule struct {
	gorm.Model
	UserID uint   `gorm:"not null;index:idx_warmup_user_domain,unique" json:"user_id"`
	Domain string `gorm:"not null;index:idx_warmup_user_domain,unique" json:"domain"`

	CurrentDailyLimit int `gorm:"not null" json:"current_daily_limit"`
	TargetDailyLimit  int `gorm:"not null" json:"target_daily_limit"`
	IncrementPerDay   int `gorm:"not null" json:"increment_per_day"`
	EmailsSentToday   int `gorm:"default:0" json:"emails_sent_today"`

	LastSendDate *time.Time `json:"last_send_date"`
	Status       string     `gorm:"default:'active'" json:"status"`

	// Relations
	User User `json:"-"`
}
