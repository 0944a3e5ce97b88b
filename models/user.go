package models

import (
	"gorm.io/gorm"
)

// User represents an account that owns campaigns, contacts and settings
type User struct {
	gorm.Model

	Email         string `gorm:"uniqueIndex;not null" json:"email"`
	Name          string `json:"name"`
	Company       string `json:"company"`
	Timezone      string `gorm:"default:'UTC'" json:"timezone"`
	IsActive      bool   `gorm:"default:true" json:"is_active"`
	EmailVerified bool   `gorm:"default:false" json:"email_verified"`

	// Relations
	Campaigns []Campaign `gorm:"foreignKey:UserID" json:"campaigns,omitempty"`
	Contacts  []Contact  `gorm:"foreignKey:UserID" json:"contacts,omitempty"`
}
