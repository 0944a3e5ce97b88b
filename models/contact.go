package models

import (
	"time"

	"gorm.io/gorm"
)

// Contact represents a single outreach recipient. The email address is the
// identity used for reply matching within a user's contact set.
type Contact struct {
	gorm.Model
	UserID uint `gorm:"not null;index:idx_contacts_user_email" json:"user_id"`

	Email        string `gorm:"not null;index:idx_contacts_user_email" json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	BusinessName string `json:"business_name"`
	JobTitle     string `json:"job_title"`
	Phone        string `json:"phone"`
	City         string `json:"city"`
	State        string `json:"state"`
	Country      string `json:"country"`
	LinkedInURL  string `json:"linkedin_url"`

	// Metadata
	Source      string     `json:"source"` // manual, csv, api
	EmailsSent  int        `gorm:"default:0" json:"emails_sent"`
	LastContact *time.Time `json:"last_contact"`

	// Relations
	User User `json:"-"`
}

// Template represents an email template used by campaigns and follow-ups
type Template struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name        string `gorm:"not null" json:"name"`
	Subject     string `gorm:"not null" json:"subject"`
	HTMLContent string `gorm:"type:text" json:"html_content"`

	// Relations
	User User `json:"-"`
}
