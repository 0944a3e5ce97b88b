package controller

import (
	"log"
	"time"

	"outreachly/models"
	"outreachly/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type TrackingController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewTrackingController(db *gorm.DB, logger *log.Logger) *TrackingController {
	return &TrackingController{DB: db, Logger: logger}
}

// HandleTracking records open/click events from pixel requests and link
// redirects. Tracking is advisory: any internal failure is logged and masked,
// the caller always gets the pixel or the redirect, never a 5xx.
func (tc *TrackingController) HandleTracking(c *fiber.Ctx) error {
	recordID := utils.ParseUint(c.Query("id"))
	event := c.Query("event")
	targetURL := c.Query("url")

	if recordID != 0 {
		switch event {
		case models.EventTypeOpen:
			tc.recordEvent(recordID, models.EventTypeOpen, "", c.IP(), c.Get("User-Agent"))
		case models.EventTypeClick:
			tc.recordEvent(recordID, models.EventTypeClick, targetURL, c.IP(), c.Get("User-Agent"))
		default:
			tc.Logger.Printf("tracking request with unknown event %q for record %d", event, recordID)
		}
	}

	if event == models.EventTypeClick && targetURL != "" {
		return c.Redirect(targetURL, fiber.StatusFound)
	}

	c.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Set("Pragma", "no-cache")
	return c.Type("gif").Send(transparentPixel())
}

// recordEvent appends the EmailEvent row and applies the set-once first-touch
// timestamp. The event log always grows; the timestamp CAS wins only on the
// first occurrence, which makes replayed webhook deliveries harmless.
func (tc *TrackingController) recordEvent(recordID uint, eventType, targetURL, ip, userAgent string) {
	var record models.CampaignContact
	if err := tc.DB.First(&record, recordID).Error; err != nil {
		tc.Logger.Printf("tracking event for unknown record %d: %v", recordID, err)
		return
	}

	event := models.EmailEvent{
		CampaignContactID: record.ID,
		EventType:         eventType,
		IPAddress:         ip,
		UserAgent:         userAgent,
		TargetURL:         targetURL,
	}
	if err := tc.DB.Create(&event).Error; err != nil {
		tc.Logger.Printf("failed to append email event: %v", err)
	}

	column := "opened_at"
	counter := "open_count"
	if eventType == models.EventTypeClick {
		column = "clicked_at"
		counter = "click_count"
	}

	res := tc.DB.Model(&models.CampaignContact{}).
		Where("id = ? AND "+column+" IS NULL", record.ID).
		Update(column, time.Now())
	if res.Error != nil {
		tc.Logger.Printf("failed to set %s: %v", column, res.Error)
		return
	}

	// Campaign counters track unique first touches only.
	if res.RowsAffected == 1 {
		if err := tc.DB.Model(&models.Campaign{}).
			Where("id = ?", record.CampaignID).
			Update(counter, gorm.Expr(counter+" + 1")).Error; err != nil {
			tc.Logger.Printf("failed to bump campaign %s: %v", counter, err)
		}
	}
}

func transparentPixel() []byte {
	// 1x1 transparent GIF
	return []byte{
		0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
		0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x21,
		0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00,
		0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44,
		0x01, 0x00, 0x3b,
	}
}
