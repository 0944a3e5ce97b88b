package utils

import (
	"fmt"
	"time"

	"outreachly/config"
	"outreachly/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RunResult reports the outcome of one delivery loop invocation.
type RunResult struct {
	SentCount   int    `json:"sent_count"`
	FailedCount int    `json:"failed_count"`
	Status      string `json:"status"` // campaign status after the run
}

// CampaignSender drives one campaign's pending recipients through render,
// tracking injection, warmup admission and the provider cascade. Safe to
// re-invoke on a partially sent campaign: only pending records are picked up,
// and each is claimed with a conditional update before any network call, so
// two concurrent runs never double-send the same record.
type CampaignSender struct {
	DB            *gorm.DB
	Gateway       *ProviderGateway
	Warmup        *WarmupGovernor
	Logger        *logrus.Logger
	BaseURL       string
	SendDelay     time.Duration
	ExcludedHosts []string
	ResendAPIKey  string
}

func NewCampaignSender(db *gorm.DB, logger *logrus.Logger) *CampaignSender {
	cfg := config.AppConfig
	return &CampaignSender{
		DB:            db,
		Gateway:       NewProviderGateway(time.Duration(cfg.ProviderTimeoutSec)*time.Second, logger),
		Warmup:        NewWarmupGovernor(db),
		Logger:        logger,
		BaseURL:       cfg.BaseURL,
		SendDelay:     time.Duration(cfg.SendDelayMs) * time.Millisecond,
		ExcludedHosts: cfg.TrackingExcludedHosts,
		ResendAPIKey:  cfg.ResendAPIKey,
	}
}

// Run executes the delivery loop for one campaign owned by userID.
func (cs *CampaignSender) Run(campaignID, userID uint) (*RunResult, error) {
	var campaign models.Campaign
	if err := cs.DB.Where("id = ? AND user_id = ?", campaignID, userID).First(&campaign).Error; err != nil {
		return nil, fmt.Errorf("campaign not found: %w", err)
	}

	switch campaign.Status {
	case models.CampaignStatusDraft, models.CampaignStatusScheduled,
		models.CampaignStatusRunning, models.CampaignStatusPaused:
		// eligible
	default:
		return nil, fmt.Errorf("campaign is %s and cannot send", campaign.Status)
	}

	if campaign.TemplateID == nil {
		cs.failCampaign(&campaign, "campaign has no template")
		return nil, fmt.Errorf("campaign has no template")
	}
	var tmpl models.Template
	if err := cs.DB.First(&tmpl, *campaign.TemplateID).Error; err != nil {
		cs.failCampaign(&campaign, "campaign template not found")
		return nil, fmt.Errorf("campaign template not found: %w", err)
	}

	creds, settings, err := cs.LoadCredentials(userID)
	if err != nil {
		cs.failCampaign(&campaign, err.Error())
		return nil, err
	}
	domain := ExtractDomain(settings.FromEmail)

	updates := map[string]interface{}{"status": models.CampaignStatusRunning}
	if campaign.StartedAt == nil {
		updates["started_at"] = time.Now()
	}
	if err := cs.DB.Model(&campaign).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to mark campaign running: %w", err)
	}

	var records []models.CampaignContact
	if err := cs.DB.Preload("Contact").
		Where("campaign_id = ? AND status = ?", campaign.ID, models.SendStatusPending).
		Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load pending records: %w", err)
	}

	result := &RunResult{}
	paused := false

	for i := range records {
		record := &records[i]

		// External stop between records: re-read status at the boundary.
		var status string
		if err := cs.DB.Model(&models.Campaign{}).
			Where("id = ?", campaign.ID).
			Pluck("status", &status).Error; err == nil && status != models.CampaignStatusRunning {
			cs.Logger.WithField("campaign_id", campaign.ID).Info("campaign no longer running, stopping loop")
			result.Status = status
			return result, nil
		}

		// Claim the record before any network call. Losing the claim means a
		// concurrent loop already owns it.
		claim := cs.DB.Model(&models.CampaignContact{}).
			Where("id = ? AND status = ?", record.ID, models.SendStatusPending).
			Update("status", models.SendStatusSending)
		if claim.Error != nil || claim.RowsAffected == 0 {
			continue
		}

		allowed, err := cs.Warmup.Reserve(userID, domain)
		if err != nil {
			cs.Logger.WithError(err).Error("warmup reservation failed")
			cs.unclaim(record.ID)
			continue
		}
		if !allowed {
			cs.unclaim(record.ID)
			cs.pauseCampaign(&campaign)
			paused = true
			break
		}

		rendered := RenderTemplate(tmpl.Subject, tmpl.HTMLContent, &record.Contact)
		trackedBody := InjectTracking(rendered.Body, cs.BaseURL, record.ID, cs.ExcludedHosts)
		messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), domain)

		outcome, sendErr := cs.Gateway.Send(creds, &SendRequest{
			FromEmail: settings.FromEmail,
			FromName:  settings.FromName,
			To:        record.Contact.Email,
			Subject:   rendered.Subject,
			HTMLBody:  trackedBody,
			MessageID: messageID,
		})

		if sendErr != nil {
			result.FailedCount++
			cs.markFailed(&campaign, record, sendErr)
			if err := cs.Warmup.Release(userID, domain); err != nil {
				cs.Logger.WithError(err).Warn("failed to release warmup slot")
			}
		} else {
			result.SentCount++
			cs.markSent(&campaign, record, messageID, outcome)
		}

		// Small fixed delay between sends to stay under provider burst limits.
		time.Sleep(cs.SendDelay)
	}

	if paused {
		result.Status = models.CampaignStatusPaused
		return result, nil
	}

	final := models.CampaignStatusCompleted
	if result.SentCount == 0 && result.FailedCount > 0 {
		final = models.CampaignStatusFailed
	}

	// Finalize only when no records remain open. A concurrent run that still
	// holds claims finishes the campaign itself; the guard is a subquery inside
	// the UPDATE so there is no window between the check and the write.
	open := cs.DB.Model(&models.CampaignContact{}).
		Select("count(*)").
		Where("campaign_id = ? AND status IN ?", campaign.ID,
			[]string{models.SendStatusPending, models.SendStatusSending})
	res := cs.DB.Model(&models.Campaign{}).
		Where("id = ? AND (?) = 0", campaign.ID, open).
		Updates(map[string]interface{}{
			"status":       final,
			"completed_at": time.Now(),
		})
	if res.Error != nil {
		cs.Logger.WithError(res.Error).Error("failed to finalize campaign status")
	}
	if res.Error == nil && res.RowsAffected == 0 {
		cs.Logger.WithField("campaign_id", campaign.ID).
			Info("records still in flight elsewhere, leaving campaign running")
		result.Status = models.CampaignStatusRunning
		return result, nil
	}
	result.Status = final

	cs.Logger.WithFields(logrus.Fields{
		"campaign_id": campaign.ID,
		"sent":        result.SentCount,
		"failed":      result.FailedCount,
		"status":      final,
	}).Info("delivery loop finished")

	return result, nil
}

// LoadCredentials decrypts the user's provider credentials and injects the
// global fallback key. Shared with the follow-up dispatcher.
func (cs *CampaignSender) LoadCredentials(userID uint) (*Credentials, *models.EmailSettings, error) {
	var settings models.EmailSettings
	if err := cs.DB.Where("user_id = ?", userID).First(&settings).Error; err != nil {
		return nil, nil, fmt.Errorf("email settings not found: %w", err)
	}

	smtpPassword, err := Decrypt(settings.SMTPPassword)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt smtp password: %w", err)
	}
	sendGridKey, err := Decrypt(settings.SendGridAPIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt sendgrid key: %w", err)
	}
	mailgunKey, err := Decrypt(settings.MailgunAPIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt mailgun key: %w", err)
	}

	return &Credentials{
		SMTPHost:       settings.SMTPHost,
		SMTPPort:       settings.SMTPPort,
		SMTPUsername:   settings.SMTPUsername,
		SMTPPassword:   smtpPassword,
		SendGridAPIKey: sendGridKey,
		MailgunAPIKey:  mailgunKey,
		MailgunDomain:  settings.MailgunDomain,
		ResendAPIKey:   cs.ResendAPIKey,
	}, &settings, nil
}

func (cs *CampaignSender) markSent(campaign *models.Campaign, record *models.CampaignContact, messageID string, outcome *SendOutcome) {
	now := time.Now()
	if err := cs.DB.Model(record).Updates(map[string]interface{}{
		"status":     models.SendStatusSent,
		"sent_at":    now,
		"message_id": messageID,
		"provider":   outcome.Provider,
	}).Error; err != nil {
		cs.Logger.WithError(err).Error("failed to mark record sent")
	}

	cs.DB.Model(campaign).Update("sent_count", gorm.Expr("sent_count + 1"))
	cs.DB.Model(&models.Contact{}).Where("id = ?", record.ContactID).Updates(map[string]interface{}{
		"emails_sent":  gorm.Expr("emails_sent + 1"),
		"last_contact": now,
	})

	cs.recordActivity(campaign.UserID, "email_sent", record.ID, map[string]interface{}{
		"campaign_id": campaign.ID,
		"contact_id":  record.ContactID,
		"provider":    outcome.Provider,
		"demo":        outcome.Demo,
	})
}

func (cs *CampaignSender) markFailed(campaign *models.Campaign, record *models.CampaignContact, sendErr error) {
	if err := cs.DB.Model(record).Updates(map[string]interface{}{
		"status":        models.SendStatusFailed,
		"error_message": sendErr.Error(),
	}).Error; err != nil {
		cs.Logger.WithError(err).Error("failed to mark record failed")
	}

	cs.DB.Model(campaign).Update("failed_count", gorm.Expr("failed_count + 1"))

	cs.recordActivity(campaign.UserID, "email_failed", record.ID, map[string]interface{}{
		"campaign_id": campaign.ID,
		"contact_id":  record.ContactID,
		"error":       sendErr.Error(),
	})
}

func (cs *CampaignSender) unclaim(recordID uint) {
	cs.DB.Model(&models.CampaignContact{}).
		Where("id = ? AND status = ?", recordID, models.SendStatusSending).
		Update("status", models.SendStatusPending)
}

func (cs *CampaignSender) pauseCampaign(campaign *models.Campaign) {
	cs.Logger.WithField("campaign_id", campaign.ID).Info("warmup budget exhausted, pausing campaign")
	if err := cs.DB.Model(campaign).Update("status", models.CampaignStatusPaused).Error; err != nil {
		cs.Logger.WithError(err).Error("failed to pause campaign")
	}
}

func (cs *CampaignSender) failCampaign(campaign *models.Campaign, reason string) {
	cs.Logger.WithFields(logrus.Fields{
		"campaign_id": campaign.ID,
		"reason":      reason,
	}).Error("campaign failed before sending")
	cs.DB.Model(campaign).Updates(map[string]interface{}{
		"status":       models.CampaignStatusFailed,
		"completed_at": time.Now(),
	})
}

func (cs *CampaignSender) recordActivity(userID uint, action string, recordID uint, metadata map[string]interface{}) {
	activity := models.ActivityLog{
		UserID:     userID,
		Action:     action,
		EntityType: "campaign_contact",
		EntityID:   recordID,
		Metadata:   metadata,
	}
	if err := cs.DB.Create(&activity).Error; err != nil {
		cs.Logger.WithError(err).Warn("failed to record activity")
	}
}
