package worker

import (
	"context"
	"fmt"
	"time"

	"outreachly/models"
	"outreachly/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// staleness window: a follow-up whose computed send time is further in the
// past than this is dropped rather than sent late
const followUpStaleAfter = time.Hour

// FollowUpWorker runs the two follow-up passes on a fixed cadence. Enqueue
// evaluates trigger conditions against completed campaigns and materializes
// queue entries; dispatch sends the entries that have come due. The passes are
// independent so a dispatch failure never blocks scheduling.
type FollowUpWorker struct {
	DB       *gorm.DB
	Sender   *utils.CampaignSender
	Logger   *logrus.Logger
	Interval time.Duration
}

func NewFollowUpWorker(db *gorm.DB, sender *utils.CampaignSender, logger *logrus.Logger, interval time.Duration) *FollowUpWorker {
	return &FollowUpWorker{
		DB:       db,
		Sender:   sender,
		Logger:   logger,
		Interval: interval,
	}
}

func (fw *FollowUpWorker) Start(ctx context.Context) {
	fw.Logger.Info("follow-up worker started")

	ticker := time.NewTicker(fw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fw.Logger.Info("follow-up worker shutting down")
			return
		case <-ticker.C:
			fw.EnqueueDueFollowUps()
			fw.DispatchDueFollowUps()
		}
	}
}

// EnqueueDueFollowUps materializes queue entries for every active sequence on
// a completed campaign. Idempotent: at most one entry ever exists per
// (sequence, send record) pair.
func (fw *FollowUpWorker) EnqueueDueFollowUps() {
	var sequences []models.FollowUpSequence
	err := fw.DB.
		Joins("JOIN campaigns ON campaigns.id = follow_up_sequences.campaign_id").
		Where("follow_up_sequences.status = ? AND campaigns.status = ?",
			models.SequenceStatusActive, models.CampaignStatusCompleted).
		Find(&sequences).Error
	if err != nil {
		fw.Logger.WithError(err).Error("failed to fetch active sequences")
		return
	}

	for _, sequence := range sequences {
		fw.enqueueForSequence(&sequence)
	}
}

func (fw *FollowUpWorker) enqueueForSequence(sequence *models.FollowUpSequence) {
	query := fw.DB.Where("campaign_id = ? AND status = ?",
		sequence.CampaignID, models.SendStatusSent)

	switch sequence.TriggerType {
	case models.TriggerNotOpened:
		query = query.Where("opened_at IS NULL")
	case models.TriggerOpenedNotClicked:
		query = query.Where("opened_at IS NOT NULL AND clicked_at IS NULL")
	case models.TriggerClicked:
		query = query.Where("clicked_at IS NOT NULL")
	default:
		fw.Logger.WithField("sequence_id", sequence.ID).
			Warnf("unknown trigger type %q", sequence.TriggerType)
		return
	}

	var records []models.CampaignContact
	if err := query.Find(&records).Error; err != nil {
		fw.Logger.WithError(err).Error("failed to fetch trigger candidates")
		return
	}

	now := time.Now()
	for _, record := range records {
		triggerTime := triggerTimeFor(sequence.TriggerType, &record)
		if triggerTime == nil {
			continue
		}

		scheduledAt := triggerTime.Add(time.Duration(sequence.DelayHours) * time.Hour)
		if now.Sub(scheduledAt) > followUpStaleAfter {
			continue
		}

		var count int64
		fw.DB.Model(&models.FollowUpQueueEntry{}).
			Where("sequence_id = ? AND campaign_contact_id = ?", sequence.ID, record.ID).
			Count(&count)
		if count > 0 {
			continue
		}

		entry := models.FollowUpQueueEntry{
			SequenceID:        sequence.ID,
			CampaignContactID: record.ID,
			ScheduledAt:       scheduledAt,
			Status:            models.QueueStatusPending,
		}
		if err := fw.DB.Create(&entry).Error; err != nil {
			fw.Logger.WithError(err).Error("failed to enqueue follow-up")
			continue
		}

		fw.Logger.WithFields(logrus.Fields{
			"sequence_id": sequence.ID,
			"record_id":   record.ID,
			"send_at":     scheduledAt,
		}).Debug("follow-up enqueued")
	}
}

// triggerTimeFor returns the engagement timestamp the delay counts from.
func triggerTimeFor(triggerType string, record *models.CampaignContact) *time.Time {
	switch triggerType {
	case models.TriggerNotOpened:
		return record.SentAt
	case models.TriggerOpenedNotClicked:
		return record.OpenedAt
	case models.TriggerClicked:
		return record.ClickedAt
	}
	return nil
}

// DispatchDueFollowUps sends every pending entry whose scheduled time has
// passed. Entries are claimed with a conditional update so concurrent
// dispatchers never double-send.
func (fw *FollowUpWorker) DispatchDueFollowUps() {
	var entries []models.FollowUpQueueEntry
	err := fw.DB.Preload("Sequence").Preload("CampaignContact").Preload("CampaignContact.Contact").
		Where("status = ? AND scheduled_at <= ?", models.QueueStatusPending, time.Now()).
		Order("scheduled_at ASC").
		Find(&entries).Error
	if err != nil {
		fw.Logger.WithError(err).Error("failed to fetch due follow-ups")
		return
	}

	for i := range entries {
		fw.dispatchEntry(&entries[i])
	}
}

func (fw *FollowUpWorker) dispatchEntry(entry *models.FollowUpQueueEntry) {
	claim := fw.DB.Model(&models.FollowUpQueueEntry{}).
		Where("id = ? AND status = ?", entry.ID, models.QueueStatusPending).
		Update("status", models.QueueStatusSending)
	if claim.Error != nil || claim.RowsAffected == 0 {
		return
	}

	sequence := entry.Sequence
	record := entry.CampaignContact

	// A reply after enqueue cancels the follow-up.
	var currentStatus string
	if err := fw.DB.Model(&models.CampaignContact{}).
		Where("id = ?", record.ID).
		Pluck("status", &currentStatus).Error; err == nil && currentStatus == models.SendStatusReplied {
		fw.markEntryFailed(entry, "recipient replied before follow-up")
		return
	}

	creds, settings, err := fw.Sender.LoadCredentials(sequence.UserID)
	if err != nil {
		fw.markEntryFailed(entry, err.Error())
		return
	}
	domain := utils.ExtractDomain(settings.FromEmail)

	allowed, err := fw.Sender.Warmup.Reserve(sequence.UserID, domain)
	if err != nil {
		fw.unclaim(entry.ID)
		fw.Logger.WithError(err).Error("warmup reservation failed for follow-up")
		return
	}
	if !allowed {
		// Budget exhausted: leave the entry pending for the next tick.
		fw.unclaim(entry.ID)
		return
	}

	rendered := utils.RenderTemplate(sequence.Subject, sequence.Content, &record.Contact)
	trackedBody := utils.InjectTracking(rendered.Body, fw.Sender.BaseURL, record.ID, fw.Sender.ExcludedHosts)
	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), domain)

	_, sendErr := fw.Sender.Gateway.Send(creds, &utils.SendRequest{
		FromEmail: settings.FromEmail,
		FromName:  settings.FromName,
		To:        record.Contact.Email,
		Subject:   rendered.Subject,
		HTMLBody:  trackedBody,
		MessageID: messageID,
	})
	if sendErr != nil {
		fw.markEntryFailed(entry, sendErr.Error())
		if err := fw.Sender.Warmup.Release(sequence.UserID, domain); err != nil {
			fw.Logger.WithError(err).Warn("failed to release warmup slot")
		}
		return
	}

	now := time.Now()
	if err := fw.DB.Model(entry).Updates(map[string]interface{}{
		"status":  models.QueueStatusSent,
		"sent_at": now,
	}).Error; err != nil {
		fw.Logger.WithError(err).Error("failed to mark follow-up sent")
	}

	fw.Logger.WithFields(logrus.Fields{
		"entry_id":    entry.ID,
		"sequence_id": sequence.ID,
		"record_id":   record.ID,
	}).Info("follow-up sent")
}

func (fw *FollowUpWorker) markEntryFailed(entry *models.FollowUpQueueEntry, reason string) {
	if err := fw.DB.Model(entry).Updates(map[string]interface{}{
		"status":        models.QueueStatusFailed,
		"error_message": reason,
	}).Error; err != nil {
		fw.Logger.WithError(err).Error("failed to mark follow-up failed")
	}
}

func (fw *FollowUpWorker) unclaim(entryID uint) {
	fw.DB.Model(&models.FollowUpQueueEntry{}).
		Where("id = ? AND status = ?", entryID, models.QueueStatusSending).
		Update("status", models.QueueStatusPending)
}
