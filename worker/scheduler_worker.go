package worker

import (
	"context"
	"time"

	"outreachly/models"
	"outreachly/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SchedulerWorker starts campaigns whose scheduled time has arrived and
// retries campaigns paused by warmup exhaustion. Pausing is not terminal:
// once the daily budget rolls over, the next tick picks the campaign back up.
type SchedulerWorker struct {
	DB       *gorm.DB
	Sender   *utils.CampaignSender
	Logger   *logrus.Logger
	Interval time.Duration
}

func NewSchedulerWorker(db *gorm.DB, sender *utils.CampaignSender, logger *logrus.Logger, interval time.Duration) *SchedulerWorker {
	return &SchedulerWorker{
		DB:       db,
		Sender:   sender,
		Logger:   logger,
		Interval: interval,
	}
}

func (sw *SchedulerWorker) Start(ctx context.Context) {
	sw.Logger.Info("campaign scheduler started")

	ticker := time.NewTicker(sw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.Logger.Info("campaign scheduler shutting down")
			return
		case <-ticker.C:
			sw.ProcessDueCampaigns()
		}
	}
}

// ProcessDueCampaigns runs the delivery loop for every campaign that is due.
// Scheduled campaigns become due when scheduled_at passes; paused campaigns
// are always due, the warmup governor decides whether they actually send.
func (sw *SchedulerWorker) ProcessDueCampaigns() {
	var campaigns []models.Campaign
	err := sw.DB.
		Where("(status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?) OR status = ?",
			models.CampaignStatusScheduled, time.Now(), models.CampaignStatusPaused).
		Order("id ASC").
		Find(&campaigns).Error
	if err != nil {
		sw.Logger.WithError(err).Error("failed to fetch due campaigns")
		return
	}

	for _, campaign := range campaigns {
		result, err := sw.Sender.Run(campaign.ID, campaign.UserID)
		if err != nil {
			sw.Logger.WithFields(logrus.Fields{
				"campaign_id": campaign.ID,
			}).WithError(err).Error("scheduled campaign run failed")
			continue
		}
		sw.Logger.WithFields(logrus.Fields{
			"campaign_id": campaign.ID,
			"sent":        result.SentCount,
			"failed":      result.FailedCount,
			"status":      result.Status,
		}).Info("scheduled campaign processed")
	}
}
