package utils

import (
	"fmt"
	"time"

	"outreachly/models"

	"gorm.io/gorm"
)

// WarmupGovernor gates sending volume per (user, domain) while the domain's
// reputation ramps up. A user with no schedule, or a paused one, is
// unrestricted: warmup is opt-in.
type WarmupGovernor struct {
	DB *gorm.DB
}

func NewWarmupGovernor(db *gorm.DB) *WarmupGovernor {
	return &WarmupGovernor{DB: db}
}

// Reserve admits one send against the domain's daily budget. The admit check
// and the counter increment are a single conditional UPDATE, so concurrent
// senders cannot exceed the cap. Returns false once today's budget is spent.
//
// The day rollover (reset emails_sent_today, advance current_daily_limit by
// increment_per_day up to target_daily_limit) happens lazily here, on the
// first reservation of a new calendar day, and exactly once per day because
// the rollover UPDATE is itself conditional on last_send_date.
func (wg *WarmupGovernor) Reserve(userID uint, domain string) (bool, error) {
	var schedule models.WarmupSchedule
	err := wg.DB.Where("user_id = ? AND domain = ?", userID, domain).First(&schedule).Error
	if err == gorm.ErrRecordNotFound {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load warmup schedule: %w", err)
	}
	if schedule.Status != models.WarmupStatusActive {
		return true, nil
	}

	if err := wg.rollover(&schedule, time.Now()); err != nil {
		return false, err
	}

	res := wg.DB.Model(&models.WarmupSchedule{}).
		Where("id = ? AND status = ? AND emails_sent_today < current_daily_limit",
			schedule.ID, models.WarmupStatusActive).
		Update("emails_sent_today", gorm.Expr("emails_sent_today + 1"))
	if res.Error != nil {
		return false, fmt.Errorf("failed to reserve warmup slot: %w", res.Error)
	}

	return res.RowsAffected == 1, nil
}

// Release returns a reserved slot after a transport failure, so failed
// attempts do not consume the daily budget.
func (wg *WarmupGovernor) Release(userID uint, domain string) error {
	return wg.DB.Model(&models.WarmupSchedule{}).
		Where("user_id = ? AND domain = ? AND emails_sent_today > 0", userID, domain).
		Update("emails_sent_today", gorm.Expr("emails_sent_today - 1")).Error
}

func (wg *WarmupGovernor) rollover(schedule *models.WarmupSchedule, now time.Time) error {
	startOfToday := StartOfDay(now)

	// First send ever: stamp the day without advancing the limit.
	if schedule.LastSendDate == nil {
		res := wg.DB.Model(&models.WarmupSchedule{}).
			Where("id = ? AND last_send_date IS NULL", schedule.ID).
			Update("last_send_date", now)
		if res.Error != nil {
			return fmt.Errorf("failed to stamp warmup start day: %w", res.Error)
		}
		return nil
	}

	if !schedule.LastSendDate.Before(startOfToday) {
		return nil
	}

	// CASE keeps the limit advance portable across postgres and sqlite.
	res := wg.DB.Model(&models.WarmupSchedule{}).
		Where("id = ? AND last_send_date < ?", schedule.ID, startOfToday).
		Updates(map[string]interface{}{
			"emails_sent_today": 0,
			"current_daily_limit": gorm.Expr(
				"CASE WHEN current_daily_limit + increment_per_day > target_daily_limit " +
					"THEN target_daily_limit ELSE current_daily_limit + increment_per_day END"),
			"last_send_date": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to roll over warmup day: %w", res.Error)
	}
	return nil
}
