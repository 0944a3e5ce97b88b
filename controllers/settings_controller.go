package controller

import (
	"log"
	"strings"

	"outreachly/models"
	"outreachly/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SettingsController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewSettingsController(db *gorm.DB, logger *log.Logger) *SettingsController {
	return &SettingsController{DB: db, Logger: logger}
}

type settingsInput struct {
	FromEmail string `json:"from_email" validate:"required,email"`
	FromName  string `json:"from_name"`

	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"smtp_password"`

	SendGridAPIKey string `json:"sendgrid_api_key"`
	MailgunAPIKey  string `json:"mailgun_api_key"`
	MailgunDomain  string `json:"mailgun_domain"`

	IMAPHost     string `json:"imap_host"`
	IMAPPort     int    `json:"imap_port"`
	IMAPUsername string `json:"imap_username"`
	IMAPPassword string `json:"imap_password"`
}

// SaveSettings upserts the caller's provider configuration. Credentials are
// encrypted at rest; an empty credential field in the input leaves the stored
// value unchanged so clients can update the rest without re-submitting keys.
func (sc *SettingsController) SaveSettings(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input settingsInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var settings models.EmailSettings
	err := sc.DB.Where("user_id = ?", user.ID).First(&settings).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load settings", err)
	}

	settings.UserID = user.ID
	settings.FromEmail = strings.ToLower(strings.TrimSpace(input.FromEmail))
	settings.FromName = input.FromName
	settings.SMTPHost = input.SMTPHost
	if input.SMTPPort != 0 {
		settings.SMTPPort = input.SMTPPort
	}
	settings.SMTPUsername = input.SMTPUsername
	settings.MailgunDomain = input.MailgunDomain
	settings.IMAPHost = input.IMAPHost
	if input.IMAPPort != 0 {
		settings.IMAPPort = input.IMAPPort
	}
	settings.IMAPUsername = input.IMAPUsername

	if err := sc.applySecret(input.SMTPPassword, &settings.SMTPPassword); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to secure credentials", err)
	}
	if err := sc.applySecret(input.SendGridAPIKey, &settings.SendGridAPIKey); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to secure credentials", err)
	}
	if err := sc.applySecret(input.MailgunAPIKey, &settings.MailgunAPIKey); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to secure credentials", err)
	}
	if err := sc.applySecret(input.IMAPPassword, &settings.IMAPPassword); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to secure credentials", err)
	}

	if err := sc.DB.Save(&settings).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save settings", err)
	}

	settings.Sanitize()
	return c.JSON(utils.SuccessResponse(settings))
}

func (sc *SettingsController) applySecret(plaintext string, target *string) error {
	if plaintext == "" {
		return nil
	}
	encrypted, err := utils.Encrypt(plaintext)
	if err != nil {
		return err
	}
	*target = encrypted
	return nil
}

func (sc *SettingsController) GetSettings(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var settings models.EmailSettings
	if err := sc.DB.Where("user_id = ?", user.ID).First(&settings).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Settings not configured", nil)
	}

	settings.Sanitize()
	return c.JSON(utils.SuccessResponse(settings))
}

// GetWarmupSchedules lists the caller's per-domain warmup state.
func (sc *SettingsController) GetWarmupSchedules(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var schedules []models.WarmupSchedule
	if err := sc.DB.Where("user_id = ?", user.ID).Find(&schedules).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch warmup schedules", err)
	}

	return c.JSON(utils.SuccessResponse(schedules))
}

type warmupInput struct {
	Domain           string `json:"domain" validate:"required,fqdn"`
	CurrentDailyLimit int   `json:"current_daily_limit" validate:"required,min=1"`
	TargetDailyLimit  int   `json:"target_daily_limit" validate:"required,min=1"`
	IncrementPerDay   int   `json:"increment_per_day" validate:"required,min=1"`
	Status            string `json:"status" validate:"omitempty,oneof=active paused"`
}

// SaveWarmupSchedule upserts the warmup plan for one sending domain.
func (sc *SettingsController) SaveWarmupSchedule(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input warmupInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if input.TargetDailyLimit < input.CurrentDailyLimit {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Target limit must not be below the current limit", nil)
	}

	domain := strings.ToLower(strings.TrimSpace(input.Domain))

	var schedule models.WarmupSchedule
	err := sc.DB.Where("user_id = ? AND domain = ?", user.ID, domain).First(&schedule).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load warmup schedule", err)
	}

	schedule.UserID = user.ID
	schedule.Domain = domain
	schedule.CurrentDailyLimit = input.CurrentDailyLimit
	schedule.TargetDailyLimit = input.TargetDailyLimit
	schedule.IncrementPerDay = input.IncrementPerDay
	if input.Status != "" {
		schedule.Status = input.Status
	} else if schedule.Status == "" {
		schedule.Status = models.WarmupStatusActive
	}

	if err := sc.DB.Save(&schedule).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save warmup schedule", err)
	}

	return c.JSON(utils.SuccessResponse(schedule))
}
