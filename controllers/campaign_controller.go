package controller

import (
	"log"
	"time"

	"outreachly/models"
	"outreachly/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CampaignController struct {
	DB     *gorm.DB
	Logger *log.Logger
	Sender *utils.CampaignSender
}

func NewCampaignController(db *gorm.DB, logger *log.Logger, sender *utils.CampaignSender) *CampaignController {
	return &CampaignController{
		DB:     db,
		Logger: logger,
		Sender: sender,
	}
}

type createCampaignInput struct {
	Name        string     `json:"name" validate:"required,min=1,max=200"`
	Description string     `json:"description"`
	TemplateID  uint       `json:"template_id" validate:"required"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	ContactIDs  []uint     `json:"contact_ids" validate:"required,min=1"`
}

// CreateCampaign creates a campaign and builds its send records in bulk.
// Every listed contact gets one pending CampaignContact row.
func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input createCampaignInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var tmpl models.Template
	if err := cc.DB.Where("id = ? AND user_id = ?", input.TemplateID, user.ID).First(&tmpl).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Template not found", nil)
	}

	var contacts []models.Contact
	if err := cc.DB.Where("user_id = ? AND id IN ?", user.ID, input.ContactIDs).Find(&contacts).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load contacts", err)
	}
	if len(contacts) == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "No matching contacts", nil)
	}

	status := models.CampaignStatusDraft
	if input.ScheduledAt != nil {
		status = models.CampaignStatusScheduled
	}

	campaign := models.Campaign{
		UserID:          user.ID,
		TemplateID:      &tmpl.ID,
		Name:            input.Name,
		Description:     input.Description,
		Status:          status,
		ScheduledAt:     input.ScheduledAt,
		TotalRecipients: len(contacts),
	}

	err := cc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&campaign).Error; err != nil {
			return err
		}
		records := make([]models.CampaignContact, 0, len(contacts))
		for _, contact := range contacts {
			records = append(records, models.CampaignContact{
				CampaignID: campaign.ID,
				ContactID:  contact.ID,
				Status:     models.SendStatusPending,
			})
		}
		return tx.CreateInBatches(records, 200).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create campaign", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(campaign))
}

func (cc *CampaignController) GetCampaigns(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var campaigns []models.Campaign
	if err := cc.DB.Where("user_id = ?", user.ID).Order("created_at DESC").Find(&campaigns).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch campaigns", err)
	}

	return c.JSON(utils.SuccessResponse(campaigns))
}

func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var campaign models.Campaign
	if err := cc.DB.Preload("Contacts.Contact").
		Where("id = ? AND user_id = ?", c.Params("id"), user.ID).
		First(&campaign).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", nil)
	}

	return c.JSON(utils.SuccessResponse(campaign))
}

type updateCampaignInput struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// UpdateCampaign edits a campaign that has not started sending yet.
func (cc *CampaignController) UpdateCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&campaign).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", nil)
	}

	if campaign.Status != models.CampaignStatusDraft && campaign.Status != models.CampaignStatusScheduled {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Campaign can no longer be edited", nil)
	}

	var input updateCampaignInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.ScheduledAt != nil {
		updates["scheduled_at"] = *input.ScheduledAt
		updates["status"] = models.CampaignStatusScheduled
	}

	if len(updates) > 0 {
		if err := cc.DB.Model(&campaign).Updates(updates).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update campaign", err)
		}
	}

	return c.JSON(utils.SuccessResponse(campaign))
}

func (cc *CampaignController) DeleteCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&campaign).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", nil)
	}

	err := cc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("campaign_id = ?", campaign.ID).Delete(&models.CampaignContact{}).Error; err != nil {
			return err
		}
		return tx.Delete(&campaign).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete campaign", err)
	}

	return c.JSON(fiber.Map{"message": "Campaign deleted"})
}

// GetCampaignStats returns the denormalized engagement counters.
func (cc *CampaignController) GetCampaignStats(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&campaign).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"status":           campaign.Status,
		"total_recipients": campaign.TotalRecipients,
		"sent_count":       campaign.SentCount,
		"failed_count":     campaign.FailedCount,
		"open_count":       campaign.OpenCount,
		"click_count":      campaign.ClickCount,
		"reply_count":      campaign.ReplyCount,
	}))
}
