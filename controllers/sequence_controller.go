package controller

import (
	"log"

	"outreachly/models"
	"outreachly/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SequenceController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewSequenceController(db *gorm.DB, logger *log.Logger) *SequenceController {
	return &SequenceController{DB: db, Logger: logger}
}

type sequenceInput struct {
	CampaignID  uint   `json:"campaign_id" validate:"required"`
	Name        string `json:"name"`
	TriggerType string `json:"trigger_type" validate:"required,oneof=not_opened opened_not_clicked clicked"`
	DelayHours  int    `json:"delay_hours" validate:"required,min=1,max=720"`
	Subject     string `json:"subject" validate:"required,min=1,max=500"`
	Content     string `json:"content" validate:"required"`
}

func (sc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input sequenceInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var campaign models.Campaign
	if err := sc.DB.Where("id = ? AND user_id = ?", input.CampaignID, user.ID).First(&campaign).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", nil)
	}

	sequence := models.FollowUpSequence{
		UserID:      user.ID,
		CampaignID:  campaign.ID,
		Name:        input.Name,
		TriggerType: input.TriggerType,
		DelayHours:  input.DelayHours,
		Subject:     input.Subject,
		Content:     input.Content,
		Status:      models.SequenceStatusActive,
	}
	if err := sc.DB.Create(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create sequence", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(sequence))
}

func (sc *SequenceController) GetSequences(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	query := sc.DB.Where("user_id = ?", user.ID)
	if campaignID := utils.ParseUint(c.Query("campaign_id")); campaignID != 0 {
		query = query.Where("campaign_id = ?", campaignID)
	}

	var sequences []models.FollowUpSequence
	if err := query.Order("created_at DESC").Find(&sequences).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch sequences", err)
	}

	return c.JSON(utils.SuccessResponse(sequences))
}

func (sc *SequenceController) GetSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sequence models.FollowUpSequence
	if err := sc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	return c.JSON(utils.SuccessResponse(sequence))
}

type updateSequenceInput struct {
	Name       *string `json:"name"`
	DelayHours *int    `json:"delay_hours" validate:"omitempty,min=1,max=720"`
	Subject    *string `json:"subject"`
	Content    *string `json:"content"`
	Status     *string `json:"status" validate:"omitempty,oneof=active paused"`
}

// UpdateSequence edits a sequence. The trigger type is immutable: queue
// entries already scheduled under the old trigger would no longer make sense.
func (sc *SequenceController) UpdateSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sequence models.FollowUpSequence
	if err := sc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	var input updateSequenceInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.DelayHours != nil {
		updates["delay_hours"] = *input.DelayHours
	}
	if input.Subject != nil {
		updates["subject"] = *input.Subject
	}
	if input.Content != nil {
		updates["content"] = *input.Content
	}
	if input.Status != nil {
		updates["status"] = *input.Status
	}

	if len(updates) > 0 {
		if err := sc.DB.Model(&sequence).Updates(updates).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update sequence", err)
		}
	}

	return c.JSON(utils.SuccessResponse(sequence))
}

func (sc *SequenceController) DeleteSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sequence models.FollowUpSequence
	if err := sc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	err := sc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("sequence_id = ? AND status = ?", sequence.ID, models.QueueStatusPending).
			Delete(&models.FollowUpQueueEntry{}).Error; err != nil {
			return err
		}
		return tx.Delete(&sequence).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete sequence", err)
	}

	return c.JSON(fiber.Map{"message": "Sequence deleted"})
}
