package controller

import (
	"log"

	"outreachly/models"
	"outreachly/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type InboxController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewInboxController(db *gorm.DB, logger *log.Logger) *InboxController {
	return &InboxController{DB: db, Logger: logger}
}

// GetMessages lists the caller's inbox, newest first. Filterable by campaign
// and by read state.
func (ic *InboxController) GetMessages(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := ic.DB.Where("user_id = ?", user.ID)
	if campaignID := utils.ParseUint(c.Query("campaign_id")); campaignID != 0 {
		query = query.Where("campaign_id = ?", campaignID)
	}
	if c.Query("unread") == "true" {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	query.Model(&models.InboxMessage{}).Count(&total)

	var messages []models.InboxMessage
	if err := query.Order("received_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&messages).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch messages", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    messages,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

func (ic *InboxController) GetMessage(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var message models.InboxMessage
	if err := ic.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&message).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Message not found", nil)
	}

	// Opening a message marks it read.
	if !message.IsRead {
		if err := ic.DB.Model(&message).Update("is_read", true).Error; err != nil {
			ic.Logger.Printf("failed to mark message %d read: %v", message.ID, err)
		}
		message.IsRead = true
	}

	return c.JSON(utils.SuccessResponse(message))
}
