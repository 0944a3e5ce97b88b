package controller

import (
	"log"

	"outreachly/models"
	"outreachly/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type TemplateController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewTemplateController(db *gorm.DB, logger *log.Logger) *TemplateController {
	return &TemplateController{DB: db, Logger: logger}
}

type templateInput struct {
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Subject     string `json:"subject" validate:"required,min=1,max=500"`
	HTMLContent string `json:"html_content" validate:"required"`
}

func (tc *TemplateController) CreateTemplate(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input templateInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	tmpl := models.Template{
		UserID:      user.ID,
		Name:        input.Name,
		Subject:     input.Subject,
		HTMLContent: input.HTMLContent,
	}
	if err := tc.DB.Create(&tmpl).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create template", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(tmpl))
}

func (tc *TemplateController) GetTemplates(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var templates []models.Template
	if err := tc.DB.Where("user_id = ?", user.ID).Order("created_at DESC").Find(&templates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch templates", err)
	}

	return c.JSON(utils.SuccessResponse(templates))
}

func (tc *TemplateController) GetTemplate(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var tmpl models.Template
	if err := tc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&tmpl).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Template not found", nil)
	}

	return c.JSON(utils.SuccessResponse(tmpl))
}

func (tc *TemplateController) UpdateTemplate(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var tmpl models.Template
	if err := tc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&tmpl).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Template not found", nil)
	}

	var input templateInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	tmpl.Name = input.Name
	tmpl.Subject = input.Subject
	tmpl.HTMLContent = input.HTMLContent
	if err := tc.DB.Save(&tmpl).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update template", err)
	}

	return c.JSON(utils.SuccessResponse(tmpl))
}

func (tc *TemplateController) DeleteTemplate(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var tmpl models.Template
	if err := tc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&tmpl).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Template not found", nil)
	}

	// Campaigns keep a nullable template reference; sent history survives.
	var inUse int64
	tc.DB.Model(&models.Campaign{}).
		Where("template_id = ? AND status IN ?", tmpl.ID,
			[]string{models.CampaignStatusScheduled, models.CampaignStatusRunning, models.CampaignStatusPaused}).
		Count(&inUse)
	if inUse > 0 {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Template is used by an active campaign", nil)
	}

	if err := tc.DB.Delete(&tmpl).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete template", err)
	}

	return c.JSON(fiber.Map{"message": "Template deleted"})
}
