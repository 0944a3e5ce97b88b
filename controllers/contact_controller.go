package controller

import (
	"log"
	"strings"

	"outreachly/models"
	"outreachly/utils"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ContactController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewContactController(db *gorm.DB, logger *log.Logger) *ContactController {
	return &ContactController{DB: db, Logger: logger}
}

type contactInput struct {
	Email        string `json:"email" validate:"required,email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	BusinessName string `json:"business_name"`
	JobTitle     string `json:"job_title"`
	Phone        string `json:"phone"`
	City         string `json:"city"`
	State        string `json:"state"`
	Country      string `json:"country"`
	LinkedInURL  string `json:"linkedin_url"`
	Source       string `json:"source"`
}

func (input *contactInput) toModel(userID uint) models.Contact {
	return models.Contact{
		UserID:       userID,
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		BusinessName: input.BusinessName,
		JobTitle:     input.JobTitle,
		Phone:        input.Phone,
		City:         input.City,
		State:        input.State,
		Country:      input.Country,
		LinkedInURL:  input.LinkedInURL,
		Source:       input.Source,
	}
}

func (cc *ContactController) CreateContact(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input contactInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	contact := input.toModel(user.ID)

	var existing models.Contact
	if err := cc.DB.Where("user_id = ? AND email = ?", user.ID, contact.Email).First(&existing).Error; err == nil {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Contact already exists", nil)
	}

	if err := cc.DB.Create(&contact).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create contact", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(contact))
}

// GetContacts lists the caller's contacts with optional search and paging.
func (cc *ContactController) GetContacts(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := cc.DB.Where("user_id = ?", user.ID)
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(business_name) LIKE ?",
			pattern, pattern, pattern, pattern,
		)
	}

	var total int64
	query.Model(&models.Contact{}).Count(&total)

	var contacts []models.Contact
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&contacts).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contacts", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    contacts,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

func (cc *ContactController) GetContact(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var contact models.Contact
	if err := cc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&contact).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}

	return c.JSON(utils.SuccessResponse(contact))
}

func (cc *ContactController) UpdateContact(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var contact models.Contact
	if err := cc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&contact).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}

	var input contactInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	updated := input.toModel(user.ID)
	updated.ID = contact.ID
	updated.CreatedAt = contact.CreatedAt
	updated.EmailsSent = contact.EmailsSent
	updated.LastContact = contact.LastContact

	if err := cc.DB.Save(&updated).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update contact", err)
	}

	return c.JSON(utils.SuccessResponse(updated))
}

func (cc *ContactController) DeleteContact(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var contact models.Contact
	if err := cc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&contact).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}

	if err := cc.DB.Delete(&contact).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete contact", err)
	}

	return c.JSON(fiber.Map{"message": "Contact deleted"})
}

type bulkImportInput struct {
	Contacts []contactInput `json:"contacts" validate:"required,min=1,max=5000"`
}

// BulkImportContacts inserts many contacts at once, skipping rows with bad
// addresses or duplicate emails instead of failing the whole batch.
func (cc *ContactController) BulkImportContacts(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input bulkImportInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var existing []string
	cc.DB.Model(&models.Contact{}).Where("user_id = ?", user.ID).Pluck("email", &existing)
	seen := make(map[string]bool, len(existing))
	for _, email := range existing {
		seen[strings.ToLower(email)] = true
	}

	var toInsert []models.Contact
	skipped := 0
	for _, row := range input.Contacts {
		email := strings.ToLower(strings.TrimSpace(row.Email))
		if email == "" || checkmail.ValidateFormat(email) != nil || seen[email] {
			skipped++
			continue
		}
		seen[email] = true
		toInsert = append(toInsert, row.toModel(user.ID))
	}

	if len(toInsert) > 0 {
		if err := cc.DB.CreateInBatches(toInsert, 200).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to import contacts", err)
		}
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"imported": len(toInsert),
		"skipped":  skipped,
	})
}
