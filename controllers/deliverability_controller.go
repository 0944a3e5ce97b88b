package controller

import (
	"log"

	"outreachly/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type DeliverabilityController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewDeliverabilityController(db *gorm.DB, logger *log.Logger) *DeliverabilityController {
	return &DeliverabilityController{DB: db, Logger: logger}
}

type deliverabilityInput struct {
	Email string `json:"email" validate:"required,email"`
}

// TestDeliverability runs the DNS health checks for the given address's
// domain. Each request does live lookups, so the route sits behind the rate
// limiter.
func (dc *DeliverabilityController) TestDeliverability(c *fiber.Ctx) error {
	var input deliverabilityInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	report, err := utils.CheckDeliverability(input.Email)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Deliverability check failed", err)
	}

	return c.JSON(utils.SuccessResponse(report))
}
