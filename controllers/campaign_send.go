package controller

import (
	"outreachly/models"
	"outreachly/utils"

	"github.com/gofiber/fiber/v2"
)

// SendCampaign triggers the delivery loop for a campaign the caller owns and
// returns the per-run counts. Safe to call again on a paused or partially
// sent campaign: only pending records are processed.
func (cc *CampaignController) SendCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	campaignID := utils.ParseUint(c.Params("id"))

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", campaignID, user.ID).First(&campaign).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", nil)
	}

	switch campaign.Status {
	case models.CampaignStatusCompleted, models.CampaignStatusFailed:
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Campaign has already finished", nil)
	case models.CampaignStatusRunning:
		return utils.ErrorResponse(c, fiber.StatusConflict, "Campaign is already sending", nil)
	}

	result, err := cc.Sender.Run(campaign.ID, user.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign send failed", err)
	}

	return c.JSON(utils.SuccessResponse(result))
}

// StopCampaign pauses a running campaign. The delivery loop observes the
// status change at its next per-record boundary; in-flight provider calls are
// not interrupted.
func (cc *CampaignController) StopCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&campaign).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", nil)
	}

	if campaign.Status != models.CampaignStatusRunning && campaign.Status != models.CampaignStatusScheduled {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Campaign is not running", nil)
	}

	if err := cc.DB.Model(&campaign).Update("status", models.CampaignStatusPaused).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to stop campaign", err)
	}

	return c.JSON(fiber.Map{"message": "Campaign paused"})
}
