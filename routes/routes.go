package routes

import (
	"log"
	"os"

	controller "outreachly/controllers"
	"outreachly/middleware"
	"outreachly/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SetupRoutes wires the public tracking/webhook surface and the protected API.
func SetupRoutes(app *fiber.App, db *gorm.DB, engineLogger *logrus.Logger) {
	sender := utils.NewCampaignSender(db, engineLogger)
	matcher := utils.NewReplyMatcher(db, engineLogger)

	trackingController := controller.NewTrackingController(db, log.New(os.Stdout, "TRACK: ", log.LstdFlags))
	inboundController := controller.NewInboundController(db, log.New(os.Stdout, "INBOUND: ", log.LstdFlags), matcher)
	campaignController := controller.NewCampaignController(db, log.New(os.Stdout, "CAMPAIGN: ", log.LstdFlags), sender)
	contactController := controller.NewContactController(db, log.New(os.Stdout, "CONTACT: ", log.LstdFlags))
	templateController := controller.NewTemplateController(db, log.New(os.Stdout, "TEMPLATE: ", log.LstdFlags))
	settingsController := controller.NewSettingsController(db, log.New(os.Stdout, "SETTINGS: ", log.LstdFlags))
	sequenceController := controller.NewSequenceController(db, log.New(os.Stdout, "SEQUENCE: ", log.LstdFlags))
	inboxController := controller.NewInboxController(db, log.New(os.Stdout, "INBOX: ", log.LstdFlags))
	deliverabilityController := controller.NewDeliverabilityController(db, log.New(os.Stdout, "DELIVER: ", log.LstdFlags))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Public endpoints: pixel/click tracking and inbound webhooks carry no auth,
	// email clients and provider webhooks cannot send bearer tokens.
	app.Get("/track", trackingController.HandleTracking)
	app.Post("/inbound", inboundController.HandleInbound)

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Campaign routes
	campaign := api.Group("/campaigns")
	campaign.Post("/", campaignController.CreateCampaign)
	campaign.Get("/", campaignController.GetCampaigns)
	campaign.Get("/:id", campaignController.GetCampaign)
	campaign.Put("/:id", campaignController.UpdateCampaign)
	campaign.Delete("/:id", campaignController.DeleteCampaign)
	campaign.Post("/:id/send", campaignController.SendCampaign)
	campaign.Post("/:id/stop", campaignController.StopCampaign)
	campaign.Get("/:id/stats", campaignController.GetCampaignStats)

	// Contact routes
	contact := api.Group("/contacts")
	contact.Post("/", contactController.CreateContact)
	contact.Get("/", contactController.GetContacts)
	contact.Get("/:id", contactController.GetContact)
	contact.Put("/:id", contactController.UpdateContact)
	contact.Delete("/:id", contactController.DeleteContact)
	contact.Post("/import", contactController.BulkImportContacts)

	// Template routes
	template := api.Group("/templates")
	template.Post("/", templateController.CreateTemplate)
	template.Get("/", templateController.GetTemplates)
	template.Get("/:id", templateController.GetTemplate)
	template.Put("/:id", templateController.UpdateTemplate)
	template.Delete("/:id", templateController.DeleteTemplate)

	// Settings and warmup routes
	settings := api.Group("/settings")
	settings.Get("/", settingsController.GetSettings)
	settings.Put("/", settingsController.SaveSettings)
	settings.Get("/warmup", settingsController.GetWarmupSchedules)
	settings.Put("/warmup", settingsController.SaveWarmupSchedule)

	// Follow-up sequence routes
	sequence := api.Group("/sequences")
	sequence.Post("/", sequenceController.CreateSequence)
	sequence.Get("/", sequenceController.GetSequences)
	sequence.Get("/:id", sequenceController.GetSequence)
	sequence.Put("/:id", sequenceController.UpdateSequence)
	sequence.Delete("/:id", sequenceController.DeleteSequence)

	// Inbox routes
	inbox := api.Group("/inbox")
	inbox.Get("/", inboxController.GetMessages)
	inbox.Get("/:id", inboxController.GetMessage)

	// Deliverability test, rate limited: every call does live DNS lookups
	api.Post("/deliverability-test", middleware.DeliverabilityRateLimiter(), deliverabilityController.TestDeliverability)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
