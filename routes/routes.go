package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"teymur/broadcast"
	controller "teymur/controllers"
	"teymur/middleware"
	"teymur/scheduler"
)

// SetupRoutes wires the tracking endpoints, the reply webhook and the
// tenant-facing campaign boundary onto the app.
func SetupRoutes(app *fiber.App, db *gorm.DB, sync *scheduler.Synchronizer, hub *broadcast.Hub, log *logrus.Logger) {
	campaignController := controller.NewCampaignController(db, sync, log.WithField("component", "campaign"))
	trackingController := controller.NewTrackingController(db, log.WithField("component", "tracking"))
	calendarController := controller.NewCalendarController(db, log.WithField("component", "calendar"))

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Tracking endpoints are consumed by rendered email HTML; they are
	// public by nature and must never fail toward the recipient.
	app.Get("/tracking/open/:trackingID", trackingController.HandleOpenTracking)
	app.Get("/tracking/click/:trackingID", trackingController.HandleClickTracking)

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
	campaign.Post("/:id/start", campaignController.StartCampaign)
	campaign.Post("/:id/pause", campaignController.PauseCampaign)
	campaign.Post("/:id/cancel", campaignController.CancelCampaign)
	campaign.Get("/:id/stats", campaignController.GetCampaignStats)
	campaign.Get("/:id/sends", campaignController.GetCampaignSends)

	// Calendar override routes
	calendar := api.Group("/calendar")
	calendar.Put("/", calendarController.UpsertCalendarDay)
	calendar.Get("/", calendarController.GetCalendarDays)
	calendar.Delete("/:id", calendarController.DeleteCalendarDay)

	// Reply notifications arrive from the inbox-watching collaborator.
	app.Post("/webhooks/reply", trackingController.HandleReplyWebhook)

	// Live dispatch log
	app.Get("/api/v1/dispatch/log", websocket.New(controller.HandleDispatchLogWS(hub)))

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
