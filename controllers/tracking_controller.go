package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"teymur/models"
	"teymur/utils"
)

// TrackingController serves the endpoints consumed by rendered email HTML.
// Tracking failures must never break the recipient's experience: the open
// endpoint always returns the pixel and the click endpoint always redirects,
// whatever the lookup outcome.
type TrackingController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewTrackingController(db *gorm.DB, logger *logrus.Entry) *TrackingController {
	return &TrackingController{
		DB:     db,
		Logger: logger,
	}
}

// HandleOpenTracking records an open event and returns a 1x1 transparent GIF.
func (tc *TrackingController) HandleOpenTracking(c *fiber.Ctx) error {
	trackingID := c.Params("trackingID")

	tc.recordOpen(trackingID, c.IP(), c.Get("User-Agent"))

	c.Set("Cache-Control", "no-store")
	return c.Type("gif").Send(transparentPixel())
}

// HandleClickTracking records a click event and redirects to the original URL.
func (tc *TrackingController) HandleClickTracking(c *fiber.Ctx) error {
	trackingID := c.Params("trackingID")
	originalURL := c.Query("url")

	tc.recordClick(trackingID, originalURL, c.IP(), c.Get("User-Agent"))

	if originalURL == "" {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.Redirect(originalURL, fiber.StatusFound)
}

func (tc *TrackingController) recordOpen(trackingID, ip, userAgent string) {
	var send models.Send
	if err := tc.DB.Where("tracking_id = ?", trackingID).First(&send).Error; err != nil {
		tc.Logger.WithField("tracking_id", trackingID).Debug("Open for unknown tracking id")
		return
	}

	now := time.Now()
	event := models.TrackingEvent{
		SendID:     send.ID,
		EventType:  models.TrackingEventOpen,
		OccurredAt: now,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}
	if err := tc.DB.Create(&event).Error; err != nil {
		tc.Logger.WithError(err).Error("Failed to record open event")
	}

	tc.DB.Model(&models.Campaign{}).Where("id = ?", send.CampaignID).
		Update("open_count", gorm.Expr("open_count + ?", 1))

	if !send.Opened {
		if err := tc.DB.Model(&send).Updates(map[string]interface{}{
			"opened":    true,
			"opened_at": now,
		}).Error; err != nil {
			tc.Logger.WithError(err).Error("Failed to mark send opened")
			return
		}
		tc.DB.Model(&models.Campaign{}).Where("id = ?", send.CampaignID).
			Update("unique_open_count", gorm.Expr("unique_open_count + ?", 1))
	}
}

func (tc *TrackingController) recordClick(trackingID, url, ip, userAgent string) {
	var send models.Send
	if err := tc.DB.Where("tracking_id = ?", trackingID).First(&send).Error; err != nil {
		tc.Logger.WithField("tracking_id", trackingID).Debug("Click for unknown tracking id")
		return
	}

	now := time.Now()
	event := models.TrackingEvent{
		SendID:     send.ID,
		EventType:  models.TrackingEventClick,
		URL:        url,
		OccurredAt: now,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}
	if err := tc.DB.Create(&event).Error; err != nil {
		tc.Logger.WithError(err).Error("Failed to record click event")
	}

	tc.DB.Model(&models.Campaign{}).Where("id = ?", send.CampaignID).
		Update("click_count", gorm.Expr("click_count + ?", 1))

	if !send.Clicked {
		if err := tc.DB.Model(&send).Updates(map[string]interface{}{
			"clicked":    true,
			"clicked_at": now,
		}).Error; err != nil {
			tc.Logger.WithError(err).Error("Failed to mark send clicked")
			return
		}
		tc.DB.Model(&models.Campaign{}).Where("id = ?", send.CampaignID).
			Update("unique_click_count", gorm.Expr("unique_click_count + ?", 1))
	}
}

// ReplyWebhookInput is the inbound notification from the reply-detection
// collaborator.
type ReplyWebhookInput struct {
	CorrelationID string `json:"correlation_id" validate:"required"`
	CampaignID    uint   `json:"campaign_id"`
	ContactID     uint   `json:"contact_id"`
	RepliedAt     int64  `json:"replied_at"`
}

// HandleReplyWebhook marks a send as replied, bumps the contact's engagement
// score and the campaign's reply counter.
func (tc *TrackingController) HandleReplyWebhook(c *fiber.Ctx) error {
	var input ReplyWebhookInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	var send models.Send
	if err := tc.DB.Where("tracking_id = ?", input.CorrelationID).First(&send).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Send not found",
		})
	}

	repliedAt := time.Now()
	if input.RepliedAt > 0 {
		repliedAt = time.Unix(input.RepliedAt, 0)
	}

	if !send.Replied {
		if err := tc.DB.Model(&send).Updates(map[string]interface{}{
			"replied":    true,
			"replied_at": repliedAt,
		}).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update send",
			})
		}
		tc.DB.Model(&models.Campaign{}).Where("id = ?", send.CampaignID).
			Update("reply_count", gorm.Expr("reply_count + ?", 1))
		tc.DB.Model(&models.Contact{}).Where("id = ?", send.ContactID).
			Update("engagement_score", gorm.Expr("engagement_score + ?", 5))
	}

	return c.JSON(fiber.Map{
		"message": "Reply recorded",
	})
}

func transparentPixel() []byte {
	// 1x1 transparent GIF
	return []byte{
		0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
		0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x21,
		0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00,
		0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44,
		0x01, 0x00, 0x3b,
	}
}
