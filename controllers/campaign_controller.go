package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"teymur/models"
	"teymur/scheduler"
	"teymur/utils"
)

type CampaignController struct {
	DB     *gorm.DB
	Sync   *scheduler.Synchronizer
	Logger *logrus.Entry
}

func NewCampaignController(db *gorm.DB, sync *scheduler.Synchronizer, logger *logrus.Entry) *CampaignController {
	return &CampaignController{
		DB:     db,
		Sync:   sync,
		Logger: logger,
	}
}

type campaignInput struct {
	Name        string                `json:"name" validate:"required"`
	Description string                `json:"description"`
	SenderName  string                `json:"sender_name"`
	CC          string                `json:"cc"`
	BCC         string                `json:"bcc"`
	StopOnReply bool                  `json:"stop_on_reply"`
	ContactIDs  []uint                `json:"contact_ids"`
	Steps       []models.SequenceStep `json:"steps"`
}

// CreateCampaign creates a draft campaign and derives its schedule rows.
func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	var input campaignInput
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

	campaign := models.Campaign{
		UserID:      userID,
		Name:        input.Name,
		Description: input.Description,
		SenderName:  input.SenderName,
		CC:          input.CC,
		BCC:         input.BCC,
		StopOnReply: input.StopOnReply,
		ContactIDs:  input.ContactIDs,
		Steps:       input.Steps,
		Status:      models.CampaignStatusDraft,
	}
	if err := cc.DB.Create(&campaign).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create campaign",
		})
	}

	if err := cc.Sync.SyncCampaign(&campaign); err != nil {
		cc.Logger.WithError(err).WithField("campaign_id", campaign.ID).
			Error("Schedule sync failed after create")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Campaign created but schedule sync failed",
			"details": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(campaign))
}

// UpdateCampaign edits campaign fields and reconciles the schedule table
// against the new step list. Clearing the steps removes every schedule.
func (cc *CampaignController) UpdateCampaign(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", campaignID, userID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	var input campaignInput
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

	campaign.Name = input.Name
	campaign.Description = input.Description
	campaign.SenderName = input.SenderName
	campaign.CC = input.CC
	campaign.BCC = input.BCC
	campaign.StopOnReply = input.StopOnReply
	campaign.ContactIDs = input.ContactIDs
	campaign.Steps = input.Steps

	if err := cc.DB.Save(&campaign).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update campaign",
		})
	}

	if err := cc.Sync.SyncCampaign(&campaign); err != nil {
		cc.Logger.WithError(err).WithField("campaign_id", campaign.ID).
			Error("Schedule sync failed after update")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Campaign updated but schedule sync failed",
			"details": err.Error(),
		})
	}

	return c.JSON(utils.SuccessResponse(campaign))
}

// GetCampaigns lists the tenant's campaigns.
func (cc *CampaignController) GetCampaigns(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	var campaigns []models.Campaign
	if err := cc.DB.Where("user_id = ?", userID).Order("created_at DESC").Find(&campaigns).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch campaigns",
		})
	}
	return c.JSON(utils.SuccessResponse(campaigns))
}

// GetCampaign returns one campaign with its derived schedules.
func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	var campaign models.Campaign
	err := cc.DB.Preload("Schedules").
		Where("id = ? AND user_id = ?", c.Params("id"), userID).
		First(&campaign).Error
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}
	return c.JSON(utils.SuccessResponse(campaign))
}

// StartCampaign activates a campaign so the dispatcher picks it up.
func (cc *CampaignController) StartCampaign(c *fiber.Ctx) error {
	return cc.transitionStatus(c, models.CampaignStatusActive,
		models.CampaignStatusDraft, models.CampaignStatusPaused, models.CampaignStatusScheduled)
}

// PauseCampaign suspends dispatching without touching schedules.
func (cc *CampaignController) PauseCampaign(c *fiber.Ctx) error {
	return cc.transitionStatus(c, models.CampaignStatusPaused,
		models.CampaignStatusActive, models.CampaignStatusScheduled, models.CampaignStatusRunning)
}

// CancelCampaign terminally stops a campaign.
func (cc *CampaignController) CancelCampaign(c *fiber.Ctx) error {
	return cc.transitionStatus(c, models.CampaignStatusCancelled,
		models.CampaignStatusDraft, models.CampaignStatusActive, models.CampaignStatusScheduled,
		models.CampaignStatusRunning, models.CampaignStatusPaused)
}

func (cc *CampaignController) transitionStatus(c *fiber.Ctx, target string, allowedFrom ...string) error {
	userID := c.Locals("user_id").(uint)

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", c.Params("id"), userID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	allowed := false
	for _, status := range allowedFrom {
		if campaign.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Campaign cannot transition from " + campaign.Status + " to " + target,
		})
	}

	campaign.Status = target
	switch target {
	case models.CampaignStatusActive:
		if campaign.StartedAt == nil {
			campaign.StartedAt = utils.Pointer(time.Now())
		}
	case models.CampaignStatusCancelled, models.CampaignStatusCompleted:
		campaign.CompletedAt = utils.Pointer(time.Now())
	}

	if err := cc.DB.Save(&campaign).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update campaign status",
		})
	}
	return c.JSON(utils.SuccessResponse(campaign))
}

// DeleteCampaign removes a campaign and cascades to its schedule rows. The
// send ledger is an audit trail and is kept.
func (cc *CampaignController) DeleteCampaign(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", c.Params("id"), userID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	if err := cc.DB.Where("campaign_id = ?", campaign.ID).Delete(&models.CampaignSchedule{}).Error; err != nil {
		cc.Logger.WithError(err).Error("Failed to delete campaign schedules")
	}
	if err := cc.DB.Delete(&campaign).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete campaign",
		})
	}
	return c.JSON(fiber.Map{
		"message": "Campaign deleted successfully",
	})
}

// GetCampaignStats surfaces the denormalized counters plus schedule state.
func (cc *CampaignController) GetCampaignStats(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", c.Params("id"), userID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	var schedules []models.CampaignSchedule
	if err := cc.DB.Where("campaign_id = ?", campaign.ID).Order("step_index").Find(&schedules).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch schedules",
		})
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"status":             campaign.Status,
		"total_sent":         campaign.TotalSent,
		"total_failed":       campaign.TotalFailed,
		"open_count":         campaign.OpenCount,
		"unique_open_count":  campaign.UniqueOpenCount,
		"click_count":        campaign.ClickCount,
		"unique_click_count": campaign.UniqueClickCount,
		"reply_count":        campaign.ReplyCount,
		"schedules":          schedules,
	}))
}

// GetCampaignSends pages through the campaign's send ledger.
func (cc *CampaignController) GetCampaignSends(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", c.Params("id"), userID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var total int64
	cc.DB.Model(&models.Send{}).Where("campaign_id = ?", campaign.ID).Count(&total)

	var sends []models.Send
	err := cc.DB.Where("campaign_id = ?", campaign.ID).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&sends).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch sends",
		})
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  sends,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}
