package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"teymur/models"
	"teymur/utils"
)

// CalendarController manages tenant calendar overrides: concrete dates that
// take precedence over the built-in holiday tables for a given year.
type CalendarController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewCalendarController(db *gorm.DB, logger *logrus.Entry) *CalendarController {
	return &CalendarController{
		DB:     db,
		Logger: logger,
	}
}

type calendarDayInput struct {
	Year    int    `json:"year" validate:"required,min=2000,max=2200"`
	DayType string `json:"day_type" validate:"required"`
	Date    string `json:"date" validate:"required"` // "2006-01-02"
}

// UpsertCalendarDay stores or replaces one (year, day_type) override.
func (cal *CalendarController) UpsertCalendarDay(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	var input calendarDayInput
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

	date, err := time.ParseInLocation("2006-01-02", input.Date, time.Local)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "date must be in YYYY-MM-DD format",
		})
	}

	var day models.CalendarDay
	err = cal.DB.Where("user_id = ? AND year = ? AND day_type = ?", userID, input.Year, input.DayType).
		First(&day).Error
	switch {
	case err == nil:
		if err := cal.DB.Model(&day).Update("date", date).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update calendar day",
			})
		}
	case err == gorm.ErrRecordNotFound:
		day = models.CalendarDay{
			UserID:  userID,
			Year:    input.Year,
			DayType: input.DayType,
			Date:    date,
		}
		if err := cal.DB.Create(&day).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create calendar day",
			})
		}
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to look up calendar day",
		})
	}

	return c.JSON(utils.SuccessResponse(day))
}

// GetCalendarDays lists the tenant's overrides, optionally filtered by year.
func (cal *CalendarController) GetCalendarDays(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	query := cal.DB.Where("user_id = ?", userID)
	if year := c.QueryInt("year", 0); year > 0 {
		query = query.Where("year = ?", year)
	}

	var days []models.CalendarDay
	if err := query.Order("year, day_type").Find(&days).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch calendar days",
		})
	}
	return c.JSON(utils.SuccessResponse(days))
}

// DeleteCalendarDay removes one override so resolution falls back to the
// built-in tables.
func (cal *CalendarController) DeleteCalendarDay(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	result := cal.DB.Where("id = ? AND user_id = ?", c.Params("id"), userID).
		Delete(&models.CalendarDay{})
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete calendar day",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Calendar day not found",
		})
	}
	return c.JSON(fiber.Map{
		"message": "Calendar day deleted",
	})
}
