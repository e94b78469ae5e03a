package models

import (
	"time"

	"gorm.io/gorm"
)

// CalendarDay is a tenant-stored concrete date for a named day in a given
// year. Overrides take precedence over the built-in holiday tables.
type CalendarDay struct {
	gorm.Model
	UserID uint `gorm:"not null;uniqueIndex:idx_calendar_user_year_type" json:"user_id"`

	Year    int       `gorm:"not null;uniqueIndex:idx_calendar_user_year_type" json:"year"`
	DayType string    `gorm:"not null;uniqueIndex:idx_calendar_user_year_type" json:"day_type"`
	Date    time.Time `gorm:"not null" json:"date"`
}
