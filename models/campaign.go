package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign statuses
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusActive    = "active"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusRunning   = "running"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
	CampaignStatusCancelled = "cancelled"
)

// Schedule spec types for a sequence step
const (
	ScheduleTypeOneShot   = "oneshot"
	ScheduleTypeRecurring = "recurring"
	ScheduleTypeCalendar  = "calendar"
)

// Recurrence types
const (
	RecurDaily   = "daily"
	RecurWeekly  = "weekly"
	RecurMonthly = "monthly"
)

// Campaign represents an email campaign
type Campaign struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	// Campaign details
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`

	// Lifecycle
	Status      string     `gorm:"default:'draft'" json:"status"` // draft, active, scheduled, running, paused, completed, cancelled
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	// Settings
	StopOnReply bool   `gorm:"default:false" json:"stop_on_reply"`
	SenderName  string `json:"sender_name"`
	CC          string `json:"cc"`
	BCC         string `json:"bcc"`

	// Recipients and send plan, edited together from the UI
	ContactIDs []uint         `gorm:"type:jsonb;serializer:json" json:"contact_ids"`
	Steps      []SequenceStep `gorm:"type:jsonb;serializer:json" json:"steps"`

	// Statistics (denormalized for performance)
	TotalSent        int `gorm:"default:0" json:"total_sent"`
	TotalFailed      int `gorm:"default:0" json:"total_failed"`
	OpenCount        int `gorm:"default:0" json:"open_count"`
	UniqueOpenCount  int `gorm:"default:0" json:"unique_open_count"`
	ClickCount       int `gorm:"default:0" json:"click_count"`
	UniqueClickCount int `gorm:"default:0" json:"unique_click_count"`
	ReplyCount       int `gorm:"default:0" json:"reply_count"`

	// Relations
	Schedules []CampaignSchedule `gorm:"foreignKey:CampaignID" json:"schedules,omitempty"`
	Sends     []Send             `gorm:"foreignKey:CampaignID" json:"sends,omitempty"`
}

// IsSendable reports whether the dispatcher may send for this campaign.
func (c *Campaign) IsSendable() bool {
	switch c.Status {
	case CampaignStatusActive, CampaignStatusScheduled, CampaignStatusRunning:
		return true
	}
	return false
}

// SequenceStep is one templated message within a campaign's ordered send plan.
// Steps are stored as a JSON list on the campaign; the schedule spec is a
// tagged union selected by ScheduleType.
type SequenceStep struct {
	Index      int  `json:"index"`
	TemplateID uint `json:"template_id" validate:"required"`

	ScheduleType string `json:"schedule_type" validate:"required,oneof=oneshot recurring calendar"`

	// One-shot: a single absolute timestamp
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`

	// Recurring
	RecurType    string     `json:"recur_type,omitempty" validate:"omitempty,oneof=daily weekly monthly"`
	IntervalDays int        `json:"interval_days,omitempty" validate:"omitempty,min=1"`
	Weekdays     []int      `json:"weekdays,omitempty" validate:"omitempty,dive,min=0,max=6"` // 0=Sunday
	DayOfMonth   string     `json:"day_of_month,omitempty"`                                   // "1".."31" or "last"
	SendTime     string     `json:"send_time,omitempty"`                                      // "15:04"
	EndDate      *time.Time `json:"end_date,omitempty"`

	// Calendar-relative
	DayType      string     `json:"day_type,omitempty"`
	CustomDate   *time.Time `json:"custom_date,omitempty"`
	OffsetDays   int        `json:"offset_days,omitempty"`
	RepeatYearly bool       `json:"repeat_yearly,omitempty"`
}
