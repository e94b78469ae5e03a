package models

import (
	"time"

	"gorm.io/gorm"
)

// CampaignSchedule is the derived timing record for one sequence step.
// Rows are owned by the Synchronizer and recomputed by the dispatcher after
// each firing; they are never edited directly.
//
// Invariant: IsActive == (NextSendAt != nil).
type CampaignSchedule struct {
	gorm.Model
	CampaignID uint `gorm:"not null;uniqueIndex:idx_schedule_campaign_step" json:"campaign_id"`
	StepIndex  int  `gorm:"not null;uniqueIndex:idx_schedule_campaign_step" json:"step_index"`
	TemplateID uint `gorm:"not null;index" json:"template_id"`

	// Snapshot of the step's schedule spec at sync time
	ScheduleType string       `gorm:"not null" json:"schedule_type"`
	Spec         SequenceStep `gorm:"type:jsonb;serializer:json" json:"spec"`

	// Resolved state
	NextSendAt *time.Time `gorm:"index" json:"next_send_at"`
	LastSentAt *time.Time `json:"last_sent_at"`
	SendCount  int        `gorm:"default:0" json:"send_count"`
	IsActive   bool       `gorm:"default:false;index" json:"is_active"`

	// Relations
	Campaign Campaign `json:"-"`
	Template Template `json:"-"`
}
