package models

import (
	"time"

	"gorm.io/gorm"
)

// Send is the durable ledger row for one send attempt. One row exists per
// (campaign, contact, step, firing window); rows are created in a pending
// state before the transport is invoked so the tracking id is available for
// pixel embedding, then finalized with the outcome. Rows are never deleted.
type Send struct {
	gorm.Model
	CampaignID uint `gorm:"not null;uniqueIndex:idx_send_firing" json:"campaign_id"`
	ContactID  uint `gorm:"not null;uniqueIndex:idx_send_firing" json:"contact_id"`
	StepIndex  int  `gorm:"not null;uniqueIndex:idx_send_firing" json:"step_index"`

	// Correlation id embedded in tracking URLs
	TrackingID string `gorm:"not null;uniqueIndex" json:"tracking_id"`

	// Rendered content snapshot
	RenderedSubject string `json:"rendered_subject"`
	RenderedBody    string `gorm:"type:text" json:"rendered_body"`

	// The firing window this send belongs to; part of the unique key so a
	// recurring step may legitimately send again on its next occurrence.
	ScheduledFor time.Time `gorm:"not null;uniqueIndex:idx_send_firing" json:"scheduled_for"`

	// Outcome
	Sent          bool       `gorm:"default:false;index" json:"sent"`
	SentAt        *time.Time `json:"sent_at"`
	Opened        bool       `gorm:"default:false" json:"opened"`
	OpenedAt      *time.Time `json:"opened_at"`
	Clicked       bool       `gorm:"default:false" json:"clicked"`
	ClickedAt     *time.Time `json:"clicked_at"`
	Replied       bool       `gorm:"default:false" json:"replied"`
	RepliedAt     *time.Time `json:"replied_at"`
	Failed        bool       `gorm:"default:false" json:"failed"`
	FailureReason string     `json:"failure_reason"`

	// Relations
	Campaign Campaign        `json:"-"`
	Contact  Contact         `json:"-"`
	Events   []TrackingEvent `gorm:"foreignKey:SendID" json:"events,omitempty"`
}

// Tracking event types
const (
	TrackingEventOpen  = "open"
	TrackingEventClick = "click"
)

// TrackingEvent is the append-only log of opens and clicks against a Send.
type TrackingEvent struct {
	gorm.Model
	SendID uint `gorm:"not null;index" json:"send_id"`

	EventType  string    `gorm:"not null" json:"event_type"` // open, click
	URL        string    `json:"url"`
	OccurredAt time.Time `gorm:"not null" json:"occurred_at"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
}
