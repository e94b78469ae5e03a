package models

import (
	"time"

	"gorm.io/gorm"
)

// Contact represents a single recipient
type Contact struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Email     string `gorm:"not null;index" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Position  string `json:"position"`
	Phone     string `json:"phone"`

	// Free-form attributes referenced by template placeholders
	CustomFields map[string]string `gorm:"type:jsonb;serializer:json" json:"custom_fields"`

	// Status
	IsUnsubscribed bool `gorm:"default:false" json:"is_unsubscribed"`
	IsBounced      bool `gorm:"default:false" json:"is_bounced"`
	IsDoNotContact bool `gorm:"default:false" json:"is_do_not_contact"`

	// Engagement
	EngagementScore int        `gorm:"default:0" json:"engagement_score"`
	TotalSent       int        `gorm:"default:0" json:"total_sent"`
	LastContactedAt *time.Time `json:"last_contacted_at"`
}

// IsSendable reports whether a message may be dispatched to this contact.
func (ct *Contact) IsSendable() bool {
	return !ct.IsUnsubscribed && !ct.IsBounced && !ct.IsDoNotContact
}
