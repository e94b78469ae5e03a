package scheduler

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"teymur/models"
	"teymur/utils"
)

// Synchronizer reconciles a campaign's editable step list against the derived
// schedule table. It is the only writer of schedule rows outside the
// dispatcher's post-firing recompute, and calling it twice with the same
// input leaves the table unchanged.
type Synchronizer struct {
	DB       *gorm.DB
	Resolver *Resolver
	Logger   *logrus.Entry
}

func NewSynchronizer(db *gorm.DB, resolver *Resolver, logger *logrus.Entry) *Synchronizer {
	return &Synchronizer{
		DB:       db,
		Resolver: resolver,
		Logger:   logger,
	}
}

// SyncCampaign rebuilds the schedule rows for a campaign from its current
// step list: orphaned indices are deleted, new indices inserted, existing
// ones updated with a freshly resolved next send time. An empty step list
// removes every schedule the campaign has.
func (s *Synchronizer) SyncCampaign(campaign *models.Campaign) error {
	steps := campaign.Steps

	// Step ordinals follow list position regardless of what the client sent.
	for i := range steps {
		steps[i].Index = i
	}
	if err := ValidateSteps(steps); err != nil {
		return err
	}

	if len(steps) == 0 {
		return s.DB.Where("campaign_id = ?", campaign.ID).
			Delete(&models.CampaignSchedule{}).Error
	}

	var existing []models.CampaignSchedule
	if err := s.DB.Where("campaign_id = ?", campaign.ID).Find(&existing).Error; err != nil {
		return fmt.Errorf("failed to load schedules for campaign %d: %w", campaign.ID, err)
	}

	byIndex := make(map[int]models.CampaignSchedule, len(existing))
	for _, row := range existing {
		byIndex[row.StepIndex] = row
	}

	desired := make(map[int]bool, len(steps))
	for _, step := range steps {
		desired[step.Index] = true
	}

	var orphanIDs []uint
	for _, row := range existing {
		if !desired[row.StepIndex] {
			orphanIDs = append(orphanIDs, row.ID)
		}
	}
	if len(orphanIDs) > 0 {
		if err := s.DB.Delete(&models.CampaignSchedule{}, orphanIDs).Error; err != nil {
			return fmt.Errorf("failed to delete orphaned schedules: %w", err)
		}
		s.Logger.WithFields(logrus.Fields{
			"campaign_id": campaign.ID,
			"count":       len(orphanIDs),
		}).Info("Removed orphaned schedules")
	}

	for _, step := range steps {
		nextSendAt, err := s.Resolver.NextSendTime(step, nil, campaign.UserID)
		if err != nil {
			// Unresolvable specs still get a row; it just stays inactive.
			s.Logger.WithError(err).WithFields(logrus.Fields{
				"campaign_id": campaign.ID,
				"step_index":  step.Index,
			}).Warn("Could not resolve next send time")
			nextSendAt = nil
		}

		if row, ok := byIndex[step.Index]; ok {
			updates := map[string]interface{}{
				"template_id":   step.TemplateID,
				"schedule_type": step.ScheduleType,
				"spec":          step,
				"next_send_at":  nextSendAt,
				"is_active":     nextSendAt != nil,
			}
			if err := s.DB.Model(&row).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update schedule for step %d: %w", step.Index, err)
			}
			continue
		}

		row := models.CampaignSchedule{
			CampaignID:   campaign.ID,
			StepIndex:    step.Index,
			TemplateID:   step.TemplateID,
			ScheduleType: step.ScheduleType,
			Spec:         step,
			NextSendAt:   nextSendAt,
			IsActive:     nextSendAt != nil,
		}
		if err := s.DB.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to create schedule for step %d: %w", step.Index, err)
		}
	}

	return nil
}

// ValidateSteps checks the tagged schedule union of every step before it is
// allowed into the schedule table.
func ValidateSteps(steps []models.SequenceStep) error {
	for _, step := range steps {
		if err := utils.ValidateStruct(step); err != nil {
			return fmt.Errorf("step %d: %w", step.Index, err)
		}
		switch step.ScheduleType {
		case models.ScheduleTypeOneShot:
			if step.ScheduledAt == nil {
				return fmt.Errorf("step %d: one-shot step requires scheduled_at", step.Index)
			}
		case models.ScheduleTypeRecurring:
			switch step.RecurType {
			case models.RecurDaily:
				if step.IntervalDays < 1 {
					return fmt.Errorf("step %d: daily recurrence requires interval_days >= 1", step.Index)
				}
			case models.RecurWeekly:
				if len(step.Weekdays) == 0 {
					return fmt.Errorf("step %d: weekly recurrence requires at least one weekday", step.Index)
				}
			case models.RecurMonthly:
				if step.DayOfMonth == "" {
					return fmt.Errorf("step %d: monthly recurrence requires day_of_month", step.Index)
				}
			default:
				return fmt.Errorf("step %d: recurring step requires recur_type", step.Index)
			}
		case models.ScheduleTypeCalendar:
			if step.DayType == "" && step.CustomDate == nil {
				return fmt.Errorf("step %d: calendar step requires day_type or custom_date", step.Index)
			}
		}
	}
	return nil
}
