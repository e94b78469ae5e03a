package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/badoux/checkmail"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"teymur/broadcast"
	"teymur/models"
	"teymur/scheduler"
	"teymur/utils"
)

// due-window classifications for an absolute timestamp
const (
	fireNotYet = iota
	fireDue
	fireMissed
)

var sendableStatuses = []string{
	models.CampaignStatusActive,
	models.CampaignStatusScheduled,
	models.CampaignStatusRunning,
}

// DispatchWorker is the interval poller that finds due schedules and steps,
// enforces at-most-once delivery per (campaign, contact, step, firing) and
// drives per-recipient send attempts.
//
// The design assumes a single active dispatcher; running two instances
// against the same database risks duplicate sends. The optional Redis tick
// lock and the unique index on sends exist as guards, not as a distributed
// coordination scheme.
type DispatchWorker struct {
	DB        *gorm.DB
	Resolver  *scheduler.Resolver
	Transport utils.Transport
	Sink      broadcast.Sink
	Logger    *logrus.Entry
	Lock      *TickLock

	BaseURL   string
	Interval  time.Duration // polling interval, doubles as the tolerance window
	SendDelay time.Duration // fixed pause between recipients (rate limiting)
	Now       func() time.Time
}

func NewDispatchWorker(db *gorm.DB, resolver *scheduler.Resolver, transport utils.Transport,
	sink broadcast.Sink, logger *logrus.Entry, baseURL string,
	interval, sendDelay time.Duration) *DispatchWorker {

	if sink == nil {
		sink = broadcast.NopSink{}
	}
	return &DispatchWorker{
		DB:        db,
		Resolver:  resolver,
		Transport: transport,
		Sink:      sink,
		Logger:    logger,
		BaseURL:   baseURL,
		Interval:  interval,
		SendDelay: sendDelay,
		Now:       time.Now,
	}
}

func (dw *DispatchWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	dw.Logger.Info("Dispatch worker started")
	dw.Sink.Emit("dispatcher online, polling every %s", dw.Interval)

	ticker := time.NewTicker(dw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			dw.Logger.Info("Dispatch worker shutting down...")
			return
		case <-ticker.C:
			dw.RunTick()
		}
	}
}

// RunTick executes one polling pass. Failures enumerating work are logged
// and the tick simply ends; the next tick retries from persisted state.
func (dw *DispatchWorker) RunTick() {
	if dw.Lock != nil {
		acquired, err := dw.Lock.Acquire(dw.Interval)
		if err != nil {
			dw.Logger.WithError(err).Warn("Tick lock unavailable, proceeding unlocked")
		} else if !acquired {
			dw.Logger.Debug("Another dispatcher holds the tick lock, skipping")
			return
		} else {
			defer dw.Lock.Release()
		}
	}

	if err := dw.processInlineSteps(); err != nil {
		dw.Logger.WithError(err).Error("Inline step pass failed")
		sentry.CaptureException(err)
	}
	if err := dw.processSchedules(); err != nil {
		dw.Logger.WithError(err).Error("Schedule pass failed")
		sentry.CaptureException(err)
	}
}

// processInlineSteps is the legacy matching path: one-shot steps carry their
// timestamp inline on the campaign and are matched against the tolerance
// window directly, without a schedule row.
func (dw *DispatchWorker) processInlineSteps() error {
	var campaigns []models.Campaign
	if err := dw.DB.Where("status IN ?", sendableStatuses).Find(&campaigns).Error; err != nil {
		return fmt.Errorf("failed to enumerate campaigns: %w", err)
	}

	now := dw.Now()
	for i := range campaigns {
		campaign := &campaigns[i]
		if len(campaign.Steps) == 0 {
			continue
		}
		for _, step := range campaign.Steps {
			if step.ScheduleType != models.ScheduleTypeOneShot || step.ScheduledAt == nil {
				continue
			}

			switch classifyFiring(now, *step.ScheduledAt, dw.Interval) {
			case fireNotYet:
				continue
			case fireMissed:
				if dw.hasSuccessfulSend(campaign.ID, step.Index) {
					continue // already served in an earlier tick
				}
				dw.Logger.WithFields(logrus.Fields{
					"campaign_id":  campaign.ID,
					"step_index":   step.Index,
					"scheduled_at": step.ScheduledAt,
				}).Warn("Step missed its send window, skipping")
				dw.Sink.Emit("campaign %d step %d missed its window (%s), not sending",
					campaign.ID, step.Index, step.ScheduledAt.Format(time.RFC3339))
				continue
			case fireDue:
				if dw.hasSuccessfulSend(campaign.ID, step.Index) {
					continue
				}
				dw.dispatchUnit(campaign, step, *step.ScheduledAt, false)
			}
		}
	}
	return nil
}

// processSchedules is the schedule-table path: active rows whose next send
// time has arrived, joined to a sendable campaign.
func (dw *DispatchWorker) processSchedules() error {
	now := dw.Now()

	var schedules []models.CampaignSchedule
	err := dw.DB.Where("is_active = ? AND next_send_at <= ?", true, now.Add(dw.Interval)).
		Find(&schedules).Error
	if err != nil {
		return fmt.Errorf("failed to enumerate due schedules: %w", err)
	}

	for i := range schedules {
		sch := &schedules[i]
		if sch.NextSendAt == nil {
			continue // IsActive out of sync, synchronizer will repair it
		}

		var campaign models.Campaign
		if err := dw.DB.First(&campaign, sch.CampaignID).Error; err != nil {
			dw.Logger.WithError(err).WithField("campaign_id", sch.CampaignID).
				Warn("Campaign missing for due schedule")
			continue
		}
		if !campaign.IsSendable() {
			continue
		}

		firingAt := *sch.NextSendAt
		step := sch.Spec
		step.Index = sch.StepIndex
		step.TemplateID = sch.TemplateID

		dw.dispatchUnit(&campaign, step, firingAt, true)

		if err := dw.recomputeSchedule(sch, &campaign); err != nil {
			dw.Logger.WithError(err).WithField("schedule_id", sch.ID).
				Error("Failed to recompute schedule")
		}
	}
	return nil
}

// recomputeSchedule advances a fired schedule to its next occurrence using
// now as the last-fired basis. A nil next occurrence deactivates the row,
// which is how one-shot schedules end up firing exactly once.
func (dw *DispatchWorker) recomputeSchedule(sch *models.CampaignSchedule, campaign *models.Campaign) error {
	now := dw.Now()
	next, err := dw.Resolver.NextSendTime(sch.Spec, &now, campaign.UserID)
	if err != nil {
		if !errors.Is(err, scheduler.ErrCalendarDayNotFound) {
			return err
		}
		dw.Logger.WithField("schedule_id", sch.ID).Warn("Calendar day no longer resolvable")
		next = nil
	}

	updates := map[string]interface{}{
		"next_send_at": next,
		"is_active":    next != nil,
		"last_sent_at": now,
		"send_count":   gorm.Expr("send_count + ?", 1),
	}
	return dw.DB.Model(sch).Updates(updates).Error
}

// dispatchUnit walks the campaign's recipient list for one due step and
// attempts a single delivery per eligible recipient. Every failure is
// contained to its recipient; the loop always finishes.
func (dw *DispatchWorker) dispatchUnit(campaign *models.Campaign, step models.SequenceStep, firingAt time.Time, scopeToFiring bool) {
	var template models.Template
	if err := dw.DB.First(&template, step.TemplateID).Error; err != nil {
		dw.Logger.WithError(err).WithFields(logrus.Fields{
			"campaign_id": campaign.ID,
			"template_id": step.TemplateID,
		}).Warn("Template not found, skipping unit")
		return
	}

	dw.Sink.Emit("campaign %d step %d firing for %d recipient(s)",
		campaign.ID, step.Index, len(campaign.ContactIDs))

	for _, contactID := range campaign.ContactIDs {
		dw.dispatchToContact(campaign, step, &template, contactID, firingAt, scopeToFiring)
	}
}

func (dw *DispatchWorker) dispatchToContact(campaign *models.Campaign, step models.SequenceStep,
	template *models.Template, contactID uint, firingAt time.Time, scopeToFiring bool) {

	logger := dw.Logger.WithFields(logrus.Fields{
		"campaign_id": campaign.ID,
		"contact_id":  contactID,
		"step_index":  step.Index,
	})

	if campaign.StopOnReply && dw.hasReply(campaign.ID, contactID) {
		logger.Debug("Contact replied earlier, stop-on-reply skip")
		return
	}

	// Duplicate guard. On the schedule path the check is scoped to this
	// firing window so a recurring step can legitimately send again.
	query := dw.DB.Model(&models.Send{}).
		Where("campaign_id = ? AND contact_id = ? AND step_index = ? AND sent = ?",
			campaign.ID, contactID, step.Index, true)
	if scopeToFiring {
		query = query.Where("scheduled_for = ?", firingAt)
	}
	var existing int64
	if err := query.Count(&existing).Error; err != nil {
		logger.WithError(err).Error("Duplicate guard query failed")
		return
	}
	if existing > 0 {
		return
	}

	var contact models.Contact
	if err := dw.DB.First(&contact, contactID).Error; err != nil {
		logger.WithError(err).Warn("Contact not found, skipping")
		return
	}
	if !contact.IsSendable() {
		logger.WithField("email", contact.Email).Info("Contact not sendable, skipping")
		return
	}
	if err := checkmail.ValidateFormat(contact.Email); err != nil {
		logger.WithField("email", contact.Email).Warn("Invalid email address, skipping")
		return
	}

	// The pending row is created before the transport call so its tracking
	// id can be embedded into the outgoing HTML.
	send := models.Send{
		CampaignID:   campaign.ID,
		ContactID:    contactID,
		StepIndex:    step.Index,
		TrackingID:   uuid.NewString(),
		ScheduledFor: firingAt,
	}
	if err := dw.DB.Create(&send).Error; err != nil {
		// A unique violation here means another attempt already owns this
		// firing window.
		logger.WithError(err).Warn("Could not create ledger row, skipping")
		return
	}

	subject := utils.Personalize(template.Subject, &contact)
	body := utils.Personalize(template.HTMLContent, &contact)
	body = utils.InjectTracking(body, dw.BaseURL, send.TrackingID)

	msg := utils.OutboundMessage{
		To:         contact.Email,
		Subject:    subject,
		HTMLBody:   body,
		SenderName: campaign.SenderName,
		CC:         campaign.CC,
		BCC:        campaign.BCC,
		Tracking: utils.TrackingInfo{
			CorrelationID: send.TrackingID,
			CampaignID:    campaign.ID,
			ContactID:     contactID,
		},
	}

	sendErr := dw.Transport.Send(msg)

	// Fixed inter-recipient delay regardless of outcome; this is the
	// transport rate limiting.
	if dw.SendDelay > 0 {
		time.Sleep(dw.SendDelay)
	}

	now := dw.Now()
	if sendErr != nil {
		logger.WithError(sendErr).Error("Transport send failed")
		dw.Sink.Emit("campaign %d: send to %s failed: %v", campaign.ID, contact.Email, sendErr)

		if err := dw.DB.Model(&send).Updates(map[string]interface{}{
			"rendered_subject": subject,
			"rendered_body":    body,
			"failed":           true,
			"failure_reason":   sendErr.Error(),
		}).Error; err != nil {
			logger.WithError(err).Error("Failed to finalize failed send")
		}
		dw.bumpCampaignCounter(campaign.ID, "total_failed")
		return
	}

	if err := dw.DB.Model(&send).Updates(map[string]interface{}{
		"rendered_subject": subject,
		"rendered_body":    body,
		"sent":             true,
		"sent_at":          now,
	}).Error; err != nil {
		logger.WithError(err).Error("Failed to finalize sent send")
	}

	dw.bumpCampaignCounter(campaign.ID, "total_sent")
	if err := dw.DB.Model(&models.Contact{}).Where("id = ?", contactID).
		Updates(map[string]interface{}{
			"engagement_score":  gorm.Expr("engagement_score + ?", 1),
			"total_sent":        gorm.Expr("total_sent + ?", 1),
			"last_contacted_at": now,
		}).Error; err != nil {
		logger.WithError(err).Error("Failed to update contact counters")
	}

	dw.Sink.Emit("campaign %d step %d: sent to %s", campaign.ID, step.Index, contact.Email)
}

func (dw *DispatchWorker) hasSuccessfulSend(campaignID uint, stepIndex int) bool {
	var count int64
	err := dw.DB.Model(&models.Send{}).
		Where("campaign_id = ? AND step_index = ? AND sent = ?", campaignID, stepIndex, true).
		Count(&count).Error
	if err != nil {
		dw.Logger.WithError(err).Error("Successful-send lookup failed")
		return false
	}
	return count > 0
}

func (dw *DispatchWorker) hasReply(campaignID, contactID uint) bool {
	var count int64
	err := dw.DB.Model(&models.Send{}).
		Where("campaign_id = ? AND contact_id = ? AND replied = ?", campaignID, contactID, true).
		Count(&count).Error
	if err != nil {
		dw.Logger.WithError(err).Error("Reply lookup failed")
		return false
	}
	return count > 0
}

func (dw *DispatchWorker) bumpCampaignCounter(campaignID uint, column string) {
	if err := dw.DB.Model(&models.Campaign{}).Where("id = ?", campaignID).
		Update(column, gorm.Expr(column+" + ?", 1)).Error; err != nil {
		dw.Logger.WithError(err).WithField("campaign_id", campaignID).
			Error("Failed to bump campaign counter")
	}
}

// classifyFiring places an absolute timestamp relative to the tolerance
// window around now: inside the window means due, beyond it means the
// firing was missed and must not be sent late.
func classifyFiring(now, scheduledAt time.Time, tolerance time.Duration) int {
	delta := now.Sub(scheduledAt)
	switch {
	case delta < -tolerance:
		return fireNotYet
	case delta <= tolerance:
		return fireDue
	default:
		return fireMissed
	}
}
