package scheduler

import (
	"strconv"
	"time"

	"teymur/models"
)

// defaultSendTime is used when a step does not configure a time-of-day.
const defaultSendTime = "09:00"

// Resolver computes the next send timestamp for a sequence step's schedule
// spec. A nil timestamp with a nil error means the rule has expired or been
// consumed and the schedule should go inactive.
type Resolver struct {
	Calendar *CalendarResolver
	Now      func() time.Time
}

func NewResolver(calendar *CalendarResolver) *Resolver {
	return &Resolver{
		Calendar: calendar,
		Now:      time.Now,
	}
}

// NextSendTime resolves the next future occurrence of the step's schedule.
// lastFired, when set, is the basis the next occurrence advances from.
func (r *Resolver) NextSendTime(step models.SequenceStep, lastFired *time.Time, userID uint) (*time.Time, error) {
	now := r.Now()

	switch step.ScheduleType {
	case models.ScheduleTypeOneShot:
		if step.ScheduledAt != nil && step.ScheduledAt.After(now) {
			t := *step.ScheduledAt
			return &t, nil
		}
		return nil, nil

	case models.ScheduleTypeRecurring:
		base := now
		if lastFired != nil {
			base = *lastFired
		}
		switch step.RecurType {
		case models.RecurDaily:
			return r.nextDaily(step, base, now)
		case models.RecurWeekly:
			return r.nextWeekly(step, base, now, lastFired)
		case models.RecurMonthly:
			return r.nextMonthly(step, base, now)
		}
		return nil, nil

	case models.ScheduleTypeCalendar:
		return r.nextCalendar(step, now, userID)
	}

	return nil, nil
}

func (r *Resolver) nextDaily(step models.SequenceStep, base, now time.Time) (*time.Time, error) {
	interval := step.IntervalDays
	if interval < 1 {
		interval = 1
	}

	next := snapToSendTime(base.AddDate(0, 0, interval), step.SendTime)
	for !next.After(now) {
		next = next.AddDate(0, 0, interval)
	}

	if pastEndDate(next, step.EndDate) {
		return nil, nil
	}
	return &next, nil
}

// nextWeekly scans forward day-by-day, bounded to two weeks, for a date that
// lands on a configured weekday and is strictly in the future.
func (r *Resolver) nextWeekly(step models.SequenceStep, base, now time.Time, lastFired *time.Time) (*time.Time, error) {
	if len(step.Weekdays) == 0 {
		return nil, nil
	}

	allowed := make(map[time.Weekday]bool, len(step.Weekdays))
	for _, wd := range step.Weekdays {
		allowed[time.Weekday(wd)] = true
	}

	for i := 0; i <= 14; i++ {
		candidate := snapToSendTime(base.AddDate(0, 0, i), step.SendTime)
		if !allowed[candidate.Weekday()] {
			continue
		}
		if !candidate.After(now) {
			continue
		}
		if lastFired != nil && !candidate.After(*lastFired) {
			continue
		}
		if pastEndDate(candidate, step.EndDate) {
			return nil, nil
		}
		return &candidate, nil
	}
	return nil, nil
}

func (r *Resolver) nextMonthly(step models.SequenceStep, base, now time.Time) (*time.Time, error) {
	for i := 1; i <= 48; i++ {
		anchor := time.Date(base.Year(), base.Month()+time.Month(i), 1, 0, 0, 0, 0, base.Location())
		day := resolveDayOfMonth(step.DayOfMonth, anchor, base.Day())
		candidate := snapToSendTime(
			time.Date(anchor.Year(), anchor.Month(), day, 0, 0, 0, 0, anchor.Location()),
			step.SendTime,
		)
		if !candidate.After(now) {
			continue
		}
		if pastEndDate(candidate, step.EndDate) {
			return nil, nil
		}
		return &candidate, nil
	}
	return nil, nil
}

func (r *Resolver) nextCalendar(step models.SequenceStep, now time.Time, userID uint) (*time.Time, error) {
	occurrence := func(year int) (time.Time, error) {
		if step.DayType != "" {
			return r.Calendar.Resolve(step.DayType, year, userID)
		}
		if step.CustomDate == nil {
			return time.Time{}, ErrCalendarDayNotFound
		}
		d := *step.CustomDate
		return time.Date(year, d.Month(), d.Day(), 0, 0, 0, 0, time.Local), nil
	}

	day, err := occurrence(now.Year())
	if err != nil {
		return nil, err
	}
	candidate := snapToSendTime(day.AddDate(0, 0, step.OffsetDays), step.SendTime)

	if !candidate.After(now) {
		if !step.RepeatYearly {
			return nil, nil
		}
		day, err = occurrence(now.Year() + 1)
		if err != nil {
			return nil, err
		}
		candidate = snapToSendTime(day.AddDate(0, 0, step.OffsetDays), step.SendTime)
		if !candidate.After(now) {
			return nil, nil
		}
	}

	if pastEndDate(candidate, step.EndDate) {
		return nil, nil
	}
	return &candidate, nil
}

// snapToSendTime keeps the date of t and replaces the clock with the
// configured "15:04" time-of-day.
func snapToSendTime(t time.Time, sendTime string) time.Time {
	if sendTime == "" {
		sendTime = defaultSendTime
	}
	parsed, err := time.Parse("15:04", sendTime)
	if err != nil {
		parsed, _ = time.Parse("15:04", defaultSendTime)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), parsed.Hour(), parsed.Minute(), 0, 0, t.Location())
}

// resolveDayOfMonth maps the configured day-of-month onto the month that
// anchor falls in. "last" resolves to the final calendar day; numeric days
// clamp to the month's actual length.
func resolveDayOfMonth(dayOfMonth string, anchor time.Time, fallback int) int {
	max := daysInMonth(anchor.Year(), anchor.Month())
	if dayOfMonth == "last" {
		return max
	}
	day, err := strconv.Atoi(dayOfMonth)
	if err != nil || day < 1 {
		day = fallback
	}
	if day > max {
		day = max
	}
	if day < 1 {
		day = 1
	}
	return day
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.Local).Day()
}

func pastEndDate(t time.Time, end *time.Time) bool {
	return end != nil && t.After(*end)
}
