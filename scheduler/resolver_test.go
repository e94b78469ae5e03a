package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teymur/models"
	"teymur/utils"
)

func fixedResolver(now time.Time) *Resolver {
	r := NewResolver(NewCalendarResolver(nil))
	r.Now = func() time.Time { return now }
	return r
}

func TestOneShotOnlyFiresInFuture(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	r := fixedResolver(now)

	future := now.Add(2 * time.Hour)
	step := models.SequenceStep{
		ScheduleType: models.ScheduleTypeOneShot,
		ScheduledAt:  &future,
	}
	next, err := r.NextSendTime(step, nil, 1)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, future, *next)

	past := now.Add(-time.Minute)
	step.ScheduledAt = &past
	next, err = r.NextSendTime(step, nil, 1)
	require.NoError(t, err)
	assert.Nil(t, next, "a consumed or stale one-shot yields no next occurrence")
}

func TestDailyIntervalAdvancesByThreeDays(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.Local)

	step := models.SequenceStep{
		ScheduleType: models.ScheduleTypeRecurring,
		RecurType:    models.RecurDaily,
		IntervalDays: 3,
		SendTime:     "09:00",
	}

	lastFired := start
	for n := 1; n <= 5; n++ {
		r := fixedResolver(lastFired)
		next, err := r.NextSendTime(step, &lastFired, 1)
		require.NoError(t, err)
		require.NotNil(t, next)

		expected := start.AddDate(0, 0, 3*n)
		assert.Equal(t, expected, *next, "occurrence %d", n)
		lastFired = *next
	}
}

func TestDailySkipsPastOccurrences(t *testing.T) {
	// Last fired ten days ago with a 3-day interval: the resolver must keep
	// advancing until it lands strictly in the future.
	now := time.Date(2025, 6, 11, 12, 0, 0, 0, time.Local)
	lastFired := time.Date(2025, 6, 1, 9, 0, 0, 0, time.Local)
	r := fixedResolver(now)

	step := models.SequenceStep{
		ScheduleType: models.ScheduleTypeRecurring,
		RecurType:    models.RecurDaily,
		IntervalDays: 3,
		SendTime:     "09:00",
	}
	next, err := r.NextSendTime(step, &lastFired, 1)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2025, 6, 13, 9, 0, 0, 0, time.Local), *next)
}

func TestWeeklyFindsNextConfiguredWeekday(t *testing.T) {
	// Wednesday; the step wants Mondays at 09:00.
	now := time.Date(2025, 6, 4, 10, 0, 0, 0, time.Local)
	require.Equal(t, time.Wednesday, now.Weekday())

	r := fixedResolver(now)
	step := models.SequenceStep{
		ScheduleType: models.ScheduleTypeRecurring,
		RecurType:    models.RecurWeekly,
		Weekdays:     []int{int(time.Monday)},
		SendTime:     "09:00",
	}

	next, err := r.NextSendTime(step, nil, 1)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2025, 6, 9, 9, 0, 0, 0, time.Local), *next)
	assert.Equal(t, time.Monday, next.Weekday())

	// After that firing, the following occurrence is exactly 7 days later.
	fired := next.Add(30 * time.Second)
	r2 := fixedResolver(fired)
	after, err := r2.NextSendTime(step, &fired, 1)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, time.Date(2025, 6, 16, 9, 0, 0, 0, time.Local), *after)
}

func TestWeeklyWithoutWeekdaysYieldsNothing(t *testing.T) {
	r := fixedResolver(time.Date(2025, 6, 4, 10, 0, 0, 0, time.Local))
	step := models.SequenceStep{
		ScheduleType: models.ScheduleTypeRecurring,
		RecurType:    models.RecurWeekly,
		SendTime:     "09:00",
	}
	next, err := r.NextSendTime(step, nil, 1)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestMonthlyClampsToShortMonth(t *testing.T) {
	// Day 31 requested; June only has 30 days.
	now := time.Date(2025, 5, 31, 10, 0, 0, 0, time.Local)
	r := fixedResolver(now)

	step := models.SequenceStep{
		ScheduleType: models.ScheduleTypeRecurring,
		RecurType:    models.RecurMonthly,
		DayOfMonth:   "31",
		SendTime:     "09:00",
	}
	next, err := r.NextSendTime(step, &now, 1)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2025, 6, 30, 9, 0, 0, 0, time.Local), *next)
}

func TestMonthlyLastDayOfMonth(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.Local)
	r := fixedResolver(now)

	step := models.SequenceStep{
		ScheduleType: models.ScheduleTypeRecurring,
		RecurType:    models.RecurMonthly,
		DayOfMonth:   "last",
		SendTime:     "09:00",
	}
	next, err := r.NextSendTime(step, &now, 1)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2025, 2, 28, 9, 0, 0, 0, time.Local), *next,
		"last day of February 2025")
}

func TestRecurrenceStopsAtEndDate(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.Local)
	r := fixedResolver(now)

	step := models.SequenceStep{
		ScheduleType: models.ScheduleTypeRecurring,
		RecurType:    models.RecurDaily,
		IntervalDays: 1,
		SendTime:     "09:00",
		EndDate:      utils.Pointer(now.Add(12 * time.Hour)),
	}
	next, err := r.NextSendTime(step, &now, 1)
	require.NoError(t, err)
	assert.Nil(t, next, "an expired rule permanently deactivates the schedule")
}

func TestCalendarRelativeRetriesNextYear(t *testing.T) {
	// New Year's minus a week has already passed in June; with yearly
	// repeat on, resolution rolls to next year's date.
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	r := fixedResolver(now)

	step := models.SequenceStep{
		ScheduleType: models.ScheduleTypeCalendar,
		DayType:      "yilbasi",
		OffsetDays:   -7,
		SendTime:     "10:00",
		RepeatYearly: true,
	}
	next, err := r.NextSendTime(step, nil, 1)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2025, 12, 25, 10, 0, 0, 0, time.Local), *next)
}

func TestCalendarRelativeWithoutRepeatExpires(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	r := fixedResolver(now)

	step := models.SequenceStep{
		ScheduleType: models.ScheduleTypeCalendar,
		DayType:      "yilbasi",
		SendTime:     "10:00",
	}
	next, err := r.NextSendTime(step, nil, 1)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestCalendarCustomDate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	r := fixedResolver(now)

	anniversary := time.Date(2019, 9, 12, 0, 0, 0, 0, time.Local)
	step := models.SequenceStep{
		ScheduleType: models.ScheduleTypeCalendar,
		CustomDate:   &anniversary,
		OffsetDays:   -1,
		SendTime:     "08:30",
	}
	next, err := r.NextSendTime(step, nil, 1)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2025, 9, 11, 8, 30, 0, 0, time.Local), *next)
}

func TestCalendarUnknownDayType(t *testing.T) {
	r := fixedResolver(time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local))

	step := models.SequenceStep{
		ScheduleType: models.ScheduleTypeCalendar,
		DayType:      "no_such_day",
	}
	next, err := r.NextSendTime(step, nil, 1)
	assert.ErrorIs(t, err, ErrCalendarDayNotFound)
	assert.Nil(t, next)
}
