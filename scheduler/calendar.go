package scheduler

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"teymur/models"
)

// ErrCalendarDayNotFound means no override, fixed date or rule matched the
// requested day type. Callers treat this as "cannot schedule this cycle".
var ErrCalendarDayNotFound = errors.New("calendar day not found")

// fixedDay is a well-known date that falls on the same month/day every year.
type fixedDay struct {
	Month time.Month
	Day   int
}

// ruleDay is a date computed as the Nth occurrence of a weekday in a month.
type ruleDay struct {
	Month   time.Month
	Weekday time.Weekday
	Nth     int
}

var fixedDays = map[string]fixedDay{
	"yilbasi":            {time.January, 1},
	"sevgililer_gunu":    {time.February, 14},
	"kadinlar_gunu":      {time.March, 8},
	"ulusal_egemenlik":   {time.April, 23},
	"isci_bayrami":       {time.May, 1},
	"zafer_bayrami":      {time.August, 30},
	"cumhuriyet_bayrami": {time.October, 29},
	"ogretmenler_gunu":   {time.November, 24},
	"noel":               {time.December, 25},
}

var ruleDays = map[string]ruleDay{
	"anneler_gunu": {time.May, time.Sunday, 2},
	"babalar_gunu": {time.June, time.Sunday, 3},
}

// CalendarResolver maps a named holiday or anniversary type to a concrete
// date for a year, falling back through tenant overrides, the fixed-date
// table and the weekday rules, in that order.
type CalendarResolver struct {
	DB *gorm.DB
}

func NewCalendarResolver(db *gorm.DB) *CalendarResolver {
	return &CalendarResolver{DB: db}
}

// Resolve returns the concrete date of dayType in year for the given tenant.
func (cr *CalendarResolver) Resolve(dayType string, year int, userID uint) (time.Time, error) {
	if cr.DB != nil {
		var override models.CalendarDay
		err := cr.DB.Where("user_id = ? AND year = ? AND day_type = ?", userID, year, dayType).
			First(&override).Error
		if err == nil {
			return override.Date, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, err
		}
	}

	if fd, ok := fixedDays[dayType]; ok {
		return time.Date(year, fd.Month, fd.Day, 0, 0, 0, 0, time.Local), nil
	}

	if rd, ok := ruleDays[dayType]; ok {
		return nthWeekdayOfMonth(year, rd.Month, rd.Weekday, rd.Nth), nil
	}

	return time.Time{}, ErrCalendarDayNotFound
}

// nthWeekdayOfMonth finds the first occurrence of the weekday on or after the
// 1st of the month and adds (n-1) weeks.
func nthWeekdayOfMonth(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.Local)
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+(n-1)*7)
}
