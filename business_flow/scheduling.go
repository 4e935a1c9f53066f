package businessflow

import (
	"strings"
	"time"

	"github.com/amirphl/Kusanagi/utils"
)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday maps a lowercase English day name to a time.Weekday
func ParseWeekday(name string) (time.Weekday, error) {
	day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, ErrInvalidWeekday
	}
	return day, nil
}

// ParseTimeOfDay parses an "HH:MM" string into hour and minute
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, ErrInvalidTimeOfDay
	}
	return parsed.Hour(), parsed.Minute(), nil
}

// NextSendInstant computes the next instant matching the delivery preference,
// strictly after now. Pure: no clock or storage access, the caller supplies
// now. Returns nil when no weekday is configured.
//
// If today is the target weekday but the preferred time already passed, the
// result rolls forward a full week. Seconds and sub-seconds are zeroed.
func NextSendInstant(weekday, timeOfDay *string, now time.Time) (*time.Time, error) {
	if weekday == nil || *weekday == "" {
		return nil, nil
	}

	target, err := ParseWeekday(*weekday)
	if err != nil {
		return nil, err
	}

	tod := utils.DefaultSendTime
	if timeOfDay != nil && *timeOfDay != "" {
		tod = *timeOfDay
	}
	hour, minute, err := ParseTimeOfDay(tod)
	if err != nil {
		return nil, err
	}

	days := (int(target) - int(now.Weekday()) + 7) % 7
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location()).
		AddDate(0, 0, days)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 7)
	}

	return &candidate, nil
}
