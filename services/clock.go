package services

import (
	"fmt"
	"time"
)

// ClinicLocation is the fixed clinic timezone. All wall-clock
// comparisons happen in this zone; stored times are naive-in-TZ and
// the boundary converts exactly once.
var ClinicLocation = time.FixedZone("Asia/Taipei", 8*60*60)

// Now returns the current moment in the clinic timezone
func Now() time.Time {
	return time.Now().In(ClinicLocation)
}

// ParseDate parses a date string in YYYY-MM-DD format
func ParseDate(dateStr string) (time.Time, error) {
	parsed, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format: expected YYYY-MM-DD")
	}
	return parsed, nil
}

// ParseClock parses "HH:MM" into minutes since midnight
func ParseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("invalid time format: expected HH:MM")
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock renders minutes since midnight as "HH:MM"
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// DateOf truncates a moment to its clinic-local calendar date
func DateOf(t time.Time) time.Time {
	t = t.In(ClinicLocation)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDate reports whether two date-only values are the same day
func SameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// CombineDateMinutes builds a clinic-local moment from a date-only
// value and minutes since midnight.
func CombineDateMinutes(date time.Time, minutes int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), minutes/60, minutes%60, 0, 0, ClinicLocation)
}

// MinutesOfDay returns the clinic-local minutes since midnight
func MinutesOfDay(t time.Time) int {
	t = t.In(ClinicLocation)
	return t.Hour()*60 + t.Minute()
}

// DayOfWeek returns the weekday (0=Sunday...6=Saturday) of a date
func DayOfWeek(date time.Time) int {
	return int(date.Weekday())
}
