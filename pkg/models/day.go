package models

import (
	"fmt"
	"time"
)

// DayLayout is the calendar-day format used in configuration, flags and HTTP queries.
const DayLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// Day discards the time of day, keeping the calendar date as seen in t's location.
// The result is always expressed as midnight UTC so days compare with ==.
func Day(t time.Time) time.Time {
	year, month, day := t.Date()

	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// AddDays shifts a calendar day by n days (n may be negative).
func AddDays(day time.Time, n int) time.Time {
	return Day(day).AddDate(0, 0, n)
}

// DaysBetween returns the number of whole calendar days from "from" to "to".
// It works on Unix seconds because time.Duration saturates past roughly 292 years.
func DaysBetween(from, to time.Time) int {
	return int((Day(to).Unix() - Day(from).Unix()) / secondsPerDay)
}

// ParseDay parses a YYYY-MM-DD string into a calendar day.
func ParseDay(value string) (time.Time, error) {
	parsed, err := time.Parse(DayLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q, expected %s: %w", value, DayLayout, err)
	}

	return parsed, nil
}
