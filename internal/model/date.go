package model

import (
	"fmt"
	"time"
)

// DateFormat is the canonical storage and wire format for calendar dates.
const DateFormat = "2006-01-02"

// Date is a calendar date without a time component, stored as an
// ISO 8601 string so lexicographic comparison matches chronological
// order in SQL.
type Date string

// ParseDate validates and normalizes a date string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return Date(t.Format(DateFormat)), nil
}

// DateOf truncates an instant to its calendar date in UTC.
func DateOf(t time.Time) Date {
	return Date(t.UTC().Format(DateFormat))
}

// Time returns the date as midnight UTC.
func (d Date) Time() time.Time {
	t, _ := time.Parse(DateFormat, string(d))
	return t
}

// Before reports whether d is earlier than other.
func (d Date) Before(other Date) bool { return d < other }

// After reports whether d is later than other.
func (d Date) After(other Date) bool { return d > other }

// DaysSince returns the whole days elapsed from other to d.
func (d Date) DaysSince(other Date) int {
	return int(d.Time().Sub(other.Time()).Hours() / 24)
}

// AddDays returns the date shifted by the given number of days.
func (d Date) AddDays(days int) Date {
	return Date(d.Time().AddDate(0, 0, days).Format(DateFormat))
}

func (d Date) String() string { return string(d) }
