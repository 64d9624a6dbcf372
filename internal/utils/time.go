package utils

import (
	"time"

	"github.com/julianstephens/studyplanner/internal/constants"
)

// LoadLocation loads a timezone location from an IANA timezone name.
// If the timezone is "Local" or empty, it returns the system's local timezone.
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" || timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(timezone)
}

// ValidateTimezone checks if the timezone name is valid.
func ValidateTimezone(timezone string) bool {
	if timezone == "" || timezone == "Local" {
		return true
	}
	_, err := time.LoadLocation(timezone)
	return err == nil
}

// DateKey returns the canonical YYYY-MM-DD key for the calendar day of t in
// t's own location. Callers pass times already converted to the user's zone.
func DateKey(t time.Time) string {
	return t.Format(constants.DateFormat)
}

// ValidateDateKey reports whether key is a canonical date key.
func ValidateDateKey(key string) bool {
	t, err := time.Parse(constants.DateFormat, key)
	if err != nil {
		return false
	}
	// Reject non-canonical forms such as missing zero padding.
	return t.Format(constants.DateFormat) == key
}

// AddDays moves t by n calendar days, keeping the wall clock date stable
// across DST transitions.
func AddDays(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+n, 12, 0, 0, 0, t.Location())
}

// LastNDays returns the date keys for ref and the n-1 preceding calendar
// days, oldest first.
func LastNDays(ref time.Time, n int) []string {
	if n <= 0 {
		return nil
	}
	keys := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		keys = append(keys, DateKey(AddDays(ref, -i)))
	}
	return keys
}

// NextMidnight returns the start of the calendar day after t in t's location.
func NextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
