package util

import "time"

// DayInMonth returns targetDay of the given month, clamped to the month's last day
func DayInMonth(year int, month time.Month, targetDay int) time.Time {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()

	actualDay := targetDay
	if actualDay > lastDay {
		actualDay = lastDay
	}

	return time.Date(year, month, actualDay, 0, 0, 0, 0, time.UTC)
}

// AddMonths returns the date n calendar months after start, keeping the day of
// month where possible and clamping to month end otherwise (Jan 31 + 1 = Feb 28/29)
func AddMonths(start time.Time, n int) time.Time {
	// Normalise via the first of the month so time.Date does not overflow into the next month
	first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return DayInMonth(first.Year(), first.Month(), start.Day())
}

// DateOnly truncates t to midnight UTC of its calendar date
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
