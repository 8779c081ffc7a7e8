package compliance

import "time"

// IsHoliday reports whether t's local date falls on a US federal holiday.
// Observed (shifted) dates are not modeled; the window config is a calling
// courtesy, not payroll.
func IsHoliday(t time.Time) bool {
	y, m, d := t.Date()

	switch {
	case m == time.January && d == 1: // New Year's Day
		return true
	case m == time.June && d == 19: // Juneteenth
		return true
	case m == time.July && d == 4: // Independence Day
		return true
	case m == time.November && d == 11: // Veterans Day
		return true
	case m == time.December && d == 25: // Christmas
		return true
	}

	switch {
	case sameDay(t, nthWeekday(y, time.January, time.Monday, 3)): // MLK Day
		return true
	case sameDay(t, nthWeekday(y, time.February, time.Monday, 3)): // Presidents' Day
		return true
	case sameDay(t, lastWeekday(y, time.May, time.Monday)): // Memorial Day
		return true
	case sameDay(t, nthWeekday(y, time.September, time.Monday, 1)): // Labor Day
		return true
	case sameDay(t, nthWeekday(y, time.November, time.Thursday, 4)): // Thanksgiving
		return true
	}

	return false
}

func sameDay(a, b time.Time) bool {
	return a.Month() == b.Month() && a.Day() == b.Day()
}

// nthWeekday returns the nth occurrence of a weekday within a month.
func nthWeekday(year int, month time.Month, day time.Weekday, n int) time.Time {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(day) - int(t.Weekday()) + 7) % 7
	return t.AddDate(0, 0, offset+(n-1)*7)
}

// lastWeekday returns the final occurrence of a weekday within a month.
func lastWeekday(year int, month time.Month, day time.Weekday) time.Time {
	t := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	offset := (int(t.Weekday()) - int(day) + 7) % 7
	return t.AddDate(0, 0, -offset)
}
