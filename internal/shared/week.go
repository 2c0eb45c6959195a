package shared

import "time"

// DateFormat is the storage layout for calendar dates (no time component).
const DateFormat = "2006-01-02"

// WeekStart returns the Monday of the week containing t, at midnight in t's
// location. A Monday-anchored week start keys schedule weeks and shopping
// lists everywhere in the engine.
func WeekStart(t time.Time) time.Time {
	d := Date(t)
	offset := int(d.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7 // Sunday
	}
	return d.AddDate(0, 0, -offset)
}

// Date truncates t to its calendar date, keeping the location.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// FormatDate renders a calendar date for storage.
func FormatDate(t time.Time) string {
	return t.Format(DateFormat)
}

// ParseDate reads a stored calendar date back as a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateFormat, s)
}

// SameDate reports whether a and b fall on the same calendar date.
func SameDate(a, b time.Time) bool {
	return FormatDate(a) == FormatDate(b)
}
