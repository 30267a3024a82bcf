package settlement

import "time"

// Date truncates t to midnight UTC of its calendar day in t's own location.
// Every settlement computation works on such dates, never on instants.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewDate builds a calendar date.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateIn returns the calendar date of t as observed in loc.
func DateIn(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return Date(t)
	}
	return Date(t.In(loc))
}

// DaysBetween returns the number of calendar days from a to b (b - a).
func DaysBetween(a, b time.Time) int {
	return int(Date(b).Sub(Date(a)).Hours() / 24)
}

// IsBusinessDay reports whether d falls Monday through Friday.
func IsBusinessDay(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}

// NextBusinessDay returns d when it is a business day, otherwise the
// following Monday.
func NextBusinessDay(d time.Time) time.Time {
	d = Date(d)
	for !IsBusinessDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// NthBusinessDay counts business days forward from start, start included, and
// returns the date on which the counter reaches n. n < 1 returns start.
func NthBusinessDay(start time.Time, n int) time.Time {
	d := Date(start)
	if n < 1 {
		return d
	}
	count := 0
	for {
		if IsBusinessDay(d) {
			count++
			if count == n {
				return d
			}
		}
		d = d.AddDate(0, 0, 1)
	}
}

// CountBusinessDays returns the inclusive number of business days in
// [from, to]. It is zero when to precedes from.
func CountBusinessDays(from, to time.Time) int {
	from, to = Date(from), Date(to)
	count := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			count++
		}
	}
	return count
}
