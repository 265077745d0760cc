package recurrence

import "time"

// Calendar arithmetic. Day stepping happens on civil dates (midnight UTC,
// where every day is 24h long); a result is placed at the reference's wall
// clock only once. Chaining through a local time that fell into a DST gap
// would carry the normalized clock into every later date.

// civilDate returns t's calendar date as midnight UTC.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// onDay places the civil date d at ref's time of day and location.
func onDay(d, ref time.Time) time.Time {
	y, m, dd := d.Date()
	return time.Date(y, m, dd, ref.Hour(), ref.Minute(), ref.Second(), ref.Nanosecond(), ref.Location())
}

// addDays moves ref by n calendar days keeping its wall clock.
func addDays(ref time.Time, n int) time.Time {
	return onDay(civilDate(ref).AddDate(0, 0, n), ref)
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// stepWhile moves the civil date d by step days while cond holds.
func stepWhile(d time.Time, step int, cond func(time.Time) bool) time.Time {
	for cond(d) {
		d = d.AddDate(0, 0, step)
	}
	return d
}

func notWeekend(t time.Time) bool { return !isWeekend(t) }

func thisOrPreviousWeekday(t time.Time) time.Time {
	return onDay(stepWhile(civilDate(t), -1, isWeekend), t)
}

func thisOrNextWeekday(t time.Time) time.Time {
	return onDay(stepWhile(civilDate(t), 1, isWeekend), t)
}

func thisOrPreviousWeekendDay(t time.Time) time.Time {
	return onDay(stepWhile(civilDate(t), -1, notWeekend), t)
}

func thisOrNextWeekendDay(t time.Time) time.Time {
	return onDay(stepWhile(civilDate(t), 1, notWeekend), t)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// civilInMonth returns the given day of (year, month) as a civil date.
// Month overflow is normalized first; a day past the end of the month is
// clamped to its last day.
func civilInMonth(year int, month time.Month, day int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return first.AddDate(0, 0, day-1)
}

// dateInMonth returns the given day of (year, month) at ref's time of day,
// clamped like civilInMonth.
func dateInMonth(ref time.Time, year int, month time.Month, day int) time.Time {
	return onDay(civilInMonth(year, month, day), ref)
}

// resolveOrdinalDay positions t on the requested occurrence of day within
// t's month. An ordinal weekday that does not exist in the month rolls
// forward into the next one; callers filter against the series start.
func resolveOrdinalDay(t time.Time, weekOf Ordinal, day DayClass) time.Time {
	return ordinalDayIn(t, t.Year(), t.Month(), weekOf, day)
}

// ordinalDayIn resolves the ordinal day of (year, month) at ref's time of day.
func ordinalDayIn(ref time.Time, year int, month time.Month, weekOf Ordinal, day DayClass) time.Time {
	return onDay(ordinalCivil(year, month, weekOf, day), ref)
}

func ordinalCivil(year int, month time.Month, weekOf Ordinal, day DayClass) time.Time {
	first := civilInMonth(year, month, 1)
	last := civilInMonth(year, month, 31)

	switch day {
	case DayAny:
		if weekOf == OrdinalLast {
			return last
		}
		return first.AddDate(0, 0, int(weekOf))

	case DayWeekday:
		if weekOf == OrdinalLast {
			return stepWhile(last, -1, isWeekend)
		}
		cur := stepWhile(first, 1, isWeekend)
		for i := 0; i < int(weekOf); i++ {
			cur = stepWhile(cur.AddDate(0, 0, 1), 1, isWeekend)
		}
		return cur

	case DayWeekend:
		if weekOf == OrdinalLast {
			return stepWhile(last, -1, notWeekend)
		}
		cur := stepWhile(first, 1, notWeekend)
		for i := 0; i < int(weekOf); i++ {
			cur = stepWhile(cur.AddDate(0, 0, 1), 1, notWeekend)
		}
		return cur
	}

	wd := time.Weekday(day)
	if weekOf == OrdinalLast {
		return firstWeekdayOnOrAfter(last.AddDate(0, 0, 1), wd).AddDate(0, 0, -7)
	}
	return firstWeekdayOnOrAfter(first, wd).AddDate(0, 0, 7*int(weekOf))
}

// firstWeekdayOnOrAfter works on civil dates.
func firstWeekdayOnOrAfter(t time.Time, wd time.Weekday) time.Time {
	shift := (int(wd) - int(t.Weekday()) + 7) % 7
	return t.AddDate(0, 0, shift)
}

// Day-granularity comparisons, evaluated in the candidate's own location.

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// afterDay reports whether t's whole day lies after bound.
func afterDay(t, bound time.Time) bool {
	return startOfDay(t).After(bound)
}

// sameOrAfterDay reports whether t's day contains or follows bound.
func sameOrAfterDay(t, bound time.Time) bool {
	return bound.Before(startOfDay(t).AddDate(0, 0, 1))
}
