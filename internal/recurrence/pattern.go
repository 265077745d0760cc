package recurrence

import "time"

// Next yields the next candidate of a series. ok is false once the series
// is exhausted, which only happens for a weekly rule without selected days.
type Next func() (t time.Time, ok bool)

// pattern produces the unbounded candidate series of one recurrence family.
// Each call to generate starts a fresh cursor at start.
type pattern interface {
	generate(start time.Time) Next
}

func exhausted() (time.Time, bool) {
	return time.Time{}, false
}

// generator maps the rule onto its pattern. ok is false for rules that
// cannot be expanded.
func (r Rule) generator() (pattern, bool) {
	if r.validatePattern() != nil {
		return nil, false
	}
	switch r.Pattern {
	case PatternDaily:
		return dailyPattern{r.Daily}, true
	case PatternWeekly:
		return weeklyPattern{r.Weekly}, true
	case PatternMonthly:
		if r.Monthly.Option == OptionByDay {
			return monthlyByDayPattern{r.Monthly}, true
		}
		return monthlyByDatePattern{r.Monthly}, true
	case PatternYearly:
		if r.Yearly.Option == OptionByDay {
			return yearlyByDayPattern{r.Yearly}, true
		}
		return yearlyByDatePattern{r.Yearly}, true
	}
	return nil, false
}

type dailyPattern struct {
	Daily
}

func (p dailyPattern) generate(start time.Time) Next {
	n := 0
	return func() (time.Time, bool) {
		t := addDays(start, n)
		n += p.Every
		return t, true
	}
}

// weeklyPattern walks the Sunday..Saturday block containing start from
// start's weekday on, then jumps Every weeks ahead and restarts at Sunday.
type weeklyPattern struct {
	Weekly
}

func (p weeklyPattern) generate(start time.Time) Next {
	selected := false
	for _, on := range p.Days {
		selected = selected || on
	}
	if !selected {
		return exhausted
	}

	// n is the day offset from start; every candidate is built from start.
	n := 0
	d := int(start.Weekday())
	return func() (time.Time, bool) {
		for {
			if d == len(p.Days) {
				d = 0
				n += 7 * (p.Every - 1)
			}
			on, off := p.Days[d], n
			n++
			d++
			if on {
				return addDays(start, off), true
			}
		}
	}
}

type monthlyByDatePattern struct {
	Monthly
}

func (p monthlyByDatePattern) generate(start time.Time) Next {
	year, month, day := start.Date()
	if p.ByDate.Date < day {
		month += time.Month(p.Every)
	}
	return func() (time.Time, bool) {
		t := dateInMonth(start, year, month, p.ByDate.Date)
		month += time.Month(p.Every)
		return t, true
	}
}

// monthlyByDayPattern resolves the ordinal day in each eligible month and
// silently drops resolutions that fall before start.
type monthlyByDayPattern struct {
	Monthly
}

func (p monthlyByDayPattern) generate(start time.Time) Next {
	year, month, _ := start.Date()
	return func() (time.Time, bool) {
		for {
			t := ordinalDayIn(start, year, month, p.ByDay.WeekOf, p.ByDay.Day)
			month += time.Month(p.Every)
			if !t.Before(start) {
				return t, true
			}
		}
	}
}

type yearlyByDatePattern struct {
	Yearly
}

func (p yearlyByDatePattern) generate(start time.Time) Next {
	year := start.Year()
	if p.Month < start.Month() || (p.Month == start.Month() && p.ByDate.Date < start.Day()) {
		year += p.Every
	}
	return func() (time.Time, bool) {
		t := dateInMonth(start, year, p.Month, p.ByDate.Date)
		year += p.Every
		return t, true
	}
}

type yearlyByDayPattern struct {
	Yearly
}

func (p yearlyByDayPattern) generate(start time.Time) Next {
	year := start.Year()
	return func() (time.Time, bool) {
		for {
			t := ordinalDayIn(start, year, p.Month, p.ByDay.WeekOf, p.ByDay.Day)
			year += p.Every
			if !t.Before(start) {
				return t, true
			}
		}
	}
}
