package ics

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"robcal/internal/recurrence"
)

// ErrUnsupportedRRule marks an RRULE whose meaning cannot be expressed as a
// recurrence.Rule without changing which dates it produces. Such rules are
// kept raw and expanded with rrule-go instead.
var ErrUnsupportedRRule = errors.New("rrule not representable as a recurrence rule")

// rrule-go indexes weekdays from Monday (MO=0 .. SU=6).
var rruleWeekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

func toRRuleWeekday(d time.Weekday) rrule.Weekday {
	return rruleWeekdays[d]
}

func fromRRuleWeekday(w rrule.Weekday) time.Weekday {
	return time.Weekday((w.Day() + 1) % 7)
}

// RRuleFromRule renders rule as an RRULE value (without the "RRULE:"
// prefix) anchored at start. Month-end clamping of by-date rules is written
// as BYMONTHDAY=28,...,d;BYSETPOS=-1, and an until date becomes the last
// second of that day in start's location.
func RRuleFromRule(rule recurrence.Rule, start time.Time) (string, error) {
	if err := rule.Validate(); err != nil {
		return "", err
	}

	opt := rrule.ROption{Interval: rule.Every()}
	switch rule.Pattern {
	case recurrence.PatternDaily:
		opt.Freq = rrule.DAILY

	case recurrence.PatternWeekly:
		opt.Freq = rrule.WEEKLY
		// Weekly blocks run Sunday..Saturday.
		opt.Wkst = rrule.SU
		for d, on := range rule.Weekly.Days {
			if on {
				opt.Byweekday = append(opt.Byweekday, toRRuleWeekday(time.Weekday(d)))
			}
		}
		if len(opt.Byweekday) == 0 {
			return "", fmt.Errorf("weekly rule without days: %w", ErrUnsupportedRRule)
		}

	case recurrence.PatternMonthly:
		opt.Freq = rrule.MONTHLY
		if err := setDayOptions(&opt, rule.Monthly.Option, rule.Monthly.ByDate, rule.Monthly.ByDay); err != nil {
			return "", err
		}

	case recurrence.PatternYearly:
		opt.Freq = rrule.YEARLY
		opt.Bymonth = []int{int(rule.Yearly.Month)}
		if err := setDayOptions(&opt, rule.Yearly.Option, rule.Yearly.ByDate, rule.Yearly.ByDay); err != nil {
			return "", err
		}
	}

	switch rule.Until.Type {
	case recurrence.UntilCount:
		opt.Count = rule.Until.Count
	case recurrence.UntilDate:
		d := rule.Until.Date.MustGet().In(start.Location())
		opt.Until = time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, start.Location())
	}

	if opt.Interval == 1 {
		opt.Interval = 0
	}
	return opt.RRuleString(), nil
}

func setDayOptions(opt *rrule.ROption, o recurrence.Option, byDate recurrence.ByDate, byDay recurrence.ByDay) error {
	if o == recurrence.OptionByDate {
		if byDate.Date <= 28 {
			opt.Bymonthday = []int{byDate.Date}
			return nil
		}
		for d := 28; d <= byDate.Date; d++ {
			opt.Bymonthday = append(opt.Bymonthday, d)
		}
		opt.Bysetpos = []int{-1}
		return nil
	}

	pos := int(byDay.WeekOf) + 1
	if byDay.WeekOf == recurrence.OrdinalLast {
		pos = -1
	}

	switch byDay.Day {
	case recurrence.DayAny:
		opt.Bymonthday = []int{pos}
	case recurrence.DayWeekday:
		opt.Byweekday = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR}
		opt.Bysetpos = []int{pos}
	case recurrence.DayWeekend:
		opt.Byweekday = []rrule.Weekday{rrule.SA, rrule.SU}
		opt.Bysetpos = []int{pos}
	default:
		wd := toRRuleWeekday(time.Weekday(byDay.Day))
		opt.Byweekday = []rrule.Weekday{wd.Nth(pos)}
	}
	return nil
}

// RuleFromRRule translates an RRULE value into a recurrence.Rule for a
// series starting at start. It fails with ErrUnsupportedRRule when the
// translation would change the produced dates, e.g. BYMONTHDAY=31, which
// skips short months where a by-date rule clamps.
func RuleFromRRule(raw string, start time.Time) (recurrence.Rule, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return recurrence.Rule{}, errors.New("empty rrule")
	}
	opt, err := rrule.StrToROptionInLocation(raw, start.Location())
	if err != nil {
		return recurrence.Rule{}, fmt.Errorf("parse rrule %q: %w", raw, err)
	}

	unsupported := func(why string) (recurrence.Rule, error) {
		return recurrence.Rule{}, fmt.Errorf("%s in %q: %w", why, raw, ErrUnsupportedRRule)
	}
	if len(opt.Byhour)+len(opt.Byminute)+len(opt.Bysecond)+len(opt.Byyearday)+len(opt.Byweekno)+len(opt.Byeaster) > 0 {
		return unsupported("time or year-level BY* parts")
	}
	every := opt.Interval
	if every <= 0 {
		every = 1
	}

	var rule recurrence.Rule
	switch opt.Freq {
	case rrule.DAILY:
		if len(opt.Bymonth)+len(opt.Bymonthday)+len(opt.Byweekday)+len(opt.Bysetpos) > 0 {
			return unsupported("filtered daily rule")
		}
		rule = recurrence.EveryDay(every)

	case rrule.WEEKLY:
		if len(opt.Bymonth)+len(opt.Bymonthday)+len(opt.Bysetpos) > 0 {
			return unsupported("filtered weekly rule")
		}
		var days []time.Weekday
		for _, w := range opt.Byweekday {
			if w.N() != 0 {
				return unsupported("ordinal weekday in weekly rule")
			}
			days = append(days, fromRRuleWeekday(w))
		}
		if len(days) == 0 {
			days = []time.Weekday{start.Weekday()}
		}
		// Week blocks only line up when they start on Sunday, or when the
		// grouping cannot matter.
		if every > 1 && opt.Wkst != rrule.SU && slices.Contains(days, time.Sunday) {
			return unsupported("week start other than Sunday")
		}
		rule = recurrence.OnWeekdays(every, days...)

	case rrule.MONTHLY:
		if len(opt.Bymonth) > 0 {
			return unsupported("filtered monthly rule")
		}
		o, byDate, byDay, ok := dayOptions(opt, start, 28)
		if !ok {
			return unsupported("monthly day selection")
		}
		rule = recurrence.Rule{Pattern: recurrence.PatternMonthly, Monthly: recurrence.Monthly{
			Every: every, Option: o, ByDate: byDate, ByDay: byDay,
		}}

	case rrule.YEARLY:
		month := start.Month()
		switch len(opt.Bymonth) {
		case 0:
			// Without BYMONTH the day parts apply to every month of the year.
			if len(opt.Bymonthday)+len(opt.Byweekday)+len(opt.Bysetpos) > 0 {
				return unsupported("yearly day selection without month")
			}
		case 1:
			month = time.Month(opt.Bymonth[0])
		default:
			return unsupported("several months")
		}
		o, byDate, byDay, ok := dayOptions(opt, start, minDaysIn(month))
		if !ok {
			return unsupported("yearly day selection")
		}
		rule = recurrence.Rule{Pattern: recurrence.PatternYearly, Yearly: recurrence.Yearly{
			Every: every, Month: month, Option: o, ByDate: byDate, ByDay: byDay,
		}}

	default:
		return unsupported("sub-daily frequency")
	}

	switch {
	case opt.Count > 0 && !opt.Until.IsZero():
		return unsupported("COUNT with UNTIL")
	case opt.Count > 0:
		rule = rule.EndingAfter(opt.Count)
	case !opt.Until.IsZero():
		// Until is day-granular here; an UNTIL earlier in the day than the
		// series' clock time already excludes that day.
		until := opt.Until.In(start.Location())
		if clock(until) < clock(start) {
			until = until.AddDate(0, 0, -1)
		}
		rule = rule.EndingOn(until)
	}

	if err := rule.Validate(); err != nil {
		return recurrence.Rule{}, fmt.Errorf("rrule %q: %w", raw, err)
	}
	return rule, nil
}

// dayOptions maps the monthday/weekday/setpos parts of a monthly or yearly
// RRULE onto a by-date or by-day selection. safeDate is the largest plain
// BYMONTHDAY that exists in every eligible month.
func dayOptions(opt *rrule.ROption, start time.Time, safeDate int) (recurrence.Option, recurrence.ByDate, recurrence.ByDay, bool) {
	var (
		none   recurrence.ByDay
		noDate recurrence.ByDate
	)
	ordinal := func(pos int) (recurrence.Ordinal, bool) {
		switch {
		case pos == -1:
			return recurrence.OrdinalLast, true
		case pos >= 1 && pos <= 4:
			return recurrence.Ordinal(pos - 1), true
		}
		return 0, false
	}

	days, weekdays, setpos := opt.Bymonthday, opt.Byweekday, opt.Bysetpos
	switch {
	case len(days) == 0 && len(weekdays) == 0 && len(setpos) == 0:
		if start.Day() > safeDate {
			return 0, noDate, none, false
		}
		return recurrence.OptionByDate, recurrence.ByDate{Date: start.Day()}, none, true

	case len(weekdays) == 0 && len(setpos) == 0 && len(days) == 1:
		switch d := days[0]; {
		case d == -1:
			return recurrence.OptionByDay, noDate, recurrence.ByDay{Day: recurrence.DayAny, WeekOf: recurrence.OrdinalLast}, true
		case d >= 1 && d <= safeDate:
			return recurrence.OptionByDate, recurrence.ByDate{Date: d}, none, true
		}

	case len(weekdays) == 0 && len(setpos) == 1 && setpos[0] == -1 && isClampRun(days):
		return recurrence.OptionByDate, recurrence.ByDate{Date: days[len(days)-1]}, none, true

	case len(days) == 0 && len(weekdays) == 1 && len(setpos) == 0:
		w := weekdays[0]
		if wo, ok := ordinal(w.N()); ok {
			return recurrence.OptionByDay, noDate, recurrence.ByDay{Day: recurrence.DayClass(fromRRuleWeekday(w)), WeekOf: wo}, true
		}

	case len(days) == 0 && len(setpos) == 1:
		wo, ok := ordinal(setpos[0])
		if !ok {
			break
		}
		for _, w := range weekdays {
			if w.N() != 0 {
				return 0, noDate, none, false
			}
		}
		if class, ok := classOf(weekdays); ok {
			return recurrence.OptionByDay, noDate, recurrence.ByDay{Day: class, WeekOf: wo}, true
		}
	}
	return 0, noDate, none, false
}

// isClampRun reports whether days is 28,29,...,d with d in 29..31.
func isClampRun(days []int) bool {
	if len(days) < 2 || len(days) > 4 || days[0] != 28 {
		return false
	}
	for i, d := range days {
		if d != 28+i {
			return false
		}
	}
	return true
}

func classOf(weekdays []rrule.Weekday) (recurrence.DayClass, bool) {
	var set [7]bool
	for _, w := range weekdays {
		set[fromRRuleWeekday(w)] = true
	}
	count := 0
	for _, on := range set {
		if on {
			count++
		}
	}
	switch {
	case count == 1:
		for d, on := range set {
			if on {
				return recurrence.DayClass(d), true
			}
		}
	case count == 5 && !set[time.Saturday] && !set[time.Sunday]:
		return recurrence.DayWeekday, true
	case count == 2 && set[time.Saturday] && set[time.Sunday]:
		return recurrence.DayWeekend, true
	case count == 7:
		return recurrence.DayAny, true
	}
	return 0, false
}

func clock(t time.Time) time.Duration {
	h, m, sec := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second
}

// minDaysIn is the length of month in a common year.
func minDaysIn(month time.Month) int {
	return time.Date(2023, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
