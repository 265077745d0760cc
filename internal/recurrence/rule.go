package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/mo"
)

// Pattern selects which recurrence family of a Rule is active.
type Pattern int

const (
	PatternDaily Pattern = iota
	PatternWeekly
	PatternMonthly
	PatternYearly
)

// Option selects how monthly and yearly rules pick their day.
type Option int

const (
	OptionByDate Option = iota
	OptionByDay
)

// DayClass is the day selection used by by-day rules. Values 0-6 are the
// weekdays (Sunday=0), matching time.Weekday.
type DayClass int

const (
	DaySunday DayClass = iota
	DayMonday
	DayTuesday
	DayWednesday
	DayThursday
	DayFriday
	DaySaturday
	// DayAny treats the ordinal as a calendar day (first = day 1).
	DayAny
	// DayWeekday matches Monday through Friday.
	DayWeekday
	// DayWeekend matches Saturday and Sunday.
	DayWeekend
)

// Ordinal is the week-of-month qualifier of by-day rules.
type Ordinal int

const (
	OrdinalFirst Ordinal = iota
	OrdinalSecond
	OrdinalThird
	OrdinalFourth

	OrdinalLast Ordinal = -1
)

// UntilType is the termination condition of a rule.
type UntilType int

const (
	UntilNever UntilType = iota
	UntilDate
	UntilCount
)

var (
	ErrUnknownPattern  = errors.New("unknown recurrence pattern")
	ErrUnknownOption   = errors.New("unknown pattern option")
	ErrInvalidInterval = errors.New("interval must be at least 1")
	ErrInvalidDate     = errors.New("day of month must be within 1..31")
	ErrInvalidDayClass = errors.New("invalid day class")
	ErrInvalidOrdinal  = errors.New("invalid week-of-month ordinal")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidUntil    = errors.New("invalid until condition")
)

type Daily struct {
	Every int
}

type Weekly struct {
	Every int
	// Days is indexed by time.Weekday.
	Days [7]bool
}

type ByDate struct {
	Date int
}

type ByDay struct {
	Day    DayClass
	WeekOf Ordinal
}

type Monthly struct {
	Every  int
	Option Option
	ByDate ByDate
	ByDay  ByDay
}

type Yearly struct {
	Every  int
	Month  time.Month
	Option Option
	ByDate ByDate
	ByDay  ByDay
}

// Until ends a series either on a date (inclusive, day granularity) or
// after a number of occurrences counted from the anchor.
type Until struct {
	Type  UntilType
	Date  mo.Option[time.Time]
	Count int
}

// Rule is an immutable recurrence description. Only the block selected by
// Pattern is consulted; the others are ignored.
type Rule struct {
	Pattern Pattern
	Daily   Daily
	Weekly  Weekly
	Monthly Monthly
	Yearly  Yearly
	Until   Until
}

// EveryDay returns a daily rule with the given interval that never ends.
func EveryDay(every int) Rule {
	return Rule{Pattern: PatternDaily, Daily: Daily{Every: every}}
}

// OnWeekdays returns a weekly rule selecting the given days.
func OnWeekdays(every int, days ...time.Weekday) Rule {
	r := Rule{Pattern: PatternWeekly, Weekly: Weekly{Every: every}}
	for _, d := range days {
		if d >= time.Sunday && d <= time.Saturday {
			r.Weekly.Days[d] = true
		}
	}
	return r
}

// MonthlyOnDate returns a monthly by-date rule.
func MonthlyOnDate(every, date int) Rule {
	return Rule{Pattern: PatternMonthly, Monthly: Monthly{
		Every:  every,
		Option: OptionByDate,
		ByDate: ByDate{Date: date},
	}}
}

// MonthlyOnDay returns a monthly by-day rule, e.g. the last Friday.
func MonthlyOnDay(every int, weekOf Ordinal, day DayClass) Rule {
	return Rule{Pattern: PatternMonthly, Monthly: Monthly{
		Every:  every,
		Option: OptionByDay,
		ByDay:  ByDay{Day: day, WeekOf: weekOf},
	}}
}

// YearlyOnDate returns a yearly by-date rule.
func YearlyOnDate(every int, month time.Month, date int) Rule {
	return Rule{Pattern: PatternYearly, Yearly: Yearly{
		Every:  every,
		Month:  month,
		Option: OptionByDate,
		ByDate: ByDate{Date: date},
	}}
}

// YearlyOnDay returns a yearly by-day rule, e.g. the fourth Thursday of November.
func YearlyOnDay(every int, month time.Month, weekOf Ordinal, day DayClass) Rule {
	return Rule{Pattern: PatternYearly, Yearly: Yearly{
		Every:  every,
		Month:  month,
		Option: OptionByDay,
		ByDay:  ByDay{Day: day, WeekOf: weekOf},
	}}
}

// EndingOn returns a copy of r that stops after the given day.
func (r Rule) EndingOn(date time.Time) Rule {
	r.Until = Until{Type: UntilDate, Date: mo.Some(date)}
	return r
}

// EndingAfter returns a copy of r that stops after count occurrences.
func (r Rule) EndingAfter(count int) Rule {
	r.Until = Until{Type: UntilCount, Count: count}
	return r
}

// Every returns the interval of the active pattern.
func (r Rule) Every() int {
	switch r.Pattern {
	case PatternDaily:
		return r.Daily.Every
	case PatternWeekly:
		return r.Weekly.Every
	case PatternMonthly:
		return r.Monthly.Every
	case PatternYearly:
		return r.Yearly.Every
	}
	return 0
}

// Validate reports why a rule is malformed. Expansion never returns this
// error; a rule with an invalid pattern block produces no occurrences.
func (r Rule) Validate() error {
	if err := r.validatePattern(); err != nil {
		return err
	}

	switch r.Until.Type {
	case UntilNever:
	case UntilDate:
		if d, ok := r.Until.Date.Get(); !ok || d.IsZero() {
			return fmt.Errorf("until date missing: %w", ErrInvalidUntil)
		}
	case UntilCount:
		if r.Until.Count < 1 {
			return fmt.Errorf("until count %d: %w", r.Until.Count, ErrInvalidUntil)
		}
	default:
		return fmt.Errorf("until type %d: %w", r.Until.Type, ErrInvalidUntil)
	}
	return nil
}

func (r Rule) validatePattern() error {
	if r.Pattern < PatternDaily || r.Pattern > PatternYearly {
		return fmt.Errorf("pattern %d: %w", r.Pattern, ErrUnknownPattern)
	}
	if every := r.Every(); every < 1 {
		return fmt.Errorf("%s every %d: %w", r.Pattern, every, ErrInvalidInterval)
	}

	switch r.Pattern {
	case PatternMonthly:
		if err := validateOption(r.Monthly.Option, r.Monthly.ByDate, r.Monthly.ByDay); err != nil {
			return fmt.Errorf("monthly: %w", err)
		}
	case PatternYearly:
		if r.Yearly.Month < time.January || r.Yearly.Month > time.December {
			return fmt.Errorf("yearly month %d: %w", r.Yearly.Month, ErrInvalidMonth)
		}
		if err := validateOption(r.Yearly.Option, r.Yearly.ByDate, r.Yearly.ByDay); err != nil {
			return fmt.Errorf("yearly: %w", err)
		}
	}
	return nil
}

func validateOption(opt Option, byDate ByDate, byDay ByDay) error {
	switch opt {
	case OptionByDate:
		if byDate.Date < 1 || byDate.Date > 31 {
			return fmt.Errorf("date %d: %w", byDate.Date, ErrInvalidDate)
		}
	case OptionByDay:
		if byDay.Day < DaySunday || byDay.Day > DayWeekend {
			return fmt.Errorf("day %d: %w", byDay.Day, ErrInvalidDayClass)
		}
		if byDay.WeekOf != OrdinalLast && (byDay.WeekOf < OrdinalFirst || byDay.WeekOf > OrdinalFourth) {
			return fmt.Errorf("week of %d: %w", byDay.WeekOf, ErrInvalidOrdinal)
		}
	default:
		return fmt.Errorf("option %d: %w", opt, ErrUnknownOption)
	}
	return nil
}

// Summary renders a short description such as "last Friday of every month".
func (r Rule) Summary() string {
	var b strings.Builder
	switch r.Pattern {
	case PatternDaily:
		b.WriteString(every(r.Daily.Every, "day", "days"))
	case PatternWeekly:
		b.WriteString(every(r.Weekly.Every, "week", "weeks"))
		var days []string
		for d, on := range r.Weekly.Days {
			if on {
				days = append(days, time.Weekday(d).String()[:3])
			}
		}
		if len(days) > 0 {
			b.WriteString(" on ")
			b.WriteString(strings.Join(days, ", "))
		}
	case PatternMonthly:
		if r.Monthly.Option == OptionByDay {
			b.WriteString(r.Monthly.ByDay.String())
			b.WriteString(" of ")
		} else {
			fmt.Fprintf(&b, "day %d of ", r.Monthly.ByDate.Date)
		}
		b.WriteString(every(r.Monthly.Every, "month", "months"))
	case PatternYearly:
		if r.Yearly.Option == OptionByDay {
			fmt.Fprintf(&b, "%s of %s, ", r.Yearly.ByDay, r.Yearly.Month)
		} else {
			fmt.Fprintf(&b, "%s %d, ", r.Yearly.Month, r.Yearly.ByDate.Date)
		}
		b.WriteString(every(r.Yearly.Every, "year", "years"))
	default:
		return "unknown recurrence"
	}

	switch r.Until.Type {
	case UntilDate:
		if d, ok := r.Until.Date.Get(); ok {
			fmt.Fprintf(&b, " until %s", d.Format("2006-01-02"))
		}
	case UntilCount:
		fmt.Fprintf(&b, ", %d times", r.Until.Count)
	}
	return b.String()
}

func every(n int, one, many string) string {
	if n <= 1 {
		return "every " + one
	}
	return fmt.Sprintf("every %d %s", n, many)
}

func (b ByDay) String() string {
	return b.WeekOf.String() + " " + b.Day.String()
}

func (p Pattern) String() string {
	switch p {
	case PatternDaily:
		return "daily"
	case PatternWeekly:
		return "weekly"
	case PatternMonthly:
		return "monthly"
	case PatternYearly:
		return "yearly"
	}
	return fmt.Sprintf("pattern(%d)", int(p))
}

func (o Option) String() string {
	switch o {
	case OptionByDate:
		return "by_date"
	case OptionByDay:
		return "by_day"
	}
	return fmt.Sprintf("option(%d)", int(o))
}

func (d DayClass) String() string {
	switch {
	case d >= DaySunday && d <= DaySaturday:
		return time.Weekday(d).String()
	case d == DayAny:
		return "day"
	case d == DayWeekday:
		return "weekday"
	case d == DayWeekend:
		return "weekend day"
	}
	return fmt.Sprintf("day(%d)", int(d))
}

func (o Ordinal) String() string {
	switch o {
	case OrdinalFirst:
		return "first"
	case OrdinalSecond:
		return "second"
	case OrdinalThird:
		return "third"
	case OrdinalFourth:
		return "fourth"
	case OrdinalLast:
		return "last"
	}
	return fmt.Sprintf("ordinal(%d)", int(o))
}

func (u UntilType) String() string {
	switch u {
	case UntilNever:
		return "never"
	case UntilDate:
		return "date"
	case UntilCount:
		return "count"
	}
	return fmt.Sprintf("until(%d)", int(u))
}
