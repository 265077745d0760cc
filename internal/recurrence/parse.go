package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}

func ParsePattern(s string) (Pattern, error) {
	switch normalizeName(s) {
	case "daily", "day":
		return PatternDaily, nil
	case "weekly", "week":
		return PatternWeekly, nil
	case "monthly", "month":
		return PatternMonthly, nil
	case "yearly", "year", "annually":
		return PatternYearly, nil
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownPattern)
}

// ParseOption accepts "by_date" / "by_day"; an empty string means by date.
func ParseOption(s string) (Option, error) {
	switch normalizeName(s) {
	case "", "by_date", "bydate", "date":
		return OptionByDate, nil
	case "by_day", "byday", "day":
		return OptionByDay, nil
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownOption)
}

// ParseWeekday accepts full or three-letter English weekday names.
func ParseWeekday(s string) (time.Weekday, error) {
	n := normalizeName(s)
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if n == name || n == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("weekday %q: %w", s, ErrInvalidDayClass)
}

func ParseDayClass(s string) (DayClass, error) {
	switch normalizeName(s) {
	case "day", "any", "any_day":
		return DayAny, nil
	case "weekday":
		return DayWeekday, nil
	case "weekend", "weekend_day":
		return DayWeekend, nil
	}
	d, err := ParseWeekday(s)
	if err != nil {
		return 0, fmt.Errorf("day class %q: %w", s, ErrInvalidDayClass)
	}
	return DayClass(d), nil
}

func ParseOrdinal(s string) (Ordinal, error) {
	switch normalizeName(s) {
	case "first", "1st", "1":
		return OrdinalFirst, nil
	case "second", "2nd", "2":
		return OrdinalSecond, nil
	case "third", "3rd", "3":
		return OrdinalThird, nil
	case "fourth", "4th", "4":
		return OrdinalFourth, nil
	case "last", "-1":
		return OrdinalLast, nil
	}
	return 0, fmt.Errorf("%q: %w", s, ErrInvalidOrdinal)
}

// ParseUntilType accepts "never", "date" and "count"; empty means never.
func ParseUntilType(s string) (UntilType, error) {
	switch normalizeName(s) {
	case "", "never", "none":
		return UntilNever, nil
	case "date", "until":
		return UntilDate, nil
	case "count":
		return UntilCount, nil
	}
	return 0, fmt.Errorf("until type %q: %w", s, ErrInvalidUntil)
}

// ParseMonth accepts English month names, their three-letter forms, or 1..12.
func ParseMonth(s string) (time.Month, error) {
	n := normalizeName(s)
	if v, err := strconv.Atoi(n); err == nil {
		if v >= 1 && v <= 12 {
			return time.Month(v), nil
		}
		return 0, fmt.Errorf("month %q: %w", s, ErrInvalidMonth)
	}
	for m := time.January; m <= time.December; m++ {
		name := strings.ToLower(m.String())
		if n == name || n == name[:3] {
			return m, nil
		}
	}
	return 0, fmt.Errorf("month %q: %w", s, ErrInvalidMonth)
}
