// Package view computes the query windows of the calendar views and groups
// expanded occurrences into days.
package view

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"robcal/internal/model"
	"robcal/internal/recurrence"
)

// Kind names a calendar view.
type Kind string

const (
	Day     Kind = "day"
	Week    Kind = "week"
	Month   Kind = "month"
	Quarter Kind = "quarter"
	List    Kind = "list"
)

// ListSpanYears is how far the list view reaches on either side of its anchor.
const ListSpanYears = 2

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "daily":
		return Day, nil
	case "week", "weekly":
		return Week, nil
	case "month", "monthly":
		return Month, nil
	case "quarter", "quarterly":
		return Quarter, nil
	case "list":
		return List, nil
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// ParseWeekStart accepts "monday" or "sunday".
func ParseWeekStart(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "monday", "mon":
		return time.Monday, nil
	case "sunday", "sun":
		return time.Sunday, nil
	}
	return time.Monday, fmt.Errorf("unsupported week start %q", s)
}

// Range returns the window a view of kind shows around anchor, in anchor's
// location. Ends are the last instant of their day.
func Range(kind Kind, anchor time.Time, weekStart time.Weekday) (recurrence.Window, error) {
	if anchor.IsZero() {
		return recurrence.Window{}, fmt.Errorf("view %s: anchor is zero", kind)
	}

	switch kind {
	case Day:
		return recurrence.Window{Start: startOfDay(anchor), End: endOfDay(anchor)}, nil

	case Week:
		start := startOfWeek(anchor, weekStart)
		return recurrence.Window{Start: start, End: endOfDay(start.AddDate(0, 0, 6))}, nil

	case Month:
		first := firstOfMonth(anchor)
		last := first.AddDate(0, 1, -1)
		return paddedToWeeks(first, last, weekStart), nil

	case Quarter:
		y, m, _ := anchor.Date()
		qm := time.Month((int(m)-1)/3*3 + 1)
		first := time.Date(y, qm, 1, 0, 0, 0, 0, anchor.Location())
		last := first.AddDate(0, 3, -1)
		return paddedToWeeks(first, last, weekStart), nil

	case List:
		return recurrence.Window{
			Start: startOfDay(anchor.AddDate(-ListSpanYears, 0, 0)),
			End:   endOfDay(anchor.AddDate(ListSpanYears, 0, 0)),
		}, nil
	}
	return recurrence.Window{}, fmt.Errorf("unknown view %q", kind)
}

// DayInfo is one calendar day with the occurrences touching it.
type DayInfo struct {
	Date        time.Time          `json:"date"`
	Occurrences []model.Occurrence `json:"occurrences"`
}

// GroupByDay lays occurrences out over the days of w in loc. Occurrences
// spanning several days are listed on each of them; each day is ordered
// with model.CompareOccurrences.
func GroupByDay(occs []model.Occurrence, w recurrence.Window, loc *time.Location) []DayInfo {
	if loc == nil {
		loc = time.Local
	}
	if !w.Valid() || w.End.Before(w.Start) {
		return nil
	}

	var days []DayInfo
	for d := startOfDay(w.Start.In(loc)); !d.After(w.End); d = d.AddDate(0, 0, 1) {
		next := d.AddDate(0, 0, 1)
		info := DayInfo{Date: d, Occurrences: []model.Occurrence{}}
		for _, o := range occs {
			if o.Overlaps(d, next) || (o.Start.Equal(o.End) && !o.Start.Before(d) && o.Start.Before(next)) {
				info.Occurrences = append(info.Occurrences, o)
			}
		}
		slices.SortStableFunc(info.Occurrences, model.CompareOccurrences)
		days = append(days, info)
	}
	return days
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func firstOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

func startOfWeek(t time.Time, weekStart time.Weekday) time.Time {
	back := (int(t.Weekday()) - int(weekStart) + 7) % 7
	return startOfDay(t).AddDate(0, 0, -back)
}

func paddedToWeeks(first, last time.Time, weekStart time.Weekday) recurrence.Window {
	start := startOfWeek(first, weekStart)
	end := startOfWeek(last, weekStart).AddDate(0, 0, 6)
	return recurrence.Window{Start: start, End: endOfDay(end)}
}
