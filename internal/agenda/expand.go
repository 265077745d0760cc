// Package agenda turns master events into the concrete occurrences of a
// query range and keeps the event set of all configured sources.
package agenda

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "robcal/internal/log"
	"robcal/internal/model"
	"robcal/internal/recurrence"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the timezone to which all occurrences will be converted.
	// If nil, time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd define the inclusive time window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent is a safety cap to avoid infinite or extremely
	// large expansions. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int

	// Categories restricts the result to occurrences whose category matches
	// one of the values, case-insensitively. Empty means no filtering.
	Categories []string
}

// ExpandResult wraps the list of expanded occurrences and the events that
// could not be fully expanded.
type ExpandResult struct {
	Occurrences []model.Occurrence `json:"occurrences"`
	// TruncatedEvents records event IDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string `json:"truncated_events,omitempty"`
	// Skipped records event IDs whose recurrence could not be expanded.
	Skipped []string `json:"skipped,omitempty"`
}

type series struct {
	masters    []model.Event
	exceptions []model.Event
}

// ExpandOccurrences expands events into concrete occurrences within the
// configured range. It handles:
//
//   - Single non-recurring events
//   - Rules of the recurrence engine, and raw RRULEs through rrule-go
//   - EXDATE for exception removal
//   - RECURRENCE-ID overrides; overrides without a generated instance are
//     shown on their own
//   - All-day semantics
//   - Category filtering (the refiner of a calendar view)
//
// All resulting occurrences are converted into the configured display
// timezone and sorted with model.SortOccurrences.
func ExpandOccurrences(events []model.Event, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Group masters and overrides by source and ID, keeping input order.
	groups := make(map[string]*series)
	var order []string
	for _, ev := range events {
		key := ev.SourceID + "\x00" + ev.ID
		g, ok := groups[key]
		if !ok {
			g = &series{}
			groups[key] = g
			order = append(order, key)
		}
		if ev.IsSeriesException() {
			g.exceptions = append(g.exceptions, ev)
		} else {
			g.masters = append(g.masters, ev)
		}
	}

	out := make([]model.Occurrence, 0)
	for _, key := range order {
		g := groups[key]
		used := make([]bool, len(g.exceptions))
		truncated := false

		for _, ev := range g.masters {
			occ, hitCap, err := expandEvent(ev, g.exceptions, used, cfg)
			if err != nil {
				appLog.Error("expand: recurrence skipped", err, "source", ev.SourceID, "id", ev.ID)
				result.Skipped = append(result.Skipped, ev.ID)
				continue
			}
			truncated = truncated || hitCap
			out = append(out, occ...)
		}

		for i, exc := range g.exceptions {
			if used[i] {
				continue
			}
			o := model.NewOccurrence(exc, exc.Start, cfg.DisplayLocation)
			if inRange(o, cfg) && cfg.matches(o) {
				out = append(out, o)
			}
		}

		if truncated {
			id := g.masters[0].ID
			result.TruncatedEvents = append(result.TruncatedEvents, id)
			appLog.Warn("expand: truncated occurrences due to cap", "id", id, "cap", cfg.MaxOccurrencesPerEvent)
		}
	}

	model.SortOccurrences(out)
	result.Occurrences = out
	return result, nil
}

// expandEvent expands one master with its possible overrides, returning
// occurrences and whether the cap was hit. used marks the overrides that
// replaced a generated instance.
func expandEvent(ev model.Event, overrides []model.Event, used []bool, cfg ExpandConfig) ([]model.Occurrence, bool, error) {
	starts, err := instanceStarts(ev, cfg)
	if err != nil {
		return nil, false, err
	}

	out := make([]model.Occurrence, 0)
	produced := 0
	hitCap := false
	for t := range starts {
		if isExcluded(ev, t) {
			continue
		}

		o := model.NewOccurrence(ev, t, cfg.DisplayLocation)
		if i, ok := findOverride(ev, overrides, t); ok {
			used[i] = true
			key := o.InstanceKey
			o = model.NewOccurrence(overrides[i], overrides[i].Start, cfg.DisplayLocation)
			o.InstanceKey = key
		}
		if !inRange(o, cfg) || !cfg.matches(o) {
			continue
		}
		if produced == cfg.MaxOccurrencesPerEvent {
			hitCap = true
			break
		}
		out = append(out, o)
		produced++
	}
	return out, hitCap, nil
}

// instanceStarts yields the candidate starts of ev that may touch the
// range, in ev's own location. The lower bound is pulled back by the
// event's duration so that instances already running at RangeStart count.
func instanceStarts(ev model.Event, cfg ExpandConfig) (iter.Seq[time.Time], error) {
	loc := ev.Start.Location()
	from := cfg.RangeStart.Add(-ev.Duration()).In(loc)
	to := cfg.RangeEnd.In(loc)

	switch {
	case ev.Rule != nil:
		if err := ev.Rule.Validate(); err != nil {
			return nil, err
		}
		return recurrence.New(ev.Start, *ev.Rule).Between(from, to), nil

	case ev.RawRRule != "":
		opt, err := rrule.StrToROptionInLocation(ev.RawRRule, loc)
		if err != nil {
			return nil, fmt.Errorf("parse rrule %q: %w", ev.RawRRule, err)
		}
		opt.Dtstart = ev.Start
		r, err := rrule.NewRRule(*opt)
		if err != nil {
			return nil, fmt.Errorf("build rrule %q: %w", ev.RawRRule, err)
		}
		var set rrule.Set
		set.RRule(r)
		for _, ex := range ev.ExDates {
			set.ExDate(ex.In(loc))
		}
		next := set.Iterator()
		return func(yield func(time.Time) bool) {
			for {
				t, ok := next()
				if !ok || t.After(to) {
					return
				}
				if t.Before(from) {
					continue
				}
				if !yield(t) {
					return
				}
			}
		}, nil
	}

	return func(yield func(time.Time) bool) {
		yield(ev.Start)
	}, nil
}

func isExcluded(ev model.Event, t time.Time) bool {
	for _, ex := range ev.ExDates {
		if sameInstance(ev, ex, t) {
			return true
		}
	}
	return false
}

// findOverride finds the override whose RECURRENCE-ID names the instance
// starting at t.
func findOverride(ev model.Event, overrides []model.Event, t time.Time) (int, bool) {
	for i, ov := range overrides {
		if ov.RecurrenceID != nil && sameInstance(ev, *ov.RecurrenceID, t) {
			return i, true
		}
	}
	return 0, false
}

// sameInstance compares instance references exactly, or by date in the
// event's zone for all-day events.
func sameInstance(ev model.Event, ref, t time.Time) bool {
	if !ev.AllDay {
		return ref.Equal(t)
	}
	loc := ev.Start.Location()
	ry, rm, rd := ref.In(loc).Date()
	ty, tm, td := t.In(loc).Date()
	return ry == ty && rm == tm && rd == td
}

func inRange(o model.Occurrence, cfg ExpandConfig) bool {
	if o.Start.After(cfg.RangeEnd) {
		return false
	}
	if o.Start.Equal(o.End) {
		return !o.Start.Before(cfg.RangeStart)
	}
	return o.End.After(cfg.RangeStart)
}

// matches reports whether o passes the category filter. A moved instance is
// judged by its own category.
func (cfg ExpandConfig) matches(o model.Occurrence) bool {
	if len(cfg.Categories) == 0 {
		return true
	}
	return slices.ContainsFunc(cfg.Categories, func(c string) bool {
		return strings.EqualFold(strings.TrimSpace(c), o.Category)
	})
}
