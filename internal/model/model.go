package model

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"robcal/internal/recurrence"
)

// DefaultDuration is used for events whose end is missing or not after
// their start.
const DefaultDuration = 30 * time.Minute

// Event is a master calendar event before recurrence expansion.
type Event struct {
	ID       string // stable identifier; the iCalendar UID for feed events
	SourceID string // config ICS ID, or "local" for inline events

	Title       string
	Description string
	Location    string
	Category    string

	AllDay bool

	// Start of the first occurrence and its end, in the event's own zone.
	Start time.Time
	End   time.Time

	// Rule is the recurrence of the series, nil for single events.
	Rule *recurrence.Rule
	// RawRRule keeps a feed RRULE that Rule cannot model.
	RawRRule string
	ExDates  []time.Time

	// RecurrenceID is set on a series exception and names the instance of
	// the master (same ID) that it replaces.
	RecurrenceID *time.Time
	Sequence     int
}

func (e Event) IsRecurring() bool {
	return e.Rule != nil || e.RawRRule != ""
}

func (e Event) IsSeriesException() bool {
	return e.RecurrenceID != nil
}

// Duration is End-Start, or DefaultDuration when that is not positive.
// All-day events without an end last one day.
func (e Event) Duration() time.Duration {
	if d := e.End.Sub(e.Start); !e.End.IsZero() && d > 0 {
		return d
	}
	if e.AllDay {
		return 24 * time.Hour
	}
	return DefaultDuration
}

func (e Event) Validate() error {
	var errs []error
	if strings.TrimSpace(e.Title) == "" {
		errs = append(errs, errors.New("title is empty"))
	}
	if e.Start.IsZero() {
		errs = append(errs, errors.New("start is missing"))
	}
	if !e.End.IsZero() && e.End.Before(e.Start) {
		errs = append(errs, fmt.Errorf("end %s is before start %s", e.End.Format(time.RFC3339), e.Start.Format(time.RFC3339)))
	}
	if e.Rule != nil {
		if err := e.Rule.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("recurrence: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("event %q: %w", e.ID, err)
	}
	return nil
}

// Occurrence represents a single concrete instance of an event
// (after recurrence expansion and timezone normalization).
type Occurrence struct {
	SourceID string `json:"source_id"`
	EventID  string `json:"event_id"`

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event; it is the RFC3339 start in the display zone.
	InstanceKey string `json:"instance_key"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Category    string `json:"category,omitempty"`

	AllDay    bool `json:"all_day"`
	Recurring bool `json:"recurring"`
	Exception bool `json:"exception"`

	// Start / End are in the configured display timezone.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewOccurrence builds the instance of ev that starts at start. The end
// keeps the master's duration. All-day instances span whole local days.
func NewOccurrence(ev Event, start time.Time, loc *time.Location) Occurrence {
	if loc == nil {
		loc = time.Local
	}

	var s, e time.Time
	if ev.AllDay {
		y, m, d := start.Date()
		s = time.Date(y, m, d, 0, 0, 0, 0, loc)
		days := int(ev.Duration().Round(24*time.Hour) / (24 * time.Hour))
		e = s.AddDate(0, 0, max(days, 1))
	} else {
		s = start.In(loc)
		e = start.Add(ev.Duration()).In(loc)
	}

	return Occurrence{
		SourceID:    ev.SourceID,
		EventID:     ev.ID,
		InstanceKey: s.Format(time.RFC3339),
		Title:       ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Category:    ev.Category,
		AllDay:      ev.AllDay,
		Recurring:   ev.IsRecurring() || ev.IsSeriesException(),
		Exception:   ev.IsSeriesException(),
		Start:       s,
		End:         e,
	}
}

// Overlaps reports whether o intersects [start, end).
func (o Occurrence) Overlaps(start, end time.Time) bool {
	return o.Start.Before(end) && o.End.After(start)
}

// CompareOccurrences orders occurrences of the same day: all-day first,
// then by start time, then by title.
func CompareOccurrences(a, b Occurrence) int {
	if a.AllDay != b.AllDay {
		if a.AllDay {
			return -1
		}
		return 1
	}
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	return cmp.Compare(a.Title, b.Title)
}

// SortOccurrences orders occurrences by calendar day of their start and
// then with CompareOccurrences.
func SortOccurrences(occs []Occurrence) {
	slices.SortStableFunc(occs, func(a, b Occurrence) int {
		if c := dayOf(a.Start).Compare(dayOf(b.Start)); c != 0 {
			return c
		}
		return CompareOccurrences(a, b)
	})
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
