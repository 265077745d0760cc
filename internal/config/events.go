package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"robcal/internal/ics"
	"robcal/internal/model"
	"robcal/internal/recurrence"
)

// LocalSourceID is the source of events defined in the config file.
const LocalSourceID = "local"

// eventNamespace seeds name-based IDs for inline events without an id.
var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("robcal:events"))

// Accepted layouts for start/end/until/exdates, tried in order.
var timeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// RecurrenceConfig is the YAML shape of a recurrence rule:
//
//	recurrence:
//	  pattern: monthly
//	  every: 1
//	  option: by_day
//	  week_of: last
//	  day: friday
//	  count: 12
type RecurrenceConfig struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Every   int    `yaml:"every,omitempty" json:"every,omitempty"`

	// Days selects weekdays for weekly rules.
	Days []string `yaml:"days,omitempty" json:"days,omitempty"`

	// Month is used by yearly rules.
	Month string `yaml:"month,omitempty" json:"month,omitempty"`

	// Option picks by_date (Date) or by_day (WeekOf + Day) for monthly and
	// yearly rules.
	Option string `yaml:"option,omitempty" json:"option,omitempty"`
	Date   int    `yaml:"date,omitempty" json:"date,omitempty"`
	WeekOf string `yaml:"week_of,omitempty" json:"week_of,omitempty"`
	Day    string `yaml:"day,omitempty" json:"day,omitempty"`

	// Until (a date) and Count are mutually exclusive; neither means the
	// series never ends.
	Until string `yaml:"until,omitempty" json:"until,omitempty"`
	Count int    `yaml:"count,omitempty" json:"count,omitempty"`
}

// EventConfig is an event defined inline in the config file.
type EventConfig struct {
	ID          string `yaml:"id,omitempty" json:"id,omitempty"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Location    string `yaml:"location,omitempty" json:"location,omitempty"`
	Category    string `yaml:"category,omitempty" json:"category,omitempty"`

	// Start is a local date ("2024-03-01") or date-time ("2024-03-01 09:30")
	// in the configured timezone.
	Start string `yaml:"start" json:"start"`
	// End or Duration; End wins when both are set.
	End      string `yaml:"end,omitempty" json:"end,omitempty"`
	Duration string `yaml:"duration,omitempty" json:"duration,omitempty"`
	AllDay   bool   `yaml:"all_day,omitempty" json:"all_day,omitempty"`

	Recurrence *RecurrenceConfig `yaml:"recurrence,omitempty" json:"recurrence,omitempty"`
	// RRule is an alternative to Recurrence in RFC 5545 syntax.
	RRule   string   `yaml:"rrule,omitempty" json:"rrule,omitempty"`
	ExDates []string `yaml:"exdates,omitempty" json:"exdates,omitempty"`
}

// EventModels converts all inline definitions, skipping invalid ones.
func (c *Config) EventModels(loc *time.Location) ([]model.Event, error) {
	out := make([]model.Event, 0, len(c.Events))
	var errs []error
	for i, ec := range c.Events {
		ev, err := ec.Event(loc)
		if err != nil {
			errs = append(errs, fmt.Errorf("events[%d]: %w", i, err))
			continue
		}
		out = append(out, ev)
	}
	return out, errors.Join(errs...)
}

// Event converts the definition into a model.Event in loc.
func (ec EventConfig) Event(loc *time.Location) (model.Event, error) {
	if loc == nil {
		loc = time.Local
	}
	ev := model.Event{
		ID:          ec.ID,
		SourceID:    LocalSourceID,
		Title:       strings.TrimSpace(ec.Title),
		Description: ec.Description,
		Location:    ec.Location,
		Category:    ec.Category,
		AllDay:      ec.AllDay,
	}
	if ev.ID == "" {
		ev.ID = uuid.NewSHA1(eventNamespace, []byte(ev.Title+"|"+ec.Start)).String()
	}

	start, dateOnly, err := parseLocalTime(ec.Start, loc)
	if err != nil {
		return model.Event{}, fmt.Errorf("start: %w", err)
	}
	ev.Start = start
	if dateOnly {
		ev.AllDay = true
	}

	switch {
	case ec.End != "":
		end, _, err := parseLocalTime(ec.End, loc)
		if err != nil {
			return model.Event{}, fmt.Errorf("end: %w", err)
		}
		ev.End = end
	case ec.Duration != "":
		d, err := time.ParseDuration(ec.Duration)
		if err != nil {
			return model.Event{}, fmt.Errorf("duration: %w", err)
		}
		ev.End = start.Add(d)
	case ev.AllDay:
		ev.End = start.AddDate(0, 0, 1)
	default:
		ev.End = start.Add(model.DefaultDuration)
	}

	switch {
	case ec.Recurrence != nil && ec.RRule != "":
		return model.Event{}, errors.New("recurrence and rrule are mutually exclusive")
	case ec.Recurrence != nil:
		rule, err := ec.Recurrence.Rule(loc)
		if err != nil {
			return model.Event{}, fmt.Errorf("recurrence: %w", err)
		}
		ev.Rule = &rule
	case ec.RRule != "":
		rule, err := ics.RuleFromRRule(ec.RRule, start)
		if err != nil {
			// Still expandable through the generic RRULE path.
			ev.RawRRule = ec.RRule
		} else {
			ev.Rule = &rule
		}
	}

	for _, s := range ec.ExDates {
		t, dateOnly, err := parseLocalTime(s, loc)
		if err != nil {
			return model.Event{}, fmt.Errorf("exdate %q: %w", s, err)
		}
		if dateOnly {
			t = time.Date(t.Year(), t.Month(), t.Day(), start.Hour(), start.Minute(), start.Second(), 0, loc)
		}
		ev.ExDates = append(ev.ExDates, t)
	}

	if err := ev.Validate(); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

// Rule converts the YAML recurrence block into a recurrence.Rule.
func (rc RecurrenceConfig) Rule(loc *time.Location) (recurrence.Rule, error) {
	pattern, err := recurrence.ParsePattern(rc.Pattern)
	if err != nil {
		return recurrence.Rule{}, err
	}
	every := rc.Every
	if every == 0 {
		every = 1
	}

	var rule recurrence.Rule
	switch pattern {
	case recurrence.PatternDaily:
		rule = recurrence.EveryDay(every)

	case recurrence.PatternWeekly:
		days := make([]time.Weekday, 0, len(rc.Days))
		for _, s := range rc.Days {
			d, err := recurrence.ParseWeekday(s)
			if err != nil {
				return recurrence.Rule{}, err
			}
			days = append(days, d)
		}
		if len(days) == 0 {
			return recurrence.Rule{}, errors.New("weekly recurrence needs at least one day")
		}
		rule = recurrence.OnWeekdays(every, days...)

	case recurrence.PatternMonthly, recurrence.PatternYearly:
		opt, err := recurrence.ParseOption(rc.Option)
		if err != nil {
			return recurrence.Rule{}, err
		}
		var month time.Month
		if pattern == recurrence.PatternYearly {
			if month, err = recurrence.ParseMonth(rc.Month); err != nil {
				return recurrence.Rule{}, err
			}
		}

		if opt == recurrence.OptionByDay {
			weekOf, err := recurrence.ParseOrdinal(rc.WeekOf)
			if err != nil {
				return recurrence.Rule{}, err
			}
			day, err := recurrence.ParseDayClass(rc.Day)
			if err != nil {
				return recurrence.Rule{}, err
			}
			if pattern == recurrence.PatternMonthly {
				rule = recurrence.MonthlyOnDay(every, weekOf, day)
			} else {
				rule = recurrence.YearlyOnDay(every, month, weekOf, day)
			}
		} else {
			if pattern == recurrence.PatternMonthly {
				rule = recurrence.MonthlyOnDate(every, rc.Date)
			} else {
				rule = recurrence.YearlyOnDate(every, month, rc.Date)
			}
		}
	}

	switch {
	case rc.Until != "" && rc.Count != 0:
		return recurrence.Rule{}, fmt.Errorf("until and count are mutually exclusive: %w", recurrence.ErrInvalidUntil)
	case rc.Until != "":
		until, _, err := parseLocalTime(rc.Until, loc)
		if err != nil {
			return recurrence.Rule{}, fmt.Errorf("until: %w", err)
		}
		rule = rule.EndingOn(until)
	case rc.Count != 0:
		rule = rule.EndingAfter(rc.Count)
	}

	if err := rule.Validate(); err != nil {
		return recurrence.Rule{}, err
	}
	return rule, nil
}

// parseLocalTime parses s in loc. dateOnly reports a value without a time.
func parseLocalTime(s string, loc *time.Location) (t time.Time, dateOnly bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, errors.New("empty time")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), false, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, layout == "2006-01-02", nil
		}
	}
	return time.Time{}, false, fmt.Errorf("unrecognized time %q", s)
}
