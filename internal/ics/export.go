package ics

import (
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "robcal/internal/log"
	"robcal/internal/model"
)

const productID = "robcal"

// occurrenceNamespace seeds UIDs of exported occurrences so that repeated
// exports of the same instance keep their UID.
var occurrenceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("robcal:occurrences"))

const localTimestampFormat = "20060102T150405"

// Export writes expanded occurrences as standalone VEVENTs, one per
// instance, for clients that should not re-expand the series.
func Export(occurrences []model.Occurrence, name string) string {
	cal := newCalendar(name)
	stamp := time.Now().UTC()

	for _, o := range occurrences {
		uid := uuid.NewSHA1(occurrenceNamespace, []byte(o.SourceID+"|"+o.EventID+"|"+o.InstanceKey)).String()
		ev := cal.AddEvent(uid + "@" + productID)
		ev.SetDtStampTime(stamp)
		setTimes(ev, o.Start, o.End, o.AllDay)
		fillText(ev, o.Title, o.Description, o.Location, o.Category)
	}
	return cal.Serialize()
}

// ExportEvents writes master events with their recurrence, EXDATEs and
// series exceptions. Rules are written as RRULE; events whose rule cannot
// be rendered are exported as single events and logged.
func ExportEvents(events []model.Event, name string) string {
	cal := newCalendar(name)
	stamp := time.Now().UTC()

	for _, e := range events {
		ev := cal.AddEvent(e.ID)
		ev.SetDtStampTime(stamp)
		if e.Sequence > 0 {
			ev.SetProperty(ical.ComponentPropertySequence, strconv.Itoa(e.Sequence))
		}
		end := e.End
		if end.IsZero() || !end.After(e.Start) {
			end = e.Start.Add(e.Duration())
		}
		setTimes(ev, e.Start, end, e.AllDay)
		fillText(ev, e.Title, e.Description, e.Location, e.Category)

		switch {
		case e.Rule != nil:
			raw, err := RRuleFromRule(*e.Rule, e.Start)
			if err != nil {
				appLog.Error("export: rule not rendered", err, "event", e.ID)
				break
			}
			ev.AddRrule(raw)
		case e.RawRRule != "":
			ev.AddRrule(e.RawRRule)
		}

		for _, ex := range e.ExDates {
			value, params := timeValue(ex.In(e.Start.Location()), e.AllDay)
			ev.AddExdate(value, params...)
		}
		if e.RecurrenceID != nil {
			value, params := timeValue(e.RecurrenceID.In(e.Start.Location()), e.AllDay)
			ev.SetProperty(ical.ComponentPropertyRecurrenceId, value, params...)
		}
	}
	return cal.Serialize()
}

func newCalendar(name string) *ical.Calendar {
	cal := ical.NewCalendarFor(productID)
	cal.SetMethod(ical.MethodPublish)
	if name != "" {
		cal.SetName(name)
		cal.SetXWRCalName(name)
	}
	return cal
}

func fillText(ev *ical.VEvent, title, description, location, category string) {
	ev.SetSummary(title)
	if description != "" {
		ev.SetDescription(description)
	}
	if location != "" {
		ev.SetLocation(location)
	}
	if category != "" {
		ev.AddProperty(ical.ComponentPropertyCategories, category)
	}
}

// setTimes writes DTSTART/DTEND. Timed values keep their zone through TZID
// so that an RRULE expands in local wall-clock time; zones without an IANA
// name are written in UTC.
func setTimes(ev *ical.VEvent, start, end time.Time, allDay bool) {
	if allDay {
		ev.SetAllDayStartAt(start)
		ev.SetAllDayEndAt(end)
		return
	}
	value, params := timeValue(start, false)
	ev.SetProperty(ical.ComponentPropertyDtStart, value, params...)
	value, params = timeValue(end.In(start.Location()), false)
	ev.SetProperty(ical.ComponentPropertyDtEnd, value, params...)
}

func timeValue(t time.Time, allDay bool) (string, []ical.PropertyParameter) {
	if allDay {
		return t.Format("20060102"), []ical.PropertyParameter{ical.WithValue(string(ical.ValueDataTypeDate))}
	}
	if tzid := ianaName(t.Location()); tzid != "" {
		return t.Format(localTimestampFormat), []ical.PropertyParameter{ical.WithTZID(tzid)}
	}
	return t.UTC().Format(localTimestampFormat + "Z"), nil
}

func ianaName(loc *time.Location) string {
	if loc == nil || loc == time.UTC || loc == time.Local {
		return ""
	}
	name := loc.String()
	if name == "" || name == "UTC" || name == "Local" {
		return ""
	}
	return name
}
