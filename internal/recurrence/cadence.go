// Package recurrence expands recurrence rules into lazy sequences of
// occurrence start times.
package recurrence

import (
	"iter"
	"time"

	"github.com/samber/mo"
)

// DefaultSpanYears bounds expansion when the caller supplies no window.
const DefaultSpanYears = 3

// Window is a query range. Both bounds are inclusive at day granularity.
type Window struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether both bounds are set.
func (w Window) Valid() bool {
	return !w.Start.IsZero() && !w.End.IsZero()
}

// Cadence expands a rule from its anchor, the start of the first occurrence.
// A Cadence is read-only; every call to Generate starts a new cursor, so one
// Cadence may be expanded from several goroutines.
type Cadence struct {
	start time.Time
	rule  Rule
}

func New(start time.Time, rule Rule) *Cadence {
	return &Cadence{start: start, rule: rule}
}

func (c *Cadence) Start() time.Time { return c.start }

func (c *Cadence) Rule() Rule { return c.rule }

// DefaultWindow spans DefaultSpanYears from the anchor.
func (c *Cadence) DefaultWindow() Window {
	return Window{Start: c.start, End: c.start.AddDate(DefaultSpanYears, 0, 0)}
}

// Between is Generate over [start, end].
func (c *Cadence) Between(start, end time.Time) iter.Seq[time.Time] {
	return c.Generate(mo.Some(Window{Start: start, End: end}))
}

// Generate lazily yields occurrence starts intersecting window, in
// chronological order and in the anchor's location. Without a window it
// uses DefaultWindow. Invalid windows and malformed rules yield nothing.
//
// A count limit is charged for every candidate since the anchor, including
// those before window.Start.
func (c *Cadence) Generate(window mo.Option[Window]) iter.Seq[time.Time] {
	w := window.OrElse(c.DefaultWindow())

	return func(yield func(time.Time) bool) {
		if c.start.IsZero() || !w.Valid() {
			return
		}
		p, ok := c.rule.generator()
		if !ok {
			return
		}

		until := c.rule.Until
		end := w.End
		if until.Type == UntilDate {
			if d, ok := until.Date.Get(); ok && !d.IsZero() && d.Before(end) {
				end = d
			}
		}

		next := p.generate(c.start)
		count := 0
		for {
			t, ok := next()
			if !ok || t.IsZero() || afterDay(t, end) {
				return
			}
			if sameOrAfterDay(t, w.Start) && !yield(t) {
				return
			}

			count++
			if until.Type == UntilCount && count >= until.Count {
				return
			}
		}
	}
}
