package recurrence

import (
	"iter"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 9, 0, 0, 0, time.UTC)
}

func ymd(t time.Time) string {
	return t.Format("2006-01-02")
}

func collect(seq iter.Seq[time.Time]) []string {
	out := []string{}
	for t := range seq {
		out = append(out, ymd(t))
	}
	return out
}

func TestCadenceExamples(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		rule  Rule
		from  time.Time
		to    time.Time
		want  []string
	}{
		{
			name:  "daily every two days",
			start: at(2024, time.January, 1),
			rule:  EveryDay(2),
			from:  at(2024, time.January, 1),
			to:    at(2024, time.January, 10),
			want:  []string{"2024-01-01", "2024-01-03", "2024-01-05", "2024-01-07", "2024-01-09"},
		},
		{
			name:  "weekly mon wed fri",
			start: at(2024, time.January, 1),
			rule:  OnWeekdays(1, time.Monday, time.Wednesday, time.Friday),
			from:  at(2024, time.January, 1),
			to:    at(2024, time.January, 14),
			want:  []string{"2024-01-01", "2024-01-03", "2024-01-05", "2024-01-08", "2024-01-10", "2024-01-12"},
		},
		{
			name:  "monthly by date with clamping",
			start: at(2024, time.January, 31),
			rule:  MonthlyOnDate(1, 31),
			from:  at(2024, time.January, 31),
			to:    at(2024, time.April, 30),
			want:  []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"},
		},
		{
			name:  "monthly last friday",
			start: at(2024, time.January, 1),
			rule:  MonthlyOnDay(1, OrdinalLast, DayFriday),
			from:  at(2024, time.January, 1),
			to:    at(2024, time.March, 31),
			want:  []string{"2024-01-26", "2024-02-23", "2024-03-29"},
		},
		{
			name:  "yearly by day",
			start: at(2024, time.January, 1),
			rule:  YearlyOnDay(1, time.November, OrdinalFourth, DayThursday),
			from:  at(2025, time.January, 1),
			to:    at(2026, time.December, 31),
			want:  []string{"2025-11-27", "2026-11-26"},
		},
		{
			name:  "window start clips earlier candidates",
			start: at(2024, time.January, 1),
			rule:  EveryDay(1),
			from:  at(2024, time.January, 29),
			to:    at(2024, time.February, 2),
			want:  []string{"2024-01-29", "2024-01-30", "2024-01-31", "2024-02-01", "2024-02-02"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collect(New(tt.start, tt.rule).Between(tt.from, tt.to))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCadenceCountIsChargedFromAnchor(t *testing.T) {
	rule := OnWeekdays(1, time.Monday).EndingAfter(3)
	c := New(at(2024, time.January, 1), rule)

	// Mondays from the anchor: 01-01, 01-08, 01-15, 01-22, ...
	got := collect(c.Between(at(2024, time.January, 9), at(2024, time.February, 29)))
	assert.Equal(t, []string{"2024-01-15"}, got)

	got = collect(c.Between(at(2024, time.January, 1), at(2024, time.February, 29)))
	assert.Equal(t, []string{"2024-01-01", "2024-01-08", "2024-01-15"}, got)

	got = collect(c.Between(at(2024, time.January, 16), at(2024, time.February, 29)))
	assert.Empty(t, got)
}

func TestCadenceUntilDate(t *testing.T) {
	until := time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)
	c := New(at(2024, time.January, 1), EveryDay(1).EndingOn(until))

	got := collect(c.Between(at(2024, time.January, 1), at(2024, time.January, 31)))
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}, got)

	// The window end still wins when it is earlier.
	got = collect(c.Between(at(2024, time.January, 1), at(2024, time.January, 2)))
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, got)
}

func TestCadenceUntilDateMissingFallsBackToWindow(t *testing.T) {
	rule := EveryDay(1)
	rule.Until = Until{Type: UntilDate, Date: mo.None[time.Time]()}

	got := collect(New(at(2024, time.January, 1), rule).Between(at(2024, time.January, 1), at(2024, time.January, 3)))
	assert.Len(t, got, 3)
}

func TestCadenceDefaultWindow(t *testing.T) {
	c := New(at(2024, time.January, 1), MonthlyOnDate(1, 1))

	got := collect(c.Generate(mo.None[Window]()))
	require.Len(t, got, 37)
	assert.Equal(t, "2024-01-01", got[0])
	assert.Equal(t, "2027-01-01", got[len(got)-1])
}

func TestCadenceIsRestartable(t *testing.T) {
	rule := MonthlyOnDay(1, OrdinalSecond, DayTuesday).EndingAfter(6)
	before := rule
	c := New(at(2024, time.January, 1), rule)

	first := collect(c.Between(at(2024, time.January, 1), at(2024, time.December, 31)))
	second := collect(c.Between(at(2024, time.January, 1), at(2024, time.December, 31)))

	assert.Len(t, first, 6)
	assert.Equal(t, first, second)
	assert.Equal(t, before, c.Rule())
}

func TestCadenceSingleDayWindow(t *testing.T) {
	c := New(at(2024, time.January, 1), OnWeekdays(1, time.Wednesday))

	day := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	got := collect(c.Between(day, day))
	assert.Equal(t, []string{"2024-01-10"}, got)

	late := time.Date(2024, time.January, 10, 23, 59, 0, 0, time.UTC)
	got = collect(c.Between(late, late))
	assert.Equal(t, []string{"2024-01-10"}, got)
}

func TestCadenceEmptyWeeklySet(t *testing.T) {
	c := New(at(2024, time.January, 1), OnWeekdays(1))
	got := collect(c.Between(at(2000, time.January, 1), at(2100, time.January, 1)))
	assert.Empty(t, got)
}

func TestCadenceDegradesToEmpty(t *testing.T) {
	start := at(2024, time.January, 1)
	end := at(2024, time.December, 31)

	tests := []struct {
		name  string
		start time.Time
		rule  Rule
		from  time.Time
		to    time.Time
	}{
		{"zero window start", start, EveryDay(1), time.Time{}, end},
		{"zero window end", start, EveryDay(1), start, time.Time{}},
		{"zero anchor", time.Time{}, EveryDay(1), start, end},
		{"zero interval", start, EveryDay(0), start, end},
		{"unknown pattern", start, Rule{Pattern: Pattern(9)}, start, end},
		{"unknown monthly option", start, Rule{Pattern: PatternMonthly, Monthly: Monthly{Every: 1, Option: Option(5)}}, start, end},
		{"yearly without month", start, YearlyOnDate(1, 0, 1), start, end},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, collect(New(tt.start, tt.rule).Between(tt.from, tt.to)))
		})
	}
}

func TestCadenceConsumerCanStopEarly(t *testing.T) {
	c := New(at(2024, time.January, 1), EveryDay(1))

	var got []time.Time
	for occ := range c.Generate(mo.None[Window]()) {
		got = append(got, occ)
		if len(got) == 2 {
			break
		}
	}
	assert.Len(t, got, 2)
}

func TestCadenceKeepsAnchorLocationAndTime(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	start := time.Date(2024, time.January, 31, 8, 30, 0, 0, seoul)
	c := New(start, MonthlyOnDate(1, 31))

	got := slices.Collect(c.Between(start.UTC(), time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC)))
	require.Len(t, got, 3)
	for _, occ := range got {
		assert.Equal(t, seoul, occ.Location())
		assert.Equal(t, 8, occ.Hour())
		assert.Equal(t, 30, occ.Minute())
	}
	assert.Equal(t, "2024-02-29", ymd(got[1]))
}

func TestCadenceParallelExpansions(t *testing.T) {
	c := New(at(2024, time.January, 1), OnWeekdays(1, time.Tuesday, time.Thursday))
	want := collect(c.Between(at(2024, time.January, 1), at(2024, time.June, 30)))

	var wg sync.WaitGroup
	results := make([][]string, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = collect(c.Between(at(2024, time.January, 1), at(2024, time.June, 30)))
		}()
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}
