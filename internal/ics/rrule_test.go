package ics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"robcal/internal/recurrence"
)

func utc(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 9, 0, 0, 0, time.UTC)
}

func TestRRuleFromRule(t *testing.T) {
	tests := []struct {
		name  string
		rule  recurrence.Rule
		start time.Time
		want  string
	}{
		{
			name:  "daily count",
			rule:  recurrence.EveryDay(1).EndingAfter(5),
			start: utc(2024, time.January, 1),
			want:  "FREQ=DAILY;COUNT=5",
		},
		{
			name:  "weekly uses sunday blocks",
			rule:  recurrence.OnWeekdays(1, time.Monday, time.Wednesday, time.Friday),
			start: utc(2024, time.January, 1),
			want:  "FREQ=WEEKLY;WKST=SU;BYDAY=MO,WE,FR",
		},
		{
			name:  "monthly day 31 clamps",
			rule:  recurrence.MonthlyOnDate(1, 31),
			start: utc(2024, time.January, 31),
			want:  "FREQ=MONTHLY;BYSETPOS=-1;BYMONTHDAY=28,29,30,31",
		},
		{
			name:  "monthly second tuesday",
			rule:  recurrence.MonthlyOnDay(1, recurrence.OrdinalSecond, recurrence.DayTuesday),
			start: utc(2024, time.January, 9),
			want:  "FREQ=MONTHLY;BYDAY=+2TU",
		},
		{
			name:  "last day of month",
			rule:  recurrence.MonthlyOnDay(1, recurrence.OrdinalLast, recurrence.DayAny),
			start: utc(2024, time.January, 31),
			want:  "FREQ=MONTHLY;BYMONTHDAY=-1",
		},
		{
			name:  "yearly last weekday every two years",
			rule:  recurrence.YearlyOnDay(2, time.March, recurrence.OrdinalLast, recurrence.DayWeekday),
			start: utc(2024, time.March, 29),
			want:  "FREQ=YEARLY;INTERVAL=2;BYSETPOS=-1;BYMONTH=3;BYDAY=MO,TU,WE,TH,FR",
		},
		{
			name:  "until is end of day",
			rule:  recurrence.EveryDay(1).EndingOn(time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC)),
			start: utc(2024, time.March, 1),
			want:  "FREQ=DAILY;UNTIL=20240331T235959Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RRuleFromRule(tt.rule, tt.start)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRRuleFromRuleRejectsInvalid(t *testing.T) {
	_, err := RRuleFromRule(recurrence.EveryDay(0), utc(2024, time.January, 1))
	assert.ErrorIs(t, err, recurrence.ErrInvalidInterval)

	_, err = RRuleFromRule(recurrence.OnWeekdays(1), utc(2024, time.January, 1))
	assert.Error(t, err)
}

func TestRuleFromRRule(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		start time.Time
		want  recurrence.Rule
	}{
		{
			name:  "weekly days",
			raw:   "FREQ=WEEKLY;BYDAY=MO,WE",
			start: utc(2024, time.January, 1),
			want:  recurrence.OnWeekdays(1, time.Monday, time.Wednesday),
		},
		{
			name:  "weekly defaults to start weekday",
			raw:   "RRULE:FREQ=WEEKLY;INTERVAL=3",
			start: utc(2024, time.January, 3),
			want:  recurrence.OnWeekdays(3, time.Wednesday),
		},
		{
			name:  "monthly last friday",
			raw:   "FREQ=MONTHLY;BYDAY=-1FR",
			start: utc(2024, time.January, 26),
			want:  recurrence.MonthlyOnDay(1, recurrence.OrdinalLast, recurrence.DayFriday),
		},
		{
			name:  "monthly clamp run",
			raw:   "FREQ=MONTHLY;BYMONTHDAY=28,29,30,31;BYSETPOS=-1",
			start: utc(2024, time.January, 31),
			want:  recurrence.MonthlyOnDate(1, 31),
		},
		{
			name:  "monthly from start day",
			raw:   "FREQ=MONTHLY",
			start: utc(2024, time.January, 15),
			want:  recurrence.MonthlyOnDate(1, 15),
		},
		{
			name:  "first weekend day",
			raw:   "FREQ=MONTHLY;BYDAY=SA,SU;BYSETPOS=1",
			start: utc(2024, time.January, 6),
			want:  recurrence.MonthlyOnDay(1, recurrence.OrdinalFirst, recurrence.DayWeekend),
		},
		{
			name:  "yearly last weekday",
			raw:   "FREQ=YEARLY;INTERVAL=2;BYMONTH=3;BYDAY=MO,TU,WE,TH,FR;BYSETPOS=-1",
			start: utc(2024, time.March, 29),
			want:  recurrence.YearlyOnDay(2, time.March, recurrence.OrdinalLast, recurrence.DayWeekday),
		},
		{
			name:  "yearly from start",
			raw:   "FREQ=YEARLY",
			start: utc(2024, time.July, 4),
			want:  recurrence.YearlyOnDate(1, time.July, 4),
		},
		{
			name:  "count",
			raw:   "FREQ=DAILY;COUNT=4",
			start: utc(2024, time.January, 1),
			want:  recurrence.EveryDay(1).EndingAfter(4),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RuleFromRRule(tt.raw, tt.start)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Pattern, got.Pattern)
			assert.Equal(t, tt.want.Summary(), got.Summary())
		})
	}
}

func TestRuleFromRRuleUntil(t *testing.T) {
	start := utc(2024, time.March, 1)

	rule, err := RuleFromRRule("FREQ=DAILY;UNTIL=20240310T235959Z", start)
	require.NoError(t, err)
	require.Equal(t, recurrence.UntilDate, rule.Until.Type)
	assert.Equal(t, "2024-03-10", rule.Until.Date.MustGet().Format("2006-01-02"))

	// 00:00 on the 10th is before the 09:00 instance of that day.
	rule, err = RuleFromRRule("FREQ=DAILY;UNTIL=20240310T000000Z", start)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09", rule.Until.Date.MustGet().Format("2006-01-02"))
}

func TestRuleFromRRuleUnsupported(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		start time.Time
	}{
		{"sub-daily", "FREQ=HOURLY;COUNT=3", utc(2024, time.January, 1)},
		{"by hour", "FREQ=DAILY;BYHOUR=9,17", utc(2024, time.January, 1)},
		{"monthday skips short months", "FREQ=MONTHLY;BYMONTHDAY=31", utc(2024, time.January, 31)},
		{"start past day 28", "FREQ=MONTHLY", utc(2024, time.January, 30)},
		{"several months", "FREQ=YEARLY;BYMONTH=1,7", utc(2024, time.January, 1)},
		{"fifth weekday", "FREQ=MONTHLY;BYDAY=+5MO", utc(2024, time.January, 29)},
		{"several monthdays", "FREQ=MONTHLY;BYMONTHDAY=1,15", utc(2024, time.January, 1)},
		{"monday weeks with sunday", "FREQ=WEEKLY;INTERVAL=2;BYDAY=SU,MO", utc(2024, time.January, 1)},
		{"yearly days without month", "FREQ=YEARLY;BYDAY=-1FR", utc(2024, time.January, 26)},
		{"count and until", "FREQ=DAILY;COUNT=3;UNTIL=20240110T000000Z", utc(2024, time.January, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RuleFromRRule(tt.raw, tt.start)
			assert.ErrorIs(t, err, ErrUnsupportedRRule)
		})
	}
}

func TestRuleFromRRuleMalformed(t *testing.T) {
	_, err := RuleFromRRule("FREQ=SOMETIMES", utc(2024, time.January, 1))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedRRule)

	_, err = RuleFromRRule("  ", utc(2024, time.January, 1))
	assert.Error(t, err)
}

// The recurrence engine and rrule-go must agree on every rule that
// RRuleFromRule renders.
func TestRRuleAgreesWithEngine(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	tests := []struct {
		name  string
		rule  recurrence.Rule
		start time.Time
	}{
		{"every third day", recurrence.EveryDay(3), utc(2024, time.January, 1)},
		{"fortnightly sun tue sat", recurrence.OnWeekdays(2, time.Sunday, time.Tuesday, time.Saturday), utc(2024, time.January, 7)},
		{"monthly on 31", recurrence.MonthlyOnDate(1, 31), utc(2024, time.January, 31)},
		{"last weekday", recurrence.MonthlyOnDay(1, recurrence.OrdinalLast, recurrence.DayWeekday), utc(2024, time.January, 31)},
		{"second tuesday bimonthly", recurrence.MonthlyOnDay(2, recurrence.OrdinalSecond, recurrence.DayTuesday), utc(2024, time.January, 9)},
		{"first weekend day", recurrence.MonthlyOnDay(1, recurrence.OrdinalFirst, recurrence.DayWeekend), utc(2024, time.January, 6)},
		{"leap day", recurrence.YearlyOnDate(1, time.February, 29), utc(2024, time.February, 29)},
		{"fourth thursday of november", recurrence.YearlyOnDay(1, time.November, recurrence.OrdinalFourth, recurrence.DayThursday), utc(2024, time.November, 28)},
		{"count", recurrence.EveryDay(1).EndingAfter(5), utc(2024, time.January, 1)},
		{"until", recurrence.OnWeekdays(1, time.Monday, time.Friday).EndingOn(time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)), utc(2024, time.January, 1)},
		{"seoul weekly", recurrence.OnWeekdays(1, time.Tuesday, time.Thursday), time.Date(2024, time.January, 2, 8, 30, 0, 0, seoul)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := RRuleFromRule(tt.rule, tt.start)
			require.NoError(t, err)

			opt, err := rrule.StrToROptionInLocation(raw, tt.start.Location())
			require.NoError(t, err)
			opt.Dtstart = tt.start
			r, err := rrule.NewRRule(*opt)
			require.NoError(t, err)

			end := tt.start.AddDate(3, 0, 0)
			var want []string
			for _, occ := range r.Between(tt.start, end, true) {
				want = append(want, occ.In(tt.start.Location()).Format(time.RFC3339))
			}
			var got []string
			for occ := range recurrence.New(tt.start, tt.rule).Between(tt.start, end) {
				got = append(got, occ.Format(time.RFC3339))
			}

			require.NotEmpty(t, got)
			assert.Equal(t, want, got)

			back, err := RuleFromRRule(raw, tt.start)
			require.NoError(t, err)
			assert.Equal(t, tt.rule.Summary(), back.Summary())
		})
	}
}
