package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robcal/internal/model"
)

func ymd(t time.Time) string { return t.Format("2006-01-02") }

func TestRange(t *testing.T) {
	// 2024-01-17 is a Wednesday.
	anchor := time.Date(2024, time.January, 17, 15, 4, 0, 0, time.UTC)

	tests := []struct {
		kind      Kind
		weekStart time.Weekday
		start     string
		end       string
	}{
		{Day, time.Monday, "2024-01-17", "2024-01-17"},
		{Week, time.Monday, "2024-01-15", "2024-01-21"},
		{Week, time.Sunday, "2024-01-14", "2024-01-20"},
		// January 2024 runs Monday 1st to Wednesday 31st.
		{Month, time.Monday, "2024-01-01", "2024-02-04"},
		{Month, time.Sunday, "2023-12-31", "2024-02-03"},
		// Q1 2024: Jan 1 (Mon) .. Mar 31 (Sun).
		{Quarter, time.Monday, "2024-01-01", "2024-03-31"},
		{Quarter, time.Sunday, "2023-12-31", "2024-04-06"},
		{List, time.Monday, "2022-01-17", "2026-01-17"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+tt.weekStart.String(), func(t *testing.T) {
			w, err := Range(tt.kind, anchor, tt.weekStart)
			require.NoError(t, err)
			assert.Equal(t, tt.start, ymd(w.Start))
			assert.Equal(t, tt.end, ymd(w.End))
			assert.Equal(t, 0, w.Start.Hour())
			assert.Equal(t, 23, w.End.Hour())
			assert.Equal(t, 59, w.End.Minute())
		})
	}
}

func TestRangeQuarterOfLateAnchor(t *testing.T) {
	w, err := Range(Quarter, time.Date(2024, time.November, 30, 0, 0, 0, 0, time.UTC), time.Monday)
	require.NoError(t, err)
	// Oct 1 2024 is a Tuesday; Dec 31 is a Tuesday.
	assert.Equal(t, "2024-09-30", ymd(w.Start))
	assert.Equal(t, "2025-01-05", ymd(w.End))
}

func TestRangeErrors(t *testing.T) {
	_, err := Range(Month, time.Time{}, time.Monday)
	assert.Error(t, err)
	_, err = Range(Kind("agenda"), time.Now(), time.Monday)
	assert.Error(t, err)
}

func TestParseKindAndWeekStart(t *testing.T) {
	k, err := ParseKind("Monthly")
	require.NoError(t, err)
	assert.Equal(t, Month, k)
	_, err = ParseKind("pieChart")
	assert.Error(t, err)

	ws, err := ParseWeekStart("sunday")
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, ws)
	_, err = ParseWeekStart("friday")
	assert.Error(t, err)
}

func TestGroupByDay(t *testing.T) {
	at := func(d, h int) time.Time { return time.Date(2024, time.March, d, h, 0, 0, 0, time.UTC) }
	occs := []model.Occurrence{
		{Title: "late", Start: at(4, 18), End: at(4, 19)},
		{Title: "overnight", Start: at(4, 22), End: at(5, 2)},
		{Title: "conference", AllDay: true, Start: at(5, 0), End: at(7, 0)},
		{Title: "marker", Start: at(6, 9), End: at(6, 9)},
	}
	w, err := Range(Week, at(5, 12), time.Monday)
	require.NoError(t, err)

	days := GroupByDay(occs, w, time.UTC)
	require.Len(t, days, 7)

	titles := func(d DayInfo) []string {
		out := []string{}
		for _, o := range d.Occurrences {
			out = append(out, o.Title)
		}
		return out
	}
	assert.Equal(t, "2024-03-04", ymd(days[0].Date))
	assert.Equal(t, []string{"late", "overnight"}, titles(days[0]))
	assert.Equal(t, []string{"conference", "overnight"}, titles(days[1]))
	assert.Equal(t, []string{"conference", "marker"}, titles(days[2]))
	assert.Empty(t, titles(days[3]))
}
