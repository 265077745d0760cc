package agenda

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robcal/internal/ics"
	"robcal/internal/model"
	"robcal/internal/recurrence"
)

const teamFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//robcal//test//EN
BEGIN:VEVENT
UID:review@example.com
DTSTAMP:20240101T000000Z
DTSTART:20240108T140000Z
DTEND:20240108T150000Z
SUMMARY:Quarterly review
RRULE:FREQ=MONTHLY;INTERVAL=3;BYDAY=2MO
END:VEVENT
END:VCALENDAR
`

type fakeFetcher struct {
	mu   sync.Mutex
	fail bool
	body string
}

func (f *fakeFetcher) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeFetcher) FetchAll(_ context.Context, sources []ics.Source) ([]ics.FetchResult, []error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var (
		results []ics.FetchResult
		errs    []error
	)
	for _, src := range sources {
		if f.fail {
			errs = append(errs, errors.New("upstream down"))
			continue
		}
		results = append(results, ics.FetchResult{
			Source: src,
			Body:   []byte(strings.ReplaceAll(f.body, "\n", "\r\n")),
		})
	}
	return results, errs
}

func TestStoreRefreshKeepsLastGoodData(t *testing.T) {
	fetcher := &fakeFetcher{body: teamFeed}
	local := model.Event{
		ID: "close", SourceID: "local", Title: "Month close",
		Start: date(2024, time.January, 31, 16, 0),
		Rule:  ruleRef(recurrence.MonthlyOnDate(1, 31)),
	}
	store := NewStore(Options{
		Fetcher:  fetcher,
		Sources:  []ics.Source{{ID: "team", URL: "https://example.com/team.ics"}},
		Local:    []model.Event{local},
		Location: time.UTC,
	})
	assert.True(t, store.UpdatedAt().IsZero())
	assert.Len(t, store.Events(), 1)

	require.NoError(t, store.Refresh(context.Background()))
	first := store.UpdatedAt()
	assert.False(t, first.IsZero())

	events := store.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "close", events[0].ID)
	assert.Equal(t, "review@example.com", events[1].ID)
	require.NotNil(t, events[1].Rule)

	fetcher.setFail(true)
	err := store.Refresh(context.Background())
	require.Error(t, err)
	assert.Len(t, store.Events(), 2, "feed events survive a failed refresh")
	assert.False(t, store.UpdatedAt().Before(first))

	res, err := store.Occurrences(recurrence.Window{
		Start: date(2024, time.January, 1, 0, 0),
		End:   endOf(2024, time.April, 30),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2024-01-08 14:00",
		"2024-01-31 16:00",
		"2024-02-29 16:00",
		"2024-03-31 16:00",
		"2024-04-08 14:00",
		"2024-04-30 16:00",
	}, starts(res.Occurrences))
}

func TestStoreWithoutSources(t *testing.T) {
	store := NewStore(Options{})
	require.NoError(t, store.Refresh(context.Background()))
	assert.False(t, store.UpdatedAt().IsZero())
	assert.Equal(t, time.Local, store.Location())

	_, err := store.Occurrences(recurrence.Window{})
	assert.Error(t, err)
}

func TestStoreConcurrentReads(t *testing.T) {
	store := NewStore(Options{
		Fetcher:  &fakeFetcher{body: teamFeed},
		Sources:  []ics.Source{{ID: "team", URL: "https://example.com/team.ics"}},
		Location: time.UTC,
	})

	w := recurrence.Window{Start: date(2024, time.January, 1, 0, 0), End: endOf(2024, time.December, 31)}
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.Refresh(context.Background())
		}()
		go func() {
			defer wg.Done()
			_, err := store.Occurrences(w)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	res, err := store.Occurrences(w)
	require.NoError(t, err)
	assert.Len(t, res.Occurrences, 4)
}
