package agenda

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"robcal/internal/ics"
	appLog "robcal/internal/log"
	"robcal/internal/model"
	"robcal/internal/recurrence"
)

// Fetcher downloads ICS sources. *ics.Fetcher implements it.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, []error)
}

// Options configures a Store.
type Options struct {
	Fetcher Fetcher
	Sources []ics.Source
	// Local are the events defined inline in the configuration.
	Local []model.Event
	// Location is the display zone of expanded occurrences.
	Location               *time.Location
	MaxOccurrencesPerEvent int
}

// Store holds the configured events plus the last good events of every ICS
// source. It is safe for concurrent use.
type Store struct {
	fetcher     Fetcher
	sources     []ics.Source
	local       []model.Event
	loc         *time.Location
	maxPerEvent int

	mu        sync.RWMutex
	bySource  map[string][]model.Event
	updatedAt time.Time
}

func NewStore(opts Options) *Store {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Store{
		fetcher:     opts.Fetcher,
		sources:     opts.Sources,
		local:       opts.Local,
		loc:         loc,
		maxPerEvent: opts.MaxOccurrencesPerEvent,
		bySource:    make(map[string][]model.Event),
	}
}

// Location is the display zone of the store.
func (s *Store) Location() *time.Location {
	return s.loc
}

// Refresh fetches and parses every source. Sources that fail keep the
// events of their last successful refresh; their errors are joined into
// the returned error.
func (s *Store) Refresh(ctx context.Context) error {
	if len(s.sources) == 0 || s.fetcher == nil {
		s.mu.Lock()
		s.updatedAt = time.Now()
		s.mu.Unlock()
		return nil
	}

	results, errs := s.fetcher.FetchAll(ctx, s.sources)

	parsed := make(map[string][]model.Event, len(results))
	for _, res := range results {
		events, err := ics.ParseICS(res.Source, res.Body)
		if err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", res.Source.ID, err))
			continue
		}
		parsed[res.Source.ID] = events
	}

	s.mu.Lock()
	for id, events := range parsed {
		s.bySource[id] = events
	}
	s.updatedAt = time.Now()
	total := 0
	for _, events := range s.bySource {
		total += len(events)
	}
	s.mu.Unlock()

	appLog.Info("agenda refreshed", "sources", len(s.sources), "refreshed", len(parsed), "failed", len(errs), "feed_events", total)
	return errors.Join(errs...)
}

// Events returns the inline events followed by the events of each source in
// configuration order.
func (s *Store) Events() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Event, 0, len(s.local))
	out = append(out, s.local...)
	for _, src := range s.sources {
		out = append(out, s.bySource[src.ID]...)
	}
	return out
}

// Occurrences expands all events over w in the store's display zone. When
// categories are given only occurrences in one of them are returned.
func (s *Store) Occurrences(w recurrence.Window, categories ...string) (ExpandResult, error) {
	if !w.Valid() {
		return ExpandResult{}, errors.New("agenda: window is not set")
	}
	return ExpandOccurrences(s.Events(), ExpandConfig{
		DisplayLocation:        s.loc,
		RangeStart:             w.Start,
		RangeEnd:               w.End,
		MaxOccurrencesPerEvent: s.maxPerEvent,
		Categories:             categories,
	})
}

// UpdatedAt is the time of the last refresh, zero before the first one.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}
