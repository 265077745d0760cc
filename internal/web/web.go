package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"robcal/internal/agenda"
	"robcal/internal/config"
	"robcal/internal/ics"
	appLog "robcal/internal/log"
	"robcal/internal/model"
	"robcal/internal/recurrence"
	"robcal/internal/view"
)

const (
	occurrencesCacheTTL  = 30 * time.Second
	maxCachedRanges      = 64
	defaultCalendarName  = "robcal"
	shutdownGracePeriod  = 5 * time.Second
	readHeaderTimeoutDur = 10 * time.Second
)

// Agenda is the read side of agenda.Store used by the API.
type Agenda interface {
	Events() []model.Event
	Occurrences(w recurrence.Window, categories ...string) (agenda.ExpandResult, error)
	UpdatedAt() time.Time
}

// RefreshFunc reloads the agenda, e.g. scheduler.Scheduler.RunNow.
type RefreshFunc func(ctx context.Context) error

// Server provides the HTTP API over the agenda.
type Server struct {
	cfg       *config.Config
	agenda    Agenda
	refresh   RefreshFunc
	loc       *time.Location
	weekStart time.Weekday
	mux       *http.ServeMux

	// In-memory cache for /api/occurrences responses keyed by range, so that
	// polling clients do not re-expand every series on every request.
	cacheMu sync.Mutex
	cache   map[string]cachedOccurrences
}

type cachedOccurrences struct {
	resp        occurrencesResponse
	storedAt    time.Time
	agendaStamp time.Time
}

// NewServer constructs a new Server. refresh may be nil, in which case
// POST /api/refresh is not available.
func NewServer(cfg *config.Config, a Agenda, refresh RefreshFunc) (*Server, error) {
	if cfg == nil || a == nil {
		return nil, errors.New("web: config and agenda are required")
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	weekStart, err := view.ParseWeekStart(cfg.WeekStart)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		agenda:    a,
		refresh:   refresh,
		loc:       loc,
		weekStart: weekStart,
		mux:       http.NewServeMux(),
		cache:     make(map[string]cachedOccurrences),
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// ListenAndServe serves on cfg.Listen until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeoutDur,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// 빈 사용자명 또는 비밀번호가 설정된 경우에는 비활성화로 취급한다.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health 는 항상 무인증으로 노출한다.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="robcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/occurrences", s.handleOccurrences)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// occurrencesResponse is the JSON response shape for /api/occurrences.
type occurrencesResponse struct {
	View            string             `json:"view,omitempty"`
	RangeStart      time.Time          `json:"range_start"`
	RangeEnd        time.Time          `json:"range_end"`
	DisplayTimeZone string             `json:"display_timezone"`
	WeekStart       string             `json:"week_start"`
	Categories      []string           `json:"categories,omitempty"`
	Occurrences     []model.Occurrence `json:"occurrences"`
	Days            []view.DayInfo     `json:"days,omitempty"`
	TruncatedEvents []string           `json:"truncated_events,omitempty"`
	Skipped         []string           `json:"skipped,omitempty"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// handleOccurrences returns expanded occurrences for a view or an explicit
// date range.
//
// GET /api/occurrences?view=month&date=2024-01-15[&group=day]
// GET /api/occurrences?start=2024-01-01&end=2024-01-31
//   - view:  day, week, month, quarter, list (기본값은 config.DefaultView)
//   - date:  view 의 기준일 (기본 오늘)
//   - start/end: 명시적인 범위. 날짜만 주면 하루 전체로 확장한다.
//   - group=day: 일자별로 묶은 days 배열을 함께 반환한다.
//   - category=a,b: 해당 카테고리의 일정만 반환한다 (대소문자 무시).
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, win, err := s.resolveWindow(q.Get("view"), q.Get("date"), q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	groupByDay := q.Get("group") == "day"
	categories := parseCategories(q.Get("category"))

	key := fmt.Sprintf("%s|%d|%d|%t|%s", kind, win.Start.UnixNano(), win.End.UnixNano(), groupByDay, strings.Join(categories, ","))
	if resp, ok := s.cached(key); ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	stamp := s.agenda.UpdatedAt()
	res, err := s.agenda.Occurrences(win, categories...)
	if err != nil {
		appLog.Error("api occurrences: expand failed", err)
		writeError(w, http.StatusInternalServerError, "failed to expand events")
		return
	}

	resp := occurrencesResponse{
		View:            string(kind),
		RangeStart:      win.Start,
		RangeEnd:        win.End,
		DisplayTimeZone: s.loc.String(),
		WeekStart:       s.cfg.WeekStart,
		Categories:      categories,
		Occurrences:     res.Occurrences,
		TruncatedEvents: res.TruncatedEvents,
		Skipped:         res.Skipped,
		UpdatedAt:       stamp,
	}
	if groupByDay {
		resp.Days = view.GroupByDay(res.Occurrences, win, s.loc)
	}

	appLog.Debug("api occurrences",
		"view", kind,
		"range_start", win.Start.Format(time.RFC3339),
		"range_end", win.End.Format(time.RFC3339),
		"count", len(res.Occurrences),
	)

	s.store(key, resp, stamp)
	writeJSON(w, http.StatusOK, resp)
}

// eventDTO is a JSON-friendly view of a master event.
type eventDTO struct {
	ID           string      `json:"id"`
	SourceID     string      `json:"source_id"`
	Title        string      `json:"title"`
	Description  string      `json:"description,omitempty"`
	Location     string      `json:"location,omitempty"`
	Category     string      `json:"category,omitempty"`
	AllDay       bool        `json:"all_day"`
	Start        time.Time   `json:"start"`
	End          time.Time   `json:"end"`
	Recurring    bool        `json:"recurring"`
	Recurrence   string      `json:"recurrence,omitempty"`
	RRule        string      `json:"rrule,omitempty"`
	ExDates      []time.Time `json:"exdates,omitempty"`
	RecurrenceID *time.Time  `json:"recurrence_id,omitempty"`
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	events := s.agenda.Events()
	dtos := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		dto := eventDTO{
			ID:           ev.ID,
			SourceID:     ev.SourceID,
			Title:        ev.Title,
			Description:  ev.Description,
			Location:     ev.Location,
			Category:     ev.Category,
			AllDay:       ev.AllDay,
			Start:        ev.Start,
			End:          ev.Start.Add(ev.Duration()),
			Recurring:    ev.IsRecurring(),
			ExDates:      ev.ExDates,
			RecurrenceID: ev.RecurrenceID,
		}
		switch {
		case ev.Rule != nil:
			dto.Recurrence = ev.Rule.Summary()
			if raw, err := ics.RRuleFromRule(*ev.Rule, ev.Start); err == nil {
				dto.RRule = raw
			}
		case ev.RawRRule != "":
			dto.RRule = ev.RawRRule
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":     dtos,
		"updated_at": s.agenda.UpdatedAt(),
	})
}

// handleCalendar exports the agenda as text/calendar.
//
// GET /api/calendar.ics?view=…&date=…  expanded occurrences of a view
// GET /api/calendar.ics?mode=events     master events with their RRULEs
//
// category=a,b narrows the occurrence export like /api/occurrences.
//
// Without a view or range the export covers today plus HorizonDays.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("name")
	if name == "" {
		name = defaultCalendarName
	}

	var body string
	if q.Get("mode") == "events" {
		body = ics.ExportEvents(s.agenda.Events(), name)
	} else {
		var win recurrence.Window
		if q.Get("view") == "" && q.Get("date") == "" && q.Get("start") == "" && q.Get("end") == "" {
			today := startOfDay(time.Now().In(s.loc))
			win = recurrence.Window{Start: today, End: today.AddDate(0, 0, s.cfg.HorizonDays).Add(-time.Nanosecond)}
		} else {
			var err error
			_, win, err = s.resolveWindow(q.Get("view"), q.Get("date"), q.Get("start"), q.Get("end"))
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		res, err := s.agenda.Occurrences(win, parseCategories(q.Get("category"))...)
		if err != nil {
			appLog.Error("api calendar: expand failed", err)
			writeError(w, http.StatusInternalServerError, "failed to expand events")
			return
		}
		body = ics.Export(res.Occurrences, name)
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		writeError(w, http.StatusNotImplemented, "refresh is not configured")
		return
	}

	err := s.refresh(r.Context())
	s.clearCache()
	if err != nil {
		appLog.Error("api refresh failed", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated_at": s.agenda.UpdatedAt()})
}

// resolveWindow turns query parameters into a window in the display zone.
// An explicit start/end pair wins over view/date.
func (s *Server) resolveWindow(viewName, date, start, end string) (view.Kind, recurrence.Window, error) {
	if start != "" || end != "" {
		if start == "" || end == "" {
			return "", recurrence.Window{}, errors.New("start and end must be given together")
		}
		from, err := parseDay(start, s.loc)
		if err != nil {
			return "", recurrence.Window{}, fmt.Errorf("start: %w", err)
		}
		to, err := parseDay(end, s.loc)
		if err != nil {
			return "", recurrence.Window{}, fmt.Errorf("end: %w", err)
		}
		if to.Before(from) {
			return "", recurrence.Window{}, errors.New("end is before start")
		}
		return "", recurrence.Window{Start: startOfDay(from), End: startOfDay(to).AddDate(0, 0, 1).Add(-time.Nanosecond)}, nil
	}

	if viewName == "" {
		viewName = s.cfg.DefaultView
	}
	kind, err := view.ParseKind(viewName)
	if err != nil {
		return "", recurrence.Window{}, err
	}
	anchor := time.Now().In(s.loc)
	if date != "" {
		if anchor, err = parseDay(date, s.loc); err != nil {
			return "", recurrence.Window{}, fmt.Errorf("date: %w", err)
		}
	}
	win, err := view.Range(kind, anchor, s.weekStart)
	return kind, win, err
}

func (s *Server) cached(key string) (occurrencesResponse, bool) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	c, ok := s.cache[key]
	if !ok {
		return occurrencesResponse{}, false
	}
	// 새로고침 이후의 캐시는 버린다.
	if time.Since(c.storedAt) >= occurrencesCacheTTL || !c.agendaStamp.Equal(s.agenda.UpdatedAt()) {
		delete(s.cache, key)
		return occurrencesResponse{}, false
	}
	return c.resp, true
}

func (s *Server) store(key string, resp occurrencesResponse, stamp time.Time) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if len(s.cache) >= maxCachedRanges {
		clear(s.cache)
	}
	s.cache[key] = cachedOccurrences{resp: resp, storedAt: time.Now(), agendaStamp: stamp}
}

func (s *Server) clearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	clear(s.cache)
}

// parseDay accepts YYYY-MM-DD (in loc) or RFC3339.
func parseDay(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.ParseInLocation("2006-01-02", v, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", v)
	}
	return t.In(loc), nil
}

// parseCategories splits a comma separated filter into lower-cased,
// sorted, de-duplicated values so that equal filters share a cache entry.
func parseCategories(v string) []string {
	var out []string
	for _, c := range strings.Split(v, ",") {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
