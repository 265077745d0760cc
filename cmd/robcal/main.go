package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"robcal/internal/agenda"
	"robcal/internal/config"
	"robcal/internal/ics"
	appLog "robcal/internal/log"
	"robcal/internal/model"
	"robcal/internal/scheduler"
	"robcal/internal/view"
	"robcal/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	envPath    string
	listen     string
	once       bool
	view       string
	date       string
	category   string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run wires and runs the service and returns the process exit code, so
// deferred cleanup completes before main exits.
func run(args []string, stdout io.Writer) int {
	flags, err := parseFlags(args)
	if err != nil {
		return 2
	}

	if err := config.LoadEnvFile(flags.envPath); err != nil {
		appLog.Error("failed to load env file", err, "env_path", flags.envPath)
		return 1
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}
	applied := conf.ApplyEnv()

	// CLI --listen overrides config file and environment if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	if err := appLog.Configure(conf.LogLevel, conf.LogFormat); err != nil {
		appLog.Error("invalid log settings", err)
		return 1
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		return 1
	}
	loc, _ := conf.Location()

	appLog.Info("robcal starting",
		"version", version,
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"refresh", conf.RefreshCron,
		"ics_count", len(conf.ICS),
		"event_count", len(conf.Events),
		"env_overrides", applied,
		"once", flags.once,
	)

	store, err := newStore(conf, loc)
	if err != nil {
		appLog.Error("failed to build agenda", err)
		return 1
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A failing feed must not keep the service from starting; the store
	// keeps serving inline events and retries on the next tick.
	if err := store.Refresh(ctx); err != nil {
		appLog.Error("initial refresh incomplete", err)
	}

	if flags.once {
		if err := printOnce(stdout, store, conf, loc, flags); err != nil {
			appLog.Error("once failed", err)
			return 1
		}
		return 0
	}

	sched, err := scheduler.New(conf.RefreshCron, loc, 0, store.Refresh)
	if err != nil {
		appLog.Error("failed to create scheduler", err)
		return 1
	}
	sched.Start()
	defer sched.Stop()

	srv, err := web.NewServer(conf, store, sched.RunNow)
	if err != nil {
		appLog.Error("failed to create web server", err)
		return 1
	}
	if err := srv.ListenAndServe(ctx); err != nil {
		appLog.Error("http server failed", err)
		return 1
	}

	appLog.Info("robcal exiting")
	return 0
}

func newStore(conf *config.Config, loc *time.Location) (*agenda.Store, error) {
	local, err := conf.EventModels(loc)
	if err != nil {
		return nil, err
	}

	sources := make([]ics.Source, 0, len(conf.ICS))
	for _, c := range conf.ICS {
		sources = append(sources, ics.Source{ID: c.ID, URL: c.URL, Name: c.Name, Category: c.Category})
	}

	return agenda.NewStore(agenda.Options{
		Fetcher:                ics.NewFetcher(filepath.Join(conf.CacheDir, "ics")),
		Sources:                sources,
		Local:                  local,
		Location:               loc,
		MaxOccurrencesPerEvent: conf.MaxOccurrencesPerEvent,
	}), nil
}

// printOnce writes the occurrences of one view as JSON to stdout.
func printOnce(w io.Writer, store *agenda.Store, conf *config.Config, loc *time.Location, flags flagConfig) error {
	name := flags.view
	if name == "" {
		name = conf.DefaultView
	}
	kind, err := view.ParseKind(name)
	if err != nil {
		return err
	}
	weekStart, err := view.ParseWeekStart(conf.WeekStart)
	if err != nil {
		return err
	}

	anchor := time.Now().In(loc)
	if flags.date != "" {
		if anchor, err = time.ParseInLocation("2006-01-02", flags.date, loc); err != nil {
			return errors.New("-date must be YYYY-MM-DD")
		}
	}

	win, err := view.Range(kind, anchor, weekStart)
	if err != nil {
		return err
	}
	var categories []string
	for _, c := range strings.Split(flags.category, ",") {
		if c = strings.TrimSpace(c); c != "" {
			categories = append(categories, c)
		}
	}
	res, err := store.Occurrences(win, categories...)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		View        view.Kind          `json:"view"`
		RangeStart  time.Time          `json:"range_start"`
		RangeEnd    time.Time          `json:"range_end"`
		Occurrences []model.Occurrence `json:"occurrences"`
		Truncated   []string           `json:"truncated_events,omitempty"`
		Skipped     []string           `json:"skipped,omitempty"`
	}{kind, win.Start, win.End, res.Occurrences, res.TruncatedEvents, res.Skipped})
}

func parseFlags(args []string) (flagConfig, error) {
	var cfg flagConfig

	fs := flag.NewFlagSet("robcal", flag.ContinueOnError)
	fs.StringVar(&cfg.configPath, "config", "/etc/robcal/config.yaml", "Path to config file")
	fs.StringVar(&cfg.envPath, "env", ".env", "Optional KEY=VALUE file applied before ROBCAL_* overrides")
	fs.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	fs.BoolVar(&cfg.once, "once", false, "Refresh once, print one view's occurrences as JSON and exit")
	fs.StringVar(&cfg.view, "view", "", "View for -once: day, week, month, quarter or list")
	fs.StringVar(&cfg.date, "date", "", "Anchor date for -once (YYYY-MM-DD, default today)")
	fs.StringVar(&cfg.category, "category", "", "Comma separated categories to keep for -once")

	err := fs.Parse(args)
	return cfg, err
}
