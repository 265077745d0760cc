// Package scheduler runs the agenda refresh on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "robcal/internal/log"
)

// DefaultTimeout bounds a single run when none is configured.
const DefaultTimeout = 2 * time.Minute

// Job is the scheduled work, e.g. agenda.Store.Refresh.
type Job func(ctx context.Context) error

// Scheduler triggers a Job on a standard five-field cron expression. Runs never
// overlap: a tick that arrives while a run is in progress is skipped.
type Scheduler struct {
	cronEngine *cron.Cron
	schedule   string
	timeout    time.Duration
	job        Job
	entry      cron.EntryID

	mu sync.Mutex // serializes runs
}

// cronLogger forwards robfig/cron's logging to the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}

func New(schedule string, loc *time.Location, timeout time.Duration, job Job) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("scheduler: job is nil")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", schedule, err)
	}
	if loc == nil {
		loc = time.Local
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logger := cronLogger{}
	s := &Scheduler{
		cronEngine: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		schedule: schedule,
		timeout:  timeout,
		job:      job,
	}

	id, err := s.cronEngine.AddFunc(schedule, s.tick)
	if err != nil {
		return nil, fmt.Errorf("scheduler: add job: %w", err)
	}
	s.entry = id
	return s, nil
}

func (s *Scheduler) Start() {
	s.cronEngine.Start()
	appLog.Info("scheduler started", "schedule", s.schedule, "next", s.Next().Format(time.RFC3339))
}

// Stop halts the schedule and waits for a running job to finish.
func (s *Scheduler) Stop() {
	appLog.Info("scheduler stopping")
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	appLog.Info("scheduler stopped")
}

// Next is the time of the next scheduled run, zero before Start.
func (s *Scheduler) Next() time.Time {
	return s.cronEngine.Entry(s.entry).Next
}

// RunNow runs the job immediately and returns its error. It waits for a
// scheduled run that is in progress.
func (s *Scheduler) RunNow(ctx context.Context) error {
	return s.run(ctx, "manual")
}

func (s *Scheduler) tick() {
	if err := s.run(context.Background(), "cron"); err != nil {
		appLog.Error("scheduled run failed", err, "schedule", s.schedule)
	}
}

func (s *Scheduler) run(parent context.Context, trigger string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	started := time.Now()
	err := s.job(ctx)
	appLog.Debug("scheduler run finished", "trigger", trigger, "took", time.Since(started).String(), "ok", err == nil)
	return err
}
