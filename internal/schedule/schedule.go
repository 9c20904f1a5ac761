// Package schedule regenerates the calendar on a cron expression and keeps
// the outcome of the latest run for the HTTP status endpoint.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "ukmoviecal/internal/log"
	"ukmoviecal/internal/pipeline"
)

// RunFunc performs one pipeline run.
type RunFunc func(ctx context.Context) (pipeline.Result, error)

// Status is a snapshot of the scheduler.
type Status struct {
	Schedule string           `json:"schedule"`
	Running  bool             `json:"running"`
	Runs     int              `json:"runs"`
	LastRun  time.Time        `json:"last_run,omitempty"`
	NextRun  time.Time        `json:"next_run,omitempty"`
	Last     *pipeline.Result `json:"last_result,omitempty"`

	// LastError is the error of the latest run. Last keeps the latest
	// successful result, so a failed run does not hide the file being served.
	LastError string `json:"last_error,omitempty"`
}

// Scheduler owns the cron loop. Runs never overlap: cron ticks that fire
// while a run is in progress are skipped, and RunNow waits for it.
type Scheduler struct {
	expr string
	run  RunFunc
	cron *cron.Cron

	entry cron.EntryID
	ctx   context.Context

	runMu sync.Mutex

	mu     sync.RWMutex
	status Status
}

// New validates expr (standard five field cron syntax or descriptors such as
// "@daily") and prepares a stopped scheduler.
func New(expr string, run RunFunc) (*Scheduler, error) {
	if run == nil {
		return nil, errors.New("schedule: run func is nil")
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return nil, fmt.Errorf("schedule: invalid cron %q: %w", expr, err)
	}

	logger := cronLogger{}
	s := &Scheduler{
		expr: expr,
		run:  run,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx:    context.Background(),
		status: Status{Schedule: expr},
	}
	return s, nil
}

// Start begins firing runs. ctx is handed to every scheduled run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	id, err := s.cron.AddFunc(s.expr, func() {
		if _, err := s.RunNow(s.ctx); err != nil {
			appLog.Error("scheduled run failed", err, "schedule", s.expr)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule: add %q: %w", s.expr, err)
	}
	s.entry = id
	s.cron.Start()

	next := s.cron.Entry(id).Next
	s.mu.Lock()
	s.status.NextRun = next
	s.mu.Unlock()

	appLog.Info("scheduler started", "schedule", s.expr, "next_run", next.Format(time.RFC3339))
	return nil
}

// Stop stops the cron loop and waits for a running job to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		appLog.Warn("scheduler stop timed out; a run is still in progress")
	}
}

// RunNow runs the pipeline immediately and records the outcome.
func (s *Scheduler) RunNow(ctx context.Context) (pipeline.Result, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	s.status.Running = true
	s.mu.Unlock()

	res, err := s.run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Running = false
	s.status.Runs++
	s.status.LastRun = time.Now()
	if s.entry != 0 {
		s.status.NextRun = s.cron.Entry(s.entry).Next
	}
	if err != nil {
		s.status.LastError = err.Error()
		return res, err
	}
	s.status.LastError = ""
	s.status.Last = &res
	return res, nil
}

// Status returns a copy of the current status.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.status
	if st.Last != nil {
		last := *st.Last
		st.Last = &last
	}
	return st
}

// cronLogger routes cron's own messages into the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
