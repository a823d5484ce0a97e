// Package scheduler implements background job scheduling for HabitLoop
// Core. Jobs are registered with cron expressions and driven by
// robfig/cron; each run is logged and counted.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface all scheduled jobs implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job. The context is cancelled on shutdown.
	Run(ctx context.Context) error

	// Description returns a human-readable description.
	Description() string
}

// JobResult records one job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler drives registered jobs on their cron schedules.
type Scheduler struct {
	mu sync.RWMutex

	cron     *cron.Cron
	logger   *slog.Logger
	timezone *time.Location

	entries  map[string]cron.EntryID
	lastRuns map[string]JobResult
	running  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config contains scheduler configuration.
type Config struct {
	Logger   *slog.Logger
	Timezone *time.Location
}

// New creates a Scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(cfg.Timezone)),
		logger:   cfg.Logger,
		timezone: cfg.Timezone,
		entries:  make(map[string]cron.EntryID),
		lastRuns: make(map[string]JobResult),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register adds a job with a cron expression ("*/5 * * * *", "@hourly").
func (s *Scheduler) Register(spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[job.Name()]; exists {
		return fmt.Errorf("scheduler: job %q already registered", job.Name())
	}

	id, err := s.cron.AddFunc(spec, func() { s.execute(job) })
	if err != nil {
		return fmt.Errorf("scheduler: invalid spec %q for job %q: %w", spec, job.Name(), err)
	}
	s.entries[job.Name()] = id

	s.logger.Info("job registered", "job", job.Name(), "spec", spec)
	return nil
}

func (s *Scheduler) execute(job Job) {
	s.wg.Add(1)
	defer s.wg.Done()

	start := time.Now()
	s.logger.Info("job started", "job", job.Name())

	err := job.Run(s.ctx)

	result := JobResult{
		JobName:     job.Name(),
		StartedAt:   start,
		CompletedAt: time.Now(),
		Duration:    time.Since(start),
		Success:     err == nil,
		Error:       err,
	}
	s.mu.Lock()
	s.lastRuns[job.Name()] = result
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed", "job", job.Name(), "duration", result.Duration, "error", err)
		return
	}
	s.logger.Info("job completed", "job", job.Name(), "duration", result.Duration)
}

// Start begins executing registered jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.entries))
}

// Stop halts scheduling and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	stopCtx := s.cron.Stop()
	s.cancel()
	<-stopCtx.Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// RunNow executes a registered job immediately, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	id, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	s.cron.Entry(id).Job.Run()
	return nil
}

// LastRun returns the most recent result for a job.
func (s *Scheduler) LastRun(name string) (JobResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.lastRuns[name]
	return r, ok
}
