// Package scheduler implements spec.md §4.6: a cron-driven registry of
// named system jobs sharing the engine, each recording its last-run
// status.
//
// The teacher has no cron package of its own — it drives torrent sync
// loops with hand-rolled time.Ticker loops in internal/qbittorrent — so
// this package is grounded instead on the pack's
// other_examples/d880e373_madic-creates-restic-backup-operator
// globalretentionpolicy_controller.go, which uses robfig/cron/v3's
// schedule parser for exactly this "named job, cron schedule, run and
// record last result" shape.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Job is one named unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Result is the outcome of a job's most recent run.
type Result struct {
	Start    time.Time
	Duration time.Duration
	Err      error
}

// JobFunc adapts a plain function to the Job interface for the simple
// built-in jobs that don't need their own type.
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

func (f JobFunc) Name() string                  { return f.JobName }
func (f JobFunc) Run(ctx context.Context) error { return f.Fn(ctx) }

// Registry drives a robfig/cron/v3 scheduler, mapping each registered
// entry back to the Job it runs and the last Result recorded for it.
// Every entry is wrapped in cron.DelayIfStillRunning, which gives "an
// overrunning job delays its next tick but cannot stack" (spec.md §5): a
// tick that fires while the previous run is in flight waits for it.
type Registry struct {
	cron *cron.Cron

	mu      sync.RWMutex
	jobs    map[string]Job
	enabled map[string]bool
	entries map[string]cron.EntryID
	results map[string]Result
}

func New() *Registry {
	return &Registry{
		cron:    cron.New(cron.WithChain(cron.DelayIfStillRunning(cron.DefaultLogger))),
		jobs:    map[string]Job{},
		enabled: map[string]bool{},
		entries: map[string]cron.EntryID{},
		results: map[string]Result{},
	}
}

// Register adds job on the given standard five-field cron schedule. A job
// registered with enabled=false is recorded but never scheduled (the
// Backup job defaults to disabled per spec.md §4.6).
func (r *Registry) Register(schedule string, job Job, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Name()]; exists {
		return fmt.Errorf("scheduler: job %q already registered", job.Name())
	}
	r.jobs[job.Name()] = job
	r.enabled[job.Name()] = enabled

	if !enabled {
		return nil
	}
	id, err := r.cron.AddFunc(schedule, func() { r.run(job) })
	if err != nil {
		return fmt.Errorf("scheduler: parse schedule %q for job %q: %w", schedule, job.Name(), err)
	}
	r.entries[job.Name()] = id
	return nil
}

// Enable schedules a previously-disabled job on schedule. It is a no-op if
// the job is already scheduled.
func (r *Registry) Enable(name, schedule string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[name]
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	if r.enabled[name] {
		return nil
	}
	id, err := r.cron.AddFunc(schedule, func() { r.run(job) })
	if err != nil {
		return fmt.Errorf("scheduler: parse schedule %q for job %q: %w", schedule, name, err)
	}
	r.entries[name] = id
	r.enabled[name] = true
	return nil
}

// Disable stops a job's future runs without forgetting it.
func (r *Registry) Disable(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.entries[name]; ok {
		r.cron.Remove(id)
		delete(r.entries, name)
	}
	r.enabled[name] = false
}

func (r *Registry) run(job Job) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	err := job.Run(ctx)
	result := Result{Start: start, Duration: time.Since(start), Err: err}

	r.mu.Lock()
	r.results[job.Name()] = result
	r.mu.Unlock()

	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	}
	ev.Str("job", job.Name()).Dur("duration", result.Duration).Msg("scheduler: job finished")
}

// LastResult returns the most recent run's outcome for name, if any.
func (r *Registry) LastResult(name string) (Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.results[name]
	return res, ok
}

// Results returns a snapshot of every job's last-run Result, keyed by job
// name, for internal/metrics' job-duration collector.
func (r *Registry) Results() map[string]Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Result, len(r.results))
	for k, v := range r.results {
		out[k] = v
	}
	return out
}

// Start begins driving scheduled jobs.
func (r *Registry) Start() { r.cron.Start() }

// Stop cancels every scheduled entry and waits for in-flight runs to
// finish (Drop-impl semantics from spec.md §4.6, expressed as Go's
// context-based stop).
func (r *Registry) Stop() {
	<-r.cron.Stop().Done()
}
