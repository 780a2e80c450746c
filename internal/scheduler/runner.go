// Package scheduler runs the periodic jobs that advance time-dependent
// state: expiry, reminders, overdue escalation, and restriction lifting.
// Each job is a pure function over "now" and the service handles, so
// retry and cadence are composed around the job rather than baked in.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Summary reports the outcome of one job run. Failed counts units that
// errored; the job itself still succeeds so one bad unit does not block
// the rest of the batch.
type Summary struct {
	Job       string `json:"job"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Note      string `json:"note,omitempty"`
}

// Job is one schedulable unit of background work.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) (Summary, error)
}

// ErrAlreadyRunning is returned when a job run is requested while a
// previous run of the same job has not finished.
var ErrAlreadyRunning = errors.New("job already running")

// ErrUnknownJob is returned for a manual run of a name not registered.
var ErrUnknownJob = errors.New("unknown job")

// Runner executes jobs with bounded whole-job retry and guards against
// overlapping runs of the same job. Different jobs may run concurrently.
type Runner struct {
	MaxAttempts int           // whole-job attempts, default 3
	Backoff     time.Duration // delay before a retry, doubled each attempt

	mu     sync.Mutex
	jobs   map[string]*Job
	active map[string]bool
}

// NewRunner registers the jobs and returns a runner with default retry.
func NewRunner(jobs []Job) *Runner {
	r := &Runner{
		MaxAttempts: 3,
		Backoff:     30 * time.Second,
		jobs:        make(map[string]*Job, len(jobs)),
		active:      make(map[string]bool, len(jobs)),
	}
	for i := range jobs {
		r.jobs[jobs[i].Name] = &jobs[i]
	}
	return r
}

// Names returns the registered job names.
func (r *Runner) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	return names
}

// RunByName runs one job immediately, the manual re-run entry point for
// operational recovery.
func (r *Runner) RunByName(ctx context.Context, name string) (Summary, error) {
	r.mu.Lock()
	job, ok := r.jobs[name]
	r.mu.Unlock()
	if !ok {
		return Summary{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return r.run(ctx, job)
}

func (r *Runner) run(ctx context.Context, job *Job) (Summary, error) {
	r.mu.Lock()
	if r.active[job.Name] {
		r.mu.Unlock()
		return Summary{}, fmt.Errorf("%w: %s", ErrAlreadyRunning, job.Name)
	}
	r.active[job.Name] = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.active, job.Name)
		r.mu.Unlock()
	}()

	backoff := r.Backoff
	var lastErr error
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		summary, err := job.Run(ctx)
		if err == nil {
			slog.Info("job finished", "job", job.Name,
				"succeeded", summary.Succeeded, "failed", summary.Failed, "attempt", attempt)
			return summary, nil
		}
		lastErr = err
		slog.Error("job failed", "job", job.Name, "attempt", attempt, "error", err)

		if attempt < r.MaxAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Summary{Job: job.Name}, ctx.Err()
			}
			backoff *= 2
		}
	}
	return Summary{Job: job.Name}, fmt.Errorf("job %s failed after %d attempts: %w",
		job.Name, r.MaxAttempts, lastErr)
}

// Start launches one ticker goroutine per job and blocks until the
// context is cancelled. Jobs of different types may overlap; the
// active-set guard keeps two runs of the same job from overlapping.
func (r *Runner) Start(ctx context.Context) {
	var wg sync.WaitGroup

	r.mu.Lock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	r.mu.Unlock()

	for _, job := range jobs {
		wg.Add(1)
		go func(job *Job) {
			defer wg.Done()
			ticker := time.NewTicker(job.Every)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if _, err := r.run(ctx, job); err != nil && !errors.Is(err, ErrAlreadyRunning) {
						slog.Error("scheduled run failed", "job", job.Name, "error", err)
					}
				case <-ctx.Done():
					return
				}
			}
		}(job)
	}

	wg.Wait()
}
