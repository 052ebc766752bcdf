package schedule

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts standard five-field expressions and descriptors such as @hourly
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSpec reports whether expr is a usable cron expression
func ValidateSpec(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Job is a named maintenance task
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Runner runs maintenance jobs on cron schedules
type Runner struct {
	cron    *cron.Cron
	jobs    map[string]cron.EntryID
	mu      sync.RWMutex
	logger  *log.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

// NewRunner creates a new schedule runner
func NewRunner(logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		cron:    cron.New(cron.WithParser(parser)),
		jobs:    make(map[string]cron.EntryID),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		timeout: time.Minute,
	}
}

// Register adds a job under a cron expression, replacing any job with the same name
func (r *Runner) Register(expr string, job Job) error {
	entryID, err := r.cron.AddFunc(expr, r.createJob(job))
	if err != nil {
		return fmt.Errorf("failed to add cron job %s: %w", job.Name(), err)
	}

	r.mu.Lock()
	if old, exists := r.jobs[job.Name()]; exists {
		r.cron.Remove(old)
	}
	r.jobs[job.Name()] = entryID
	r.mu.Unlock()

	r.logger.Printf("Registered job '%s' with cron expression: %s", job.Name(), expr)
	return nil
}

// Unregister removes a job from the runner
func (r *Runner) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entryID, exists := r.jobs[name]; exists {
		r.cron.Remove(entryID)
		delete(r.jobs, name)
		r.logger.Printf("Unregistered job '%s'", name)
	}
}

// Start starts the scheduler
func (r *Runner) Start() {
	r.cron.Start()

	r.mu.RLock()
	n := len(r.jobs)
	r.mu.RUnlock()
	r.logger.Printf("Scheduler started with %d jobs", n)
}

// Stop stops the scheduler and waits for running jobs until ctx expires
func (r *Runner) Stop(ctx context.Context) {
	r.logger.Println("Stopping scheduler...")

	r.cancel()
	done := r.cron.Stop()

	select {
	case <-done.Done():
		r.logger.Println("All jobs completed")
	case <-ctx.Done():
		r.logger.Println("Timeout waiting for jobs to complete")
	}
}

// RunNow executes a job synchronously outside its schedule
func (r *Runner) RunNow(job Job) error {
	return r.execute(job)
}

// Entries returns information about all scheduled jobs
func (r *Runner) Entries() []cron.Entry {
	return r.cron.Entries()
}

// createJob wraps a job for the cron scheduler
func (r *Runner) createJob(job Job) func() {
	return func() {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		if err := r.execute(job); err != nil {
			r.logger.Printf("Failed to execute job %s: %v", job.Name(), err)
		}
	}
}

func (r *Runner) execute(job Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in job %s: %v", job.Name(), p)
		}
	}()

	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		return err
	}
	r.logger.Printf("Completed job %s in %s", job.Name(), time.Since(start).Round(time.Millisecond))
	return nil
}
