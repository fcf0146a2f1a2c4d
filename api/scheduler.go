/*
scheduler.go - Background jobs

PURPOSE:
  Runs periodic maintenance next to the HTTP server:
  - reconcile: replays every farmer's records and repairs stored balances
  - sync:      drains one batch of the outbox to the remote backend

DESIGN:
  - One goroutine per job, each with its own ticker
  - Every job runs once immediately on start
  - A job that fails is logged and retried on the next tick
  - Stop cancels in-flight runs and waits for the goroutines to exit

USAGE:
  scheduler := NewScheduler()
  scheduler.Add("reconcile", time.Hour, ReconcileJob(svc))
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ReconcileAll and RunSync endpoints (manual triggers)
  - outbox/outbox.go: Dispatcher
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/aasavchauhan/Water-Supply-Management-System/billing"
	"github.com/aasavchauhan/Water-Supply-Management-System/outbox"
)

// JobFunc is one run of a scheduled job.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	run      JobFunc
}

// Scheduler runs named jobs on fixed intervals.
type Scheduler struct {
	Logger *log.Logger

	jobs    []job
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{Logger: log.Default()}
}

// Add registers a job. Jobs with a non-positive interval are skipped.
// Add must be called before Start.
func (s *Scheduler) Add(name string, interval time.Duration, run JobFunc) {
	if interval <= 0 {
		s.Logger.Printf("[Scheduler] %s disabled (interval %v)", name, interval)
		return
	}
	s.jobs = append(s.jobs, job{name: name, interval: interval, run: run})
}

// Start launches every registered job.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
		s.Logger.Printf("[Scheduler] Started %s with interval: %v", j.name, j.interval)
	}
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.started = false
	s.Logger.Println("[Scheduler] Stopped")
}

// RunNow runs the named job synchronously. It reports false if no such job
// is registered.
func (s *Scheduler) RunNow(ctx context.Context, name string) (bool, error) {
	for _, j := range s.jobs {
		if j.name == name {
			return true, j.run(ctx)
		}
	}
	return false, nil
}

func (s *Scheduler) loop(ctx context.Context, j job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	s.runJob(ctx, j)
	for {
		select {
		case <-ticker.C:
			s.runJob(ctx, j)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, j job) {
	start := time.Now()
	if err := j.run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.Logger.Printf("[Scheduler] %s failed after %v: %v", j.name, time.Since(start), err)
	}
}

// ReconcileJob reconciles every farmer's balance.
func ReconcileJob(svc *billing.Service, logger *log.Logger) JobFunc {
	return func(ctx context.Context) error {
		results, err := svc.ReconcileAll(ctx)
		corrected, drifted := 0, 0
		for _, r := range results {
			if r.Corrected {
				corrected++
			}
			if r.Drift.Significant() {
				drifted++
			}
		}
		if corrected > 0 {
			logger.Printf("[Scheduler] reconcile: %d farmers checked, %d corrected, %d drifted",
				len(results), corrected, drifted)
		}
		return err
	}
}

// SyncJob drains one outbox batch.
func SyncJob(d *outbox.Dispatcher) JobFunc {
	return func(ctx context.Context) error {
		_, err := d.RunOnce(ctx)
		return err
	}
}
