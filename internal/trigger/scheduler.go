// Package trigger runs the periodic maintenance jobs of a serving process:
// event retention and promotion-history pruning.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const defaultJobTimeout = 5 * time.Minute

// Job is one scheduled maintenance task.
type Job struct {
	Name string
	// Spec is a standard 5-field cron expression or a descriptor like "@hourly".
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler manages cron-based maintenance jobs.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
}

// NewScheduler creates an empty scheduler.
// Cron expressions use the standard 5-field format: minute hour day-of-month month day-of-week.
func NewScheduler() *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		timeout: defaultJobTimeout,
	}
}

// Register adds jobs. A malformed spec fails the whole call.
func (s *Scheduler) Register(jobs ...Job) error {
	for _, j := range jobs {
		job := j
		if _, err := s.cron.AddFunc(job.Spec, func() { s.run(job) }); err != nil {
			return fmt.Errorf("registering cron %q for job %s: %w", job.Spec, job.Name, err)
		}
	}
	return nil
}

func (s *Scheduler) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		log.Error().Err(err).Str("job", job.Name).Msg("scheduled_job_failed")
		return
	}
	log.Debug().Str("job", job.Name).Dur("duration", time.Since(start)).Msg("scheduled_job_completed")
}

// Start begins executing registered cron jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Entries returns the number of registered cron entries.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Purger deletes stored events older than a cutoff.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pruner drops in-memory history outside its window.
type Pruner interface {
	Prune(now time.Time) int
}

// RetentionJob purges events older than days, daily at 03:15.
func RetentionJob(p Purger, days int, now func() time.Time) Job {
	return Job{
		Name: "event_retention",
		Spec: "15 3 * * *",
		Run: func(ctx context.Context) error {
			cutoff := now().UTC().AddDate(0, 0, -days)
			n, err := p.Purge(ctx, cutoff)
			if err != nil {
				return fmt.Errorf("purging events before %s: %w", cutoff.Format(time.RFC3339), err)
			}
			log.Info().Int64("removed", n).Time("cutoff", cutoff).Msg("event_retention_purged")
			return nil
		},
	}
}

// PruneJob trims promotion history every five minutes.
func PruneJob(p Pruner, now func() time.Time) Job {
	return Job{
		Name: "promotion_prune",
		Spec: "*/5 * * * *",
		Run: func(_ context.Context) error {
			if n := p.Prune(now()); n > 0 {
				log.Debug().Int("removed", n).Msg("promotion_history_pruned")
			}
			return nil
		},
	}
}
