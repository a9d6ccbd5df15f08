// Package scheduler drives the recurring jobs — posting runs, stock
// refills, engagement sweeps, and the weekly PDCA cycle — from cron
// expressions in the configuration.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/miclabs/posthunter/internal/config"
	"github.com/miclabs/posthunter/internal/generate"
	"github.com/miclabs/posthunter/internal/monitor"
	"github.com/miclabs/posthunter/internal/orchestrator"
	"github.com/miclabs/posthunter/internal/patterns"
	"github.com/miclabs/posthunter/internal/pdca"
	"github.com/miclabs/posthunter/internal/stock"
)

// Job type keys accepted in the config.
const (
	JobPostRun     = "post.run"
	JobStockRefill = "stock.refill"
	JobSweep       = "monitor.sweep"
	JobPDCA        = "pdca.analyze"
)

// Scheduler runs config-driven cron jobs against the core components.
type Scheduler struct {
	cron     *cron.Cron
	runner   *orchestrator.Runner
	stock    *stock.Manager
	monitor  *monitor.Monitor
	learner  *patterns.Learner
	analyzer *pdca.Analyzer
}

// New builds a scheduler; Register wires the configured jobs.
func New(
	runner *orchestrator.Runner,
	stockMgr *stock.Manager,
	mon *monitor.Monitor,
	learner *patterns.Learner,
	analyzer *pdca.Analyzer,
) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		runner:   runner,
		stock:    stockMgr,
		monitor:  mon,
		learner:  learner,
		analyzer: analyzer,
	}
}

// Register adds every enabled job from the config.
func (s *Scheduler) Register(jobs []config.Job) error {
	for _, job := range jobs {
		if !job.Enabled {
			log.Debug().Str("job", job.Name).Msg("scheduler: job disabled")
			continue
		}
		fn, err := s.jobFunc(job)
		if err != nil {
			return err
		}
		if _, err := s.cron.AddFunc(job.Schedule, s.wrap(job, fn)); err != nil {
			return fmt.Errorf("schedule job %s (%q): %w", job.Name, job.Schedule, err)
		}
		log.Info().Str("job", job.Name).Str("schedule", job.Schedule).
			Str("type", job.Type).Msg("scheduler: job registered")
	}
	return nil
}

func (s *Scheduler) jobFunc(job config.Job) (func(context.Context) error, error) {
	switch job.Type {
	case JobPostRun:
		return func(ctx context.Context) error {
			s.runner.RunAll(ctx, job.DryRun)
			return nil
		}, nil
	case JobStockRefill:
		return func(ctx context.Context) error {
			_, err := s.stock.RefillAll(ctx, s.runner.Accounts(), generate.Input{})
			return err
		}, nil
	case JobSweep:
		return func(ctx context.Context) error {
			if _, err := s.monitor.Sweep(ctx); err != nil {
				return err
			}
			_, err := s.learner.Recompute(ctx)
			return err
		}, nil
	case JobPDCA:
		return func(ctx context.Context) error {
			_, err := s.analyzer.Analyze(ctx)
			return err
		}, nil
	default:
		return nil, fmt.Errorf("unknown job type %q for job %s", job.Type, job.Name)
	}
}

// defaultJobTimeout bounds jobs that configure no timeout of their own.
const defaultJobTimeout = 30 * time.Minute

// jobTimeout returns the job's configured deadline, or the default.
func jobTimeout(job config.Job) time.Duration {
	if job.Timeout > 0 {
		return job.Timeout
	}
	return defaultJobTimeout
}

func (s *Scheduler) wrap(job config.Job, fn func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout(job))
		defer cancel()

		start := time.Now()
		log.Info().Str("job", job.Name).Msg("scheduler: job starting")
		if err := fn(ctx); err != nil {
			log.Error().Err(err).Str("job", job.Name).Msg("scheduler: job failed")
			return
		}
		log.Info().Str("job", job.Name).Dur("duration", time.Since(start)).
			Msg("scheduler: job complete")
	}
}

// Start begins the cron loop in its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
