package cron

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/tradeledger/pkg/errors"
	"github.com/angelmondragon/tradeledger/pkg/lock"
	"github.com/angelmondragon/tradeledger/pkg/logger"
	"github.com/angelmondragon/tradeledger/pkg/metrics"
)

const (
	defaultInterval = 6 * time.Hour
	defaultLockWait = time.Second

	// LockKey guards a cycle so only one instance runs scheduled jobs.
	LockKey = "scheduler:cycle"
)

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locker   lock.Locker
	Metrics  *metrics.JobMetrics
	Interval time.Duration
	// LockWait bounds how long a cycle waits for another instance before skipping.
	LockWait time.Duration
}

// Service executes registered jobs on a fixed cadence.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	locker   lock.Locker
	metrics  *metrics.JobMetrics
	interval time.Duration
	lockWait time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	lockWait := params.LockWait
	if lockWait <= 0 {
		lockWait = defaultLockWait
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		locker:   params.Locker,
		metrics:  params.Metrics,
		interval: interval,
		lockWait: lockWait,
	}, nil
}

// Run executes one cycle immediately and then one per interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				s.logg.Error(ctx, "scheduled run failed", err)
			}
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	release, err := s.locker.Acquire(waitCtx, LockKey)
	cancel()
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) && ctx.Err() == nil {
			s.logg.Info(ctx, "another scheduler instance is running; skipping this cycle")
			return nil
		}
		return fmt.Errorf("lock acquire: %w", err)
	}
	defer release()

	s.logg.Info(ctx, "scheduled run starting")
	for _, job := range s.registry.Jobs() {
		s.runJob(ctx, job)
	}
	s.logg.Info(ctx, "scheduled run complete")
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithFields(ctx, map[string]any{
		"job":   job.Name(),
		"event": "scheduler.job",
	})
	s.logg.Debug(jobCtx, "job start")
	start := time.Now()
	err := job.Run(jobCtx)
	duration := time.Since(start)
	s.metrics.ObserveDuration(job.Name(), duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		s.metrics.IncFailure(job.Name())
		return
	}
	s.logg.Info(jobCtx, "job completed")
	s.metrics.IncSuccess(job.Name())
}
