package usecase

import (
	"context"
	"time"

	"IngestionAlerter/internal/ports"
)

// Scheduler wires the ticker driver with the pipeline use case. A failed
// run is handed to onError so it stays as visible as a failing dataset;
// the schedule itself keeps ticking.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	onError  func(context.Context, error)
}

// NewScheduler returns a helper to start/stop recurring runs. onError may
// be nil, in which case run failures are dropped by the caller's choice.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, onError func(context.Context, error)) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline, onError: onError}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if err := s.pipeline.Run(ctx, trigger); err != nil && s.onError != nil {
			s.onError(ctx, err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
