package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/vigil/pkg/domain/interfaces"
	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/m-mizutani/vigil/pkg/domain/types"
)

// Scheduler invokes the pipeline for each configured data source on a
// fixed interval. Runs are sequential within a tick; the change gate
// makes a tick without new data a cheap no-op.
type Scheduler struct {
	pipelineUC interfaces.PipelineUseCase
	sources    []types.DataSource
	interval   time.Duration
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = d
	}
}

// WithSources sets the data sources checked on each tick.
func WithSources(sources ...types.DataSource) Option {
	return func(s *Scheduler) {
		s.sources = sources
	}
}

// New creates a scheduler. Defaults: 2 minute interval, default data
// source only.
func New(pipelineUC interfaces.PipelineUseCase, opts ...Option) *Scheduler {
	s := &Scheduler{
		pipelineUC: pipelineUC,
		sources:    []types.DataSource{types.DefaultDataSource},
		interval:   2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks until the context is canceled. An errored run is logged and
// the loop continues; the unconsumed cursor retries it on the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := ctxlog.From(ctx)
	logger.Info("scheduler started",
		"interval", s.interval,
		"sources", s.sources,
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	logger := ctxlog.From(ctx)
	for _, ds := range s.sources {
		result, err := s.pipelineUC.Run(ctx, ds)
		if err != nil {
			if errors.Is(err, types.ErrRunInFlight) {
				logger.Info("run already in flight, skipping tick", "data_source", ds)
				continue
			}
			logger.Error("scheduled pipeline run failed", "error", err, "data_source", ds)
			continue
		}
		if result.Status == model.StatusCompleted {
			logger.Info("scheduled pipeline run completed",
				"data_source", ds, "run_id", result.RunID)
		}
	}
}
