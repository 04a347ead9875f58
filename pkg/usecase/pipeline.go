package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/domain/interfaces"
	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/m-mizutani/vigil/pkg/domain/types"
)

type pipelineUseCase struct {
	db       interfaces.Database
	staging  interfaces.StagingUseCase
	facts    interfaces.FactsUseCase
	enrich   interfaces.EnrichUseCase
	risk     interfaces.RiskUseCase
	notifier interfaces.Notifier
	now      func() time.Time

	mu      sync.Mutex
	running map[types.DataSource]bool
}

// PipelineOption configures the orchestrator.
type PipelineOption func(*pipelineUseCase)

// WithNotifier delivers run outcomes to an operator channel.
func WithNotifier(n interfaces.Notifier) PipelineOption {
	return func(uc *pipelineUseCase) {
		uc.notifier = n
	}
}

// WithPipelineClock replaces the wall clock, for tests.
func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(uc *pipelineUseCase) {
		uc.now = now
	}
}

// NewPipeline creates the change-gated orchestrator. A run executes the
// four stages strictly in order as one logical unit of work, gated on
// unconsumed raw input, and advances the change cursor only after full
// success so a failed run is retried from scratch on the next tick.
func NewPipeline(
	db interfaces.Database,
	staging interfaces.StagingUseCase,
	facts interfaces.FactsUseCase,
	enrich interfaces.EnrichUseCase,
	risk interfaces.RiskUseCase,
	opts ...PipelineOption,
) interfaces.PipelineUseCase {
	uc := &pipelineUseCase{
		db:      db,
		staging: staging,
		facts:   facts,
		enrich:  enrich,
		risk:    risk,
		now:     time.Now,
		running: map[types.DataSource]bool{},
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// tryAcquire marks the data source as running. Overlapping invocations
// would break the full-replace-per-run invariant of the downstream
// datasets, so a second caller is rejected instead of queued.
func (uc *pipelineUseCase) tryAcquire(ds types.DataSource) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.running[ds] {
		return false
	}
	uc.running[ds] = true
	return true
}

func (uc *pipelineUseCase) release(ds types.DataSource) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	delete(uc.running, ds)
}

func (uc *pipelineUseCase) Run(ctx context.Context, ds types.DataSource) (*model.RunResult, error) {
	logger := ctxlog.From(ctx)

	if !uc.tryAcquire(ds) {
		return nil, goerr.Wrap(types.ErrRunInFlight, "rejecting overlapping invocation", goerr.V("data_source", ds))
	}
	defer uc.release(ds)

	// Gate: a fault here is the orchestrator's own and aborts the run
	// before any stage executes.
	cursor, err := uc.db.Cursor(ctx, ds)
	if err != nil {
		uc.appendEntry(ctx, ds, model.StageGate, model.StatusError,
			fmt.Sprintf("Cannot read change cursor: %v", err))
		return nil, goerr.Wrap(err, "failed to read change cursor", goerr.V("data_source", ds))
	}
	head, err := uc.db.RawHead(ctx, ds)
	if err != nil {
		uc.appendEntry(ctx, ds, model.StageGate, model.StatusError,
			fmt.Sprintf("Cannot read raw head: %v", err))
		return nil, goerr.Wrap(err, "failed to read raw head", goerr.V("data_source", ds))
	}

	result := &model.RunResult{
		RunID:      uuid.NewString(),
		DataSource: ds,
	}

	if head <= cursor {
		uc.appendEntry(ctx, ds, model.StageGate, model.StatusSkipped,
			"No new data in stream, skipping pipeline execution")
		result.Status = model.StatusSkipped
		result.Message = "No new data, pipeline skipped"
		logger.Info("pipeline skipped, no new raw records",
			"data_source", ds, "cursor", cursor, "head", head)
		return result, nil
	}

	open := &model.PipelineLogEntry{
		ID:           result.RunID,
		PipelineName: types.AppName,
		DataSource:   ds,
		Stage:        model.StageFull,
		Status:       model.StatusStarted,
		Message:      "New data detected, starting pipeline execution",
		StartTime:    uc.now(),
	}
	if err := uc.db.AppendLogEntry(ctx, open); err != nil {
		return nil, goerr.Wrap(err, "failed to append pipeline log entry", goerr.V("data_source", ds))
	}

	logger.Info("pipeline started",
		"data_source", ds, "run_id", result.RunID, "cursor", cursor, "head", head)

	if err := uc.runStages(ctx, ds, result); err != nil {
		uc.closeEntry(ctx, open.ID, model.StatusError, err.Error())
		sentry.CaptureException(err)
		result.Status = model.StatusError
		result.Message = err.Error()
		uc.notify(ctx, result)
		return nil, err
	}

	// The cursor moves only inside a successful run; a conflict means a
	// concurrent writer got there first and the whole run is void.
	if err := uc.db.AdvanceCursor(ctx, ds, cursor, head); err != nil {
		wrapped := goerr.Wrap(err, "failed to advance change cursor",
			goerr.V("data_source", ds), goerr.V("from", cursor), goerr.V("to", head))
		uc.closeEntry(ctx, open.ID, model.StatusError, wrapped.Error())
		sentry.CaptureException(wrapped)
		return nil, wrapped
	}

	uc.closeEntry(ctx, open.ID, model.StatusCompleted, "Pipeline completed successfully for new data")

	result.Status = model.StatusCompleted
	result.Message = "Pipeline completed successfully for new data"
	uc.notify(ctx, result)

	logger.Info("pipeline completed", "data_source", ds, "run_id", result.RunID)
	return result, nil
}

// runStages executes the four stages strictly in order. Each stage must
// fully complete before the next starts; the first failure aborts the run
// with an ERROR entry naming the stage.
func (uc *pipelineUseCase) runStages(ctx context.Context, ds types.DataSource, result *model.RunResult) error {
	staging, err := uc.staging.Run(ctx, ds)
	if err != nil {
		return uc.stageFault(ctx, ds, model.StageStaging, err)
	}
	result.Staging = staging

	facts, err := uc.facts.Run(ctx, ds)
	if err != nil {
		return uc.stageFault(ctx, ds, model.StageFacts, err)
	}
	result.Facts = facts

	enrich, err := uc.enrich.Run(ctx, ds)
	if err != nil {
		return uc.stageFault(ctx, ds, model.StageEnrich, err)
	}
	result.Enrich = enrich

	risk, err := uc.risk.Run(ctx, ds)
	if err != nil {
		return uc.stageFault(ctx, ds, model.StageRisk, err)
	}
	result.Risk = risk

	return nil
}

func (uc *pipelineUseCase) stageFault(ctx context.Context, ds types.DataSource, stage model.Stage, err error) error {
	uc.appendEntry(ctx, ds, stage, model.StatusError,
		fmt.Sprintf("Pipeline failed: %v", err))
	return goerr.Wrap(err, "pipeline stage failed",
		goerr.V("data_source", ds), goerr.V("stage", stage))
}

// appendEntry writes an audit entry. Logging failures must not mask the
// run outcome, so they are only logged.
func (uc *pipelineUseCase) appendEntry(ctx context.Context, ds types.DataSource, stage model.Stage, status model.RunStatus, message string) {
	entry := &model.PipelineLogEntry{
		ID:           uuid.NewString(),
		PipelineName: types.AppName,
		DataSource:   ds,
		Stage:        stage,
		Status:       status,
		Message:      message,
		StartTime:    uc.now(),
	}
	if status != model.StatusStarted {
		end := entry.StartTime
		entry.EndTime = &end
	}
	if err := uc.db.AppendLogEntry(ctx, entry); err != nil {
		ctxlog.From(ctx).Error("failed to append pipeline log entry",
			"error", err, "stage", stage, "status", status)
	}
}

func (uc *pipelineUseCase) closeEntry(ctx context.Context, id string, status model.RunStatus, message string) {
	if err := uc.db.CloseLogEntry(ctx, id, status, message, uc.now()); err != nil {
		ctxlog.From(ctx).Error("failed to close pipeline log entry",
			"error", err, "id", id, "status", status)
	}
}

func (uc *pipelineUseCase) notify(ctx context.Context, result *model.RunResult) {
	if uc.notifier == nil {
		return
	}
	if err := uc.notifier.NotifyRun(ctx, result); err != nil {
		ctxlog.From(ctx).Warn("failed to notify run outcome",
			"error", err, "run_id", result.RunID)
	}
}
