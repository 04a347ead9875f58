package interfaces

import (
	"context"

	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/m-mizutani/vigil/pkg/domain/types"
)

// StagingUseCase validates, cleans and deduplicates raw repository records
// into the staged layer.
type StagingUseCase interface {
	Run(ctx context.Context, ds types.DataSource) (*model.StagingResult, error)
}

// FactsUseCase normalizes the four raw fact streams into cleaned fact
// records, purely row-wise.
type FactsUseCase interface {
	Run(ctx context.Context, ds types.DataSource) (*model.FactsResult, error)
}

// EnrichUseCase joins staged repositories against aggregated fact records
// into one wide profile per valid repository.
type EnrichUseCase interface {
	Run(ctx context.Context, ds types.DataSource) (*model.EnrichResult, error)
}

// RiskUseCase computes a risk assessment per enriched profile.
type RiskUseCase interface {
	Run(ctx context.Context, ds types.DataSource) (*model.RiskResult, error)
}

// PipelineUseCase is the change-gated orchestrator wrapping the four
// stages as one logical unit of work.
type PipelineUseCase interface {
	Run(ctx context.Context, ds types.DataSource) (*model.RunResult, error)
}

// ReportUseCase is the read-only query surface over the curated layer.
type ReportUseCase interface {
	Summary(ctx context.Context, ds types.DataSource) (*model.RiskSummary, error)
	Assessments(ctx context.Context, ds types.DataSource, q model.AssessmentQuery) ([]model.RiskAssessment, error)
	Languages(ctx context.Context, ds types.DataSource) ([]model.LanguageRisk, error)
	PipelineStatus(ctx context.Context, ds types.DataSource) (*model.PipelineStatus, error)
	Logs(ctx context.Context, ds types.DataSource, limit int) ([]model.PipelineLogEntry, error)
}

// IngestUseCase writes acquisition output into the raw layer.
type IngestUseCase interface {
	FromSource(ctx context.Context, ds types.DataSource, src RepositorySource) (*model.IngestResult, error)
}
