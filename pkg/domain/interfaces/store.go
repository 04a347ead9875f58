package interfaces

import (
	"context"
	"time"

	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/m-mizutani/vigil/pkg/domain/types"
)

// Database is the storage boundary of the pipeline. Raw datasets are
// append-only; staged, fact, profile and assessment datasets are replaced
// wholesale per data source by each successful stage, so readers only ever
// observe a complete generation of a dataset.
type Database interface {
	// Raw layer (append-only). PutRawRepositories assigns each record a
	// strictly increasing Seq within the data source partition.
	PutRawRepositories(ctx context.Context, ds types.DataSource, rows []model.RawRepository) error
	RawRepositories(ctx context.Context, ds types.DataSource) ([]model.RawRepository, error)
	// RawHead returns the highest assigned raw repository Seq, 0 when the
	// partition is empty.
	RawHead(ctx context.Context, ds types.DataSource) (int64, error)
	PutRawContributors(ctx context.Context, ds types.DataSource, rows []model.RawContributor) error
	RawContributors(ctx context.Context, ds types.DataSource) ([]model.RawContributor, error)
	PutRawCommitActivities(ctx context.Context, ds types.DataSource, rows []model.RawCommitActivity) error
	RawCommitActivities(ctx context.Context, ds types.DataSource) ([]model.RawCommitActivity, error)
	PutRawIssueActivities(ctx context.Context, ds types.DataSource, rows []model.RawIssueActivity) error
	RawIssueActivities(ctx context.Context, ds types.DataSource) ([]model.RawIssueActivity, error)
	PutRawReleaseActivities(ctx context.Context, ds types.DataSource, rows []model.RawReleaseActivity) error
	RawReleaseActivities(ctx context.Context, ds types.DataSource) ([]model.RawReleaseActivity, error)

	// Staged layer.
	ReplaceStagedRepositories(ctx context.Context, ds types.DataSource, rows []model.StagedRepository) error
	StagedRepositories(ctx context.Context, ds types.DataSource) ([]model.StagedRepository, error)

	// Cleaned fact layer.
	ReplaceContributorFacts(ctx context.Context, ds types.DataSource, rows []model.ContributorFact) error
	ContributorFacts(ctx context.Context, ds types.DataSource) ([]model.ContributorFact, error)
	ReplaceCommitFacts(ctx context.Context, ds types.DataSource, rows []model.CommitFact) error
	CommitFacts(ctx context.Context, ds types.DataSource) ([]model.CommitFact, error)
	ReplaceIssueFacts(ctx context.Context, ds types.DataSource, rows []model.IssueFact) error
	IssueFacts(ctx context.Context, ds types.DataSource) ([]model.IssueFact, error)
	ReplaceReleaseFacts(ctx context.Context, ds types.DataSource, rows []model.ReleaseFact) error
	ReleaseFacts(ctx context.Context, ds types.DataSource) ([]model.ReleaseFact, error)

	// Enriched layer.
	ReplaceProfiles(ctx context.Context, ds types.DataSource, rows []model.RepositoryProfile) error
	Profiles(ctx context.Context, ds types.DataSource) ([]model.RepositoryProfile, error)

	// Curated layer.
	ReplaceAssessments(ctx context.Context, ds types.DataSource, rows []model.RiskAssessment) error
	Assessments(ctx context.Context, ds types.DataSource) ([]model.RiskAssessment, error)

	// Change-capture cursor: the highest raw repository Seq consumed by a
	// successful run. AdvanceCursor has compare-and-advance semantics and
	// returns types.ErrCursorConflict when the stored value is not `from`.
	Cursor(ctx context.Context, ds types.DataSource) (int64, error)
	AdvanceCursor(ctx context.Context, ds types.DataSource, from, to int64) error

	// Append-only pipeline log. CloseLogEntry finalizes the entry with the
	// given ID, setting status, message and end time; it returns
	// types.ErrLogEntryNotFound when no such open entry exists.
	AppendLogEntry(ctx context.Context, entry *model.PipelineLogEntry) error
	CloseLogEntry(ctx context.Context, id string, status model.RunStatus, message string, endTime time.Time) error
	LogEntries(ctx context.Context, ds types.DataSource, limit int) ([]model.PipelineLogEntry, error)

	Close() error
}
