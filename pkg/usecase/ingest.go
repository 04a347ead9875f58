package usecase

import (
	"context"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/domain/interfaces"
	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/m-mizutani/vigil/pkg/domain/types"
)

type ingestUseCase struct {
	db interfaces.Database
}

// NewIngest creates the acquisition writer. It takes whatever a source
// produced, stamps the data source tag, and appends it to the raw layer
// untouched: cleaning is the pipeline's job, not acquisition's.
func NewIngest(db interfaces.Database) interfaces.IngestUseCase {
	return &ingestUseCase{db: db}
}

func (uc *ingestUseCase) FromSource(ctx context.Context, ds types.DataSource, src interfaces.RepositorySource) (*model.IngestResult, error) {
	logger := ctxlog.From(ctx)

	batch, err := src.Fetch(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch from source",
			goerr.V("source", src.Name()), goerr.V("data_source", ds))
	}

	for i := range batch.Repositories {
		batch.Repositories[i].DataSource = ds
	}
	for i := range batch.Contributors {
		batch.Contributors[i].DataSource = ds
	}
	for i := range batch.Commits {
		batch.Commits[i].DataSource = ds
	}
	for i := range batch.Issues {
		batch.Issues[i].DataSource = ds
	}
	for i := range batch.Releases {
		batch.Releases[i].DataSource = ds
	}

	if err := uc.db.PutRawRepositories(ctx, ds, batch.Repositories); err != nil {
		return nil, goerr.Wrap(err, "failed to append raw repositories", goerr.V("data_source", ds))
	}
	if err := uc.db.PutRawContributors(ctx, ds, batch.Contributors); err != nil {
		return nil, goerr.Wrap(err, "failed to append raw contributors", goerr.V("data_source", ds))
	}
	if err := uc.db.PutRawCommitActivities(ctx, ds, batch.Commits); err != nil {
		return nil, goerr.Wrap(err, "failed to append raw commit activities", goerr.V("data_source", ds))
	}
	if err := uc.db.PutRawIssueActivities(ctx, ds, batch.Issues); err != nil {
		return nil, goerr.Wrap(err, "failed to append raw issue activities", goerr.V("data_source", ds))
	}
	if err := uc.db.PutRawReleaseActivities(ctx, ds, batch.Releases); err != nil {
		return nil, goerr.Wrap(err, "failed to append raw release activities", goerr.V("data_source", ds))
	}

	result := &model.IngestResult{
		Source:       src.Name(),
		Repositories: len(batch.Repositories),
		Contributors: len(batch.Contributors),
		Commits:      len(batch.Commits),
		Issues:       len(batch.Issues),
		Releases:     len(batch.Releases),
	}

	logger.Info("ingested raw records",
		"source", src.Name(),
		"data_source", ds,
		"repositories", result.Repositories,
		"contributors", result.Contributors,
		"commits", result.Commits,
		"issues", result.Issues,
		"releases", result.Releases,
	)

	return result, nil
}
