package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/domain/interfaces"
	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/m-mizutani/vigil/pkg/domain/types"
)

type enrichUseCase struct {
	db  interfaces.Database
	now func() time.Time
}

// EnrichOption configures the enricher.
type EnrichOption func(*enrichUseCase)

// WithEnrichClock replaces the wall clock, for tests.
func WithEnrichClock(now func() time.Time) EnrichOption {
	return func(uc *enrichUseCase) {
		uc.now = now
	}
}

// NewEnrich creates the enrichment stage. It is a left outer join anchored
// on the valid staged repositories: every valid repository yields exactly
// one profile, facts or not.
func NewEnrich(db interfaces.Database, opts ...EnrichOption) interfaces.EnrichUseCase {
	uc := &enrichUseCase{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// contributorAgg collects the distinct-contributor aggregates for one
// repository.
type contributorAgg struct {
	total  map[string]struct{}
	active map[string]struct{}
}

func (uc *enrichUseCase) Run(ctx context.Context, ds types.DataSource) (*model.EnrichResult, error) {
	logger := ctxlog.From(ctx)

	staged, err := uc.db.StagedRepositories(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read staged repositories", goerr.V("data_source", ds))
	}

	contributors, err := uc.db.ContributorFacts(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read contributor facts", goerr.V("data_source", ds))
	}
	aggs := map[string]*contributorAgg{}
	for _, c := range contributors {
		agg, ok := aggs[c.RepoFullName]
		if !ok {
			agg = &contributorAgg{
				total:  map[string]struct{}{},
				active: map[string]struct{}{},
			}
			aggs[c.RepoFullName] = agg
		}
		agg.total[c.Contributor] = struct{}{}
		if c.Recent90Commits > 0 {
			agg.active[c.Contributor] = struct{}{}
		}
	}

	commits, err := uc.db.CommitFacts(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read commit facts", goerr.V("data_source", ds))
	}
	commitByRepo := map[string]model.CommitFact{}
	for _, c := range commits {
		commitByRepo[c.Repo] = c
	}

	issues, err := uc.db.IssueFacts(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read issue facts", goerr.V("data_source", ds))
	}
	issueByRepo := map[string]model.IssueFact{}
	for _, i := range issues {
		issueByRepo[i.Repo] = i
	}

	releases, err := uc.db.ReleaseFacts(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read release facts", goerr.V("data_source", ds))
	}
	releaseByRepo := map[string]model.ReleaseFact{}
	for _, r := range releases {
		releaseByRepo[r.Repo] = r
	}

	now := uc.now()
	profiles := make([]model.RepositoryProfile, 0, len(staged))
	for _, repo := range staged {
		// Invalid rows never reach enrichment or beyond.
		if !repo.Valid {
			continue
		}

		profile := model.RepositoryProfile{
			DataSource: repo.DataSource,
			ID:         repo.ID,
			Name:       repo.Name,
			FullName:   repo.FullName,
			Owner:      repo.Owner,
			Language:   repo.Language,
			Stars:      repo.Stars,
			Forks:      repo.Forks,
			HTMLURL:    repo.HTMLURL,
			CreatedAt:  repo.CreatedAt,
			UpdatedAt:  repo.UpdatedAt,

			DaysSinceLast: model.StaleReleaseDays,
			EnrichedAt:    now,
		}

		if agg, ok := aggs[repo.FullName]; ok {
			profile.TotalContributors = len(agg.total)
			profile.ActiveContributors90 = len(agg.active)
		}

		if c, ok := commitByRepo[repo.FullName]; ok {
			profile.Commits30D = c.Commits30D
			profile.Commits90D = c.Commits90D
			profile.Commits180D = c.Commits180D
			lastCommit := c.LastCommitDate
			profile.LastCommitDate = &lastCommit
		}

		if i, ok := issueByRepo[repo.FullName]; ok {
			profile.OpenIssues = i.OpenIssues
			profile.ClosedIssues = i.ClosedIssues
			profile.IssuesLast90 = i.IssuesLast90
		}

		if r, ok := releaseByRepo[repo.FullName]; ok {
			profile.ReleaseCount = r.ReleaseCount
			lastRelease := r.LastRelease
			profile.LastRelease = &lastRelease
			profile.DaysSinceLast = r.DaysSinceLast
		}

		profiles = append(profiles, profile)
	}

	if err := uc.db.ReplaceProfiles(ctx, ds, profiles); err != nil {
		return nil, goerr.Wrap(err, "failed to replace enriched profiles", goerr.V("data_source", ds))
	}

	logger.Info("enriched repository profiles",
		"data_source", ds,
		"staged", len(staged),
		"enriched", len(profiles),
	)

	return &model.EnrichResult{Enriched: len(profiles)}, nil
}
