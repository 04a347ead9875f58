package usecase_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/m-mizutani/vigil/pkg/domain/types"
	"github.com/m-mizutani/vigil/pkg/infra/memory"
	"github.com/m-mizutani/vigil/pkg/usecase"
)

func stagedRepo(fullName string, valid bool) model.StagedRepository {
	return model.StagedRepository{
		ID:       "id-" + fullName,
		Name:     fullName,
		FullName: fullName,
		Owner:    "acme",
		Language: "Go",
		Stars:    100,
		Valid:    valid,
	}
}

func TestEnrichJoinCompleteness(t *testing.T) {
	ctx := context.Background()
	ds := types.DataSource("test")
	db := memory.New()

	gt.NoError(t, db.ReplaceStagedRepositories(ctx, ds, []model.StagedRepository{
		stagedRepo("acme/full", true),
		stagedRepo("acme/bare", true),
		stagedRepo("acme/bad", false),
	}))

	commitDate := timeAt("2024-05-01T00:00:00Z")
	releaseDate := timeAt("2024-06-01T00:00:00Z")
	gt.NoError(t, db.ReplaceContributorFacts(ctx, ds, []model.ContributorFact{
		{RepoFullName: "acme/full", Contributor: "alice", TotalCommits: 40, Recent90Commits: 10},
		{RepoFullName: "acme/full", Contributor: "alice", TotalCommits: 40, Recent90Commits: 10},
		{RepoFullName: "acme/full", Contributor: "bob", TotalCommits: 5, Recent90Commits: 0},
		{RepoFullName: "acme/orphan", Contributor: "eve", TotalCommits: 1, Recent90Commits: 1},
	}))
	gt.NoError(t, db.ReplaceCommitFacts(ctx, ds, []model.CommitFact{
		{Repo: "acme/full", Commits30D: 8, Commits90D: 25, Commits180D: 50, LastCommitDate: *commitDate},
	}))
	gt.NoError(t, db.ReplaceIssueFacts(ctx, ds, []model.IssueFact{
		{Repo: "acme/full", OpenIssues: 3, ClosedIssues: 12, IssuesLast90: 6},
	}))
	gt.NoError(t, db.ReplaceReleaseFacts(ctx, ds, []model.ReleaseFact{
		{Repo: "acme/full", ReleaseCount: 4, LastRelease: *releaseDate, DaysSinceLast: 30},
	}))

	uc := usecase.NewEnrich(db, usecase.WithEnrichClock(fixedClock))
	result := gt.R1(uc.Run(ctx, ds)).NoError(t)
	gt.Equal(t, result.Enriched, 2)

	profiles := gt.R1(db.Profiles(ctx, ds)).NoError(t)
	byName := map[string]model.RepositoryProfile{}
	for _, p := range profiles {
		byName[p.FullName] = p
	}

	full, ok := byName["acme/full"]
	gt.True(t, ok)
	gt.Equal(t, full.TotalContributors, 2) // distinct logins
	gt.Equal(t, full.ActiveContributors90, 1)
	gt.Equal(t, full.Commits90D, 25)
	gt.Equal(t, full.OpenIssues, 3)
	gt.Equal(t, full.ReleaseCount, 4)
	gt.Equal(t, full.DaysSinceLast, 30)
	gt.NotNil(t, full.LastCommitDate)
	gt.NotNil(t, full.LastRelease)
	gt.Equal(t, full.EnrichedAt, testNow)

	// No facts at all still yields a profile with quiescent defaults
	bare, ok := byName["acme/bare"]
	gt.True(t, ok)
	gt.Equal(t, bare.TotalContributors, 0)
	gt.Equal(t, bare.Commits90D, 0)
	gt.Equal(t, bare.OpenIssues, 0)
	gt.Equal(t, bare.ReleaseCount, 0)
	gt.Equal(t, bare.DaysSinceLast, model.StaleReleaseDays)
	gt.Nil(t, bare.LastCommitDate)
	gt.Nil(t, bare.LastRelease)

	// Invalid repositories and orphaned facts never surface
	_, ok = byName["acme/bad"]
	gt.False(t, ok)
	_, ok = byName["acme/orphan"]
	gt.False(t, ok)
}

func TestEnrichReplacesPreviousGeneration(t *testing.T) {
	ctx := context.Background()
	ds := types.DataSource("test")
	db := memory.New()

	gt.NoError(t, db.ReplaceStagedRepositories(ctx, ds, []model.StagedRepository{
		stagedRepo("acme/one", true),
		stagedRepo("acme/two", true),
	}))

	uc := usecase.NewEnrich(db, usecase.WithEnrichClock(fixedClock))
	gt.R1(uc.Run(ctx, ds)).NoError(t)
	gt.A(t, gt.R1(db.Profiles(ctx, ds)).NoError(t)).Length(2)

	// Shrinking the staged set shrinks the profile set
	gt.NoError(t, db.ReplaceStagedRepositories(ctx, ds, []model.StagedRepository{
		stagedRepo("acme/one", true),
	}))
	gt.R1(uc.Run(ctx, ds)).NoError(t)

	profiles := gt.R1(db.Profiles(ctx, ds)).NoError(t)
	gt.A(t, profiles).Length(1)
	gt.Equal(t, profiles[0].FullName, "acme/one")
}
