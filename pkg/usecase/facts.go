package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/domain/interfaces"
	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/m-mizutani/vigil/pkg/domain/types"
)

type factsUseCase struct {
	db  interfaces.Database
	now func() time.Time
}

// FactsOption configures the fact normalizer.
type FactsOption func(*factsUseCase)

// WithFactsClock replaces the wall clock, for tests.
func WithFactsClock(now func() time.Time) FactsOption {
	return func(uc *factsUseCase) {
		uc.now = now
	}
}

// NewFacts creates the fact normalizer stage. It cleans the four raw fact
// streams independently and purely row-wise: no deduplication, no
// aggregation, output cardinality equals input cardinality.
func NewFacts(db interfaces.Database, opts ...FactsOption) interfaces.FactsUseCase {
	uc := &factsUseCase{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *factsUseCase) Run(ctx context.Context, ds types.DataSource) (*model.FactsResult, error) {
	logger := ctxlog.From(ctx)
	now := uc.now()
	result := &model.FactsResult{}

	contributors, err := uc.db.RawContributors(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read raw contributors", goerr.V("data_source", ds))
	}
	cFacts := make([]model.ContributorFact, 0, len(contributors))
	for _, r := range contributors {
		cFacts = append(cFacts, cleanContributor(&r, now))
	}
	if err := uc.db.ReplaceContributorFacts(ctx, ds, cFacts); err != nil {
		return nil, goerr.Wrap(err, "failed to replace contributor facts", goerr.V("data_source", ds))
	}
	result.Contributors = len(cFacts)

	commits, err := uc.db.RawCommitActivities(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read raw commit activities", goerr.V("data_source", ds))
	}
	cmFacts := make([]model.CommitFact, 0, len(commits))
	for _, r := range commits {
		cmFacts = append(cmFacts, cleanCommitActivity(&r, now))
	}
	if err := uc.db.ReplaceCommitFacts(ctx, ds, cmFacts); err != nil {
		return nil, goerr.Wrap(err, "failed to replace commit facts", goerr.V("data_source", ds))
	}
	result.Commits = len(cmFacts)

	issues, err := uc.db.RawIssueActivities(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read raw issue activities", goerr.V("data_source", ds))
	}
	iFacts := make([]model.IssueFact, 0, len(issues))
	for _, r := range issues {
		iFacts = append(iFacts, cleanIssueActivity(&r, now))
	}
	if err := uc.db.ReplaceIssueFacts(ctx, ds, iFacts); err != nil {
		return nil, goerr.Wrap(err, "failed to replace issue facts", goerr.V("data_source", ds))
	}
	result.Issues = len(iFacts)

	releases, err := uc.db.RawReleaseActivities(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read raw release activities", goerr.V("data_source", ds))
	}
	rFacts := make([]model.ReleaseFact, 0, len(releases))
	for _, r := range releases {
		rFacts = append(rFacts, cleanReleaseActivity(&r, now))
	}
	if err := uc.db.ReplaceReleaseFacts(ctx, ds, rFacts); err != nil {
		return nil, goerr.Wrap(err, "failed to replace release facts", goerr.V("data_source", ds))
	}
	result.Releases = len(rFacts)

	logger.Info("normalized fact records",
		"data_source", ds,
		"contributors", result.Contributors,
		"commits", result.Commits,
		"issues", result.Issues,
		"releases", result.Releases,
	)

	return result, nil
}

func repoNameOrUnknown(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.UnknownRepoName
	}
	return name
}

func cleanContributor(r *model.RawContributor, now time.Time) model.ContributorFact {
	contributor := strings.TrimSpace(r.Contributor)
	if contributor == "" {
		contributor = model.UnknownContributor
	}

	total := r.TotalCommits
	if total < 0 {
		total = 0
	}

	recent := r.Recent90Commits
	switch {
	case recent < 0:
		recent = 0
	case recent > total:
		recent = total
	}

	return model.ContributorFact{
		DataSource:      r.DataSource,
		RepoFullName:    repoNameOrUnknown(r.RepoFullName),
		Contributor:     contributor,
		TotalCommits:    total,
		Recent90Commits: recent,
		LoadedAt:        now,
	}
}

// cleanCommitActivity clamps each window counter against the *original*
// value of its sibling field, not the already-clamped one. The three
// clamps are independent, which matters when the siblings are themselves
// out of range.
func cleanCommitActivity(r *model.RawCommitActivity, now time.Time) model.CommitFact {
	c30 := r.Commits30D
	switch {
	case c30 < 0:
		c30 = 0
	case c30 > r.Commits90D:
		c30 = r.Commits90D
	}

	c90 := r.Commits90D
	switch {
	case c90 < 0:
		c90 = 0
	case c90 > r.Commits180D:
		c90 = r.Commits180D
	}

	c180 := r.Commits180D
	if c180 < 0 {
		c180 = 0
	}

	lastCommit := now
	if r.LastCommitDate != nil {
		lastCommit = *r.LastCommitDate
	}

	return model.CommitFact{
		DataSource:     r.DataSource,
		Repo:           repoNameOrUnknown(r.Repo),
		Commits30D:     c30,
		Commits90D:     c90,
		Commits180D:    c180,
		LastCommitDate: lastCommit,
		LoadedAt:       now,
	}
}

// cleanIssueActivity clamps the 90-day counter against the cleaned open
// and closed totals.
func cleanIssueActivity(r *model.RawIssueActivity, now time.Time) model.IssueFact {
	open := r.OpenIssues
	if open < 0 {
		open = 0
	}
	closed := r.ClosedIssues
	if closed < 0 {
		closed = 0
	}

	last90 := r.IssuesLast90
	switch {
	case last90 < 0:
		last90 = 0
	case last90 > open+closed:
		last90 = open + closed
	}

	return model.IssueFact{
		DataSource:   r.DataSource,
		Repo:         repoNameOrUnknown(r.Repo),
		OpenIssues:   open,
		ClosedIssues: closed,
		IssuesLast90: last90,
		LoadedAt:     now,
	}
}

func cleanReleaseActivity(r *model.RawReleaseActivity, now time.Time) model.ReleaseFact {
	count := r.ReleaseCount
	if count < 0 {
		count = 0
	}

	lastRelease := time.Unix(0, 0).UTC()
	if r.LastRelease != nil {
		lastRelease = *r.LastRelease
	}

	days := r.DaysSinceLast
	if days < 0 {
		days = model.StaleReleaseDays
	}

	return model.ReleaseFact{
		DataSource:    r.DataSource,
		Repo:          repoNameOrUnknown(r.Repo),
		ReleaseCount:  count,
		LastRelease:   lastRelease,
		DaysSinceLast: days,
		LoadedAt:      now,
	}
}
