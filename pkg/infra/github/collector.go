package github

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/domain/interfaces"
	"github.com/m-mizutani/vigil/pkg/domain/model"
)

// Collector acquires repository and activity records through the GitHub
// REST API. It emits raw records as-is: counters come straight from the
// API and are not validated here.
type Collector struct {
	client   *github.Client
	query    string
	maxRepos int
	now      func() time.Time
}

var _ interfaces.RepositorySource = (*Collector)(nil)

// CollectorOption configures the collector.
type CollectorOption func(*Collector)

// WithQuery sets the repository search query (default "stars:>100").
func WithQuery(query string) CollectorOption {
	return func(c *Collector) {
		c.query = query
	}
}

// WithMaxRepos caps how many repositories one Fetch collects. Each
// repository costs several API calls, so the cap keeps a fetch inside the
// rate limit.
func WithMaxRepos(n int) CollectorOption {
	return func(c *Collector) {
		c.maxRepos = n
	}
}

// WithHTTPClient replaces the underlying API client, for tests.
func WithHTTPClient(client *github.Client) CollectorOption {
	return func(c *Collector) {
		c.client = client
	}
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) CollectorOption {
	return func(c *Collector) {
		c.now = now
	}
}

// NewCollector creates a GitHub source. An empty token uses anonymous
// access with its much lower rate limit.
func NewCollector(token string, opts ...CollectorOption) *Collector {
	c := &Collector{
		client:   github.NewClient(nil),
		query:    "stars:>100",
		maxRepos: 20,
		now:      time.Now,
	}
	if token != "" {
		c.client = c.client.WithAuthToken(token)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collector) Name() string {
	return "github"
}

// Fetch searches repositories and collects their activity records. A
// failure on one repository's activity endpoints is logged and skipped;
// the repository record itself is still emitted, which downstream handles
// as a repository with no facts.
func (c *Collector) Fetch(ctx context.Context) (*model.RecordBatch, error) {
	logger := ctxlog.From(ctx)

	result, _, err := c.client.Search.Repositories(ctx, c.query, &github.SearchOptions{
		Sort:        "updated",
		ListOptions: github.ListOptions{PerPage: c.maxRepos},
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search repositories", goerr.V("query", c.query))
	}

	batch := &model.RecordBatch{}
	now := c.now()

	repos := result.Repositories
	if len(repos) > c.maxRepos {
		repos = repos[:c.maxRepos]
	}

	for _, repo := range repos {
		fullName := repo.GetFullName()

		batch.Repositories = append(batch.Repositories, model.RawRepository{
			ID:        strconv.FormatInt(repo.GetID(), 10),
			Name:      repo.GetName(),
			FullName:  fullName,
			Owner:     repo.GetOwner().GetLogin(),
			Language:  repo.GetLanguage(),
			Stars:     repo.GetStargazersCount(),
			Forks:     repo.GetForksCount(),
			HTMLURL:   repo.GetHTMLURL(),
			CreatedAt: timePtr(repo.GetCreatedAt().Time),
			UpdatedAt: timePtr(repo.GetUpdatedAt().Time),
			LoadedAt:  now,
		})

		owner := repo.GetOwner().GetLogin()
		name := repo.GetName()

		if rows, err := c.collectContributors(ctx, owner, name, fullName, now); err != nil {
			logger.Warn("failed to collect contributors", "repo", fullName, "error", err)
		} else {
			batch.Contributors = append(batch.Contributors, rows...)
		}

		if row, err := c.collectCommits(ctx, owner, name, fullName, now); err != nil {
			logger.Warn("failed to collect commit activity", "repo", fullName, "error", err)
		} else if row != nil {
			batch.Commits = append(batch.Commits, *row)
		}

		if row, err := c.collectIssues(ctx, owner, name, fullName, repo.GetOpenIssuesCount(), now); err != nil {
			logger.Warn("failed to collect issue activity", "repo", fullName, "error", err)
		} else if row != nil {
			batch.Issues = append(batch.Issues, *row)
		}

		if row, err := c.collectReleases(ctx, owner, name, fullName, now); err != nil {
			logger.Warn("failed to collect release activity", "repo", fullName, "error", err)
		} else if row != nil {
			batch.Releases = append(batch.Releases, *row)
		}
	}

	logger.Info("collected records from GitHub",
		"query", c.query,
		"repositories", len(batch.Repositories),
		"contributors", len(batch.Contributors),
	)

	return batch, nil
}

func (c *Collector) collectContributors(ctx context.Context, owner, name, fullName string, now time.Time) ([]model.RawContributor, error) {
	contributors, _, err := c.client.Repositories.ListContributors(ctx, owner, name, &github.ListContributorsOptions{
		ListOptions: github.ListOptions{PerPage: 30},
	})
	if err != nil {
		return nil, err
	}

	// The contributors endpoint only exposes lifetime totals; the 90-day
	// share is taken from the weekly commit activity when available.
	stats, _, err := c.client.Repositories.ListContributorsStats(ctx, owner, name)
	recentByLogin := map[string]int{}
	if err == nil {
		cutoff := now.AddDate(0, 0, -90)
		for _, cs := range stats {
			login := cs.GetAuthor().GetLogin()
			for _, week := range cs.Weeks {
				if week.Week.Time.After(cutoff) {
					recentByLogin[login] += week.GetCommits()
				}
			}
		}
	}

	rows := make([]model.RawContributor, 0, len(contributors))
	for _, contributor := range contributors {
		login := contributor.GetLogin()
		rows = append(rows, model.RawContributor{
			RepoFullName:    fullName,
			Contributor:     login,
			TotalCommits:    contributor.GetContributions(),
			Recent90Commits: recentByLogin[login],
			LoadedAt:        now,
		})
	}
	return rows, nil
}

func (c *Collector) collectCommits(ctx context.Context, owner, name, fullName string, now time.Time) (*model.RawCommitActivity, error) {
	activity, _, err := c.client.Repositories.ListCommitActivity(ctx, owner, name)
	if err != nil {
		return nil, err
	}

	row := &model.RawCommitActivity{
		Repo:     fullName,
		LoadedAt: now,
	}
	var lastCommit time.Time
	for _, week := range activity {
		age := now.Sub(week.Week.Time)
		total := week.GetTotal()
		if total > 0 && week.Week.Time.After(lastCommit) {
			lastCommit = week.Week.Time
		}
		if age <= 30*24*time.Hour {
			row.Commits30D += total
		}
		if age <= 90*24*time.Hour {
			row.Commits90D += total
		}
		if age <= 180*24*time.Hour {
			row.Commits180D += total
		}
	}
	if !lastCommit.IsZero() {
		row.LastCommitDate = &lastCommit
	}
	return row, nil
}

func (c *Collector) collectIssues(ctx context.Context, owner, name, fullName string, openCount int, now time.Time) (*model.RawIssueActivity, error) {
	closedQuery := fmt.Sprintf("repo:%s/%s type:issue state:closed", owner, name)
	closed, _, err := c.client.Search.Issues(ctx, closedQuery, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return nil, err
	}

	recentQuery := fmt.Sprintf("repo:%s/%s type:issue created:>%s",
		owner, name, now.AddDate(0, 0, -90).Format("2006-01-02"))
	recent, _, err := c.client.Search.Issues(ctx, recentQuery, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return nil, err
	}

	return &model.RawIssueActivity{
		Repo:         fullName,
		OpenIssues:   openCount,
		ClosedIssues: closed.GetTotal(),
		IssuesLast90: recent.GetTotal(),
		LoadedAt:     now,
	}, nil
}

func (c *Collector) collectReleases(ctx context.Context, owner, name, fullName string, now time.Time) (*model.RawReleaseActivity, error) {
	releases, _, err := c.client.Repositories.ListReleases(ctx, owner, name, &github.ListOptions{PerPage: 100})
	if err != nil {
		return nil, err
	}

	row := &model.RawReleaseActivity{
		Repo:          fullName,
		ReleaseCount:  len(releases),
		DaysSinceLast: model.StaleReleaseDays,
		LoadedAt:      now,
	}
	for _, release := range releases {
		published := release.GetPublishedAt().Time
		if row.LastRelease == nil || published.After(*row.LastRelease) {
			row.LastRelease = timePtr(published)
		}
	}
	if row.LastRelease != nil {
		row.DaysSinceLast = int(now.Sub(*row.LastRelease).Hours() / 24)
	}
	return row, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
