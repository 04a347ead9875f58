package model

import (
	"time"

	"github.com/m-mizutani/vigil/pkg/domain/types"
)

// RepositoryProfile is the wide analytical record built by the enricher:
// one row per valid staged repository, with every fact stream left-joined
// on. A repository with no matching facts still gets a profile, with
// activity metrics defaulted to quiescent values.
type RepositoryProfile struct {
	DataSource types.DataSource `json:"data_source"`
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	FullName   string           `json:"full_name"`
	Owner      string           `json:"owner"`
	Language   string           `json:"language"`
	Stars      int              `json:"stars"`
	Forks      int              `json:"forks"`
	HTMLURL    string           `json:"html_url"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`

	Commits30D     int        `json:"commits_30d"`
	Commits90D     int        `json:"commits_90d"`
	Commits180D    int        `json:"commits_180d"`
	LastCommitDate *time.Time `json:"last_commit_date"`

	TotalContributors    int `json:"total_contributors"`
	ActiveContributors90 int `json:"active_contributors_90d"`

	OpenIssues   int `json:"open_issues"`
	ClosedIssues int `json:"closed_issues"`
	IssuesLast90 int `json:"issues_last_90d"`

	ReleaseCount  int        `json:"release_count"`
	LastRelease   *time.Time `json:"last_release_date"`
	DaysSinceLast int        `json:"days_since_last_release"`

	EnrichedAt time.Time `json:"enriched_at"`
}
