package model

import (
	"time"

	"github.com/m-mizutani/vigil/pkg/domain/types"
)

// Cleaned fact records. Same shapes as the raw variants with all counters
// clamped to sane ranges and name fields replaced with sentinels when
// empty. Cardinality matches the raw input: the normalizer never
// deduplicates or aggregates.

// ContributorFact is a cleaned per-contributor commit counter.
type ContributorFact struct {
	DataSource      types.DataSource `json:"data_source"`
	RepoFullName    string           `json:"repo_full_name"`
	Contributor     string           `json:"contributor"`
	TotalCommits    int              `json:"total_commits"`
	Recent90Commits int              `json:"recent_90_days_commits"`
	LoadedAt        time.Time        `json:"loaded_at"`
}

// CommitFact is a cleaned windowed commit counter.
type CommitFact struct {
	DataSource     types.DataSource `json:"data_source"`
	Repo           string           `json:"repo"`
	Commits30D     int              `json:"commits_30d"`
	Commits90D     int              `json:"commits_90d"`
	Commits180D    int              `json:"commits_180d"`
	LastCommitDate time.Time        `json:"last_commit_date"`
	LoadedAt       time.Time        `json:"loaded_at"`
}

// IssueFact is a cleaned issue counter.
type IssueFact struct {
	DataSource   types.DataSource `json:"data_source"`
	Repo         string           `json:"repo"`
	OpenIssues   int              `json:"open_issues"`
	ClosedIssues int              `json:"closed_issues"`
	IssuesLast90 int              `json:"issues_last_90d"`
	LoadedAt     time.Time        `json:"loaded_at"`
}

// ReleaseFact is a cleaned release recency record. DaysSinceLast uses 999
// as the sentinel for "unknown or very stale".
type ReleaseFact struct {
	DataSource    types.DataSource `json:"data_source"`
	Repo          string           `json:"repo"`
	ReleaseCount  int              `json:"release_count"`
	LastRelease   time.Time        `json:"last_release_date"`
	DaysSinceLast int              `json:"days_since_last_release"`
	LoadedAt      time.Time        `json:"loaded_at"`
}

// StaleReleaseDays is the sentinel for a repository whose release recency
// is unknown or implausible.
const StaleReleaseDays = 999

// UnknownRepoName and UnknownContributor replace empty key fields so that
// malformed fact rows stay joinable and countable instead of vanishing.
const (
	UnknownRepoName    = "UNKNOWN/UNKNOWN"
	UnknownContributor = "unknown_contributor"
)
