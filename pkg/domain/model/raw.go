package model

import (
	"time"

	"github.com/m-mizutani/vigil/pkg/domain/types"
)

// RawRepository is one repository record as delivered by an acquisition
// channel. Nothing about it is trusted: fields may be empty, counters may
// be negative, timestamps may be missing, and the same full name may appear
// in many ingestion batches. Records are immutable once written.
type RawRepository struct {
	// Seq is assigned by the store on append, strictly increasing per data
	// source. It is the basis of change detection and the dedup tie-break.
	Seq int64 `json:"seq"`

	DataSource types.DataSource `json:"data_source"`
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	FullName   string           `json:"full_name"`
	Owner      string           `json:"owner"`
	Language   string           `json:"language"`
	Stars      int              `json:"stars"`
	Forks      int              `json:"forks"`
	HTMLURL    string           `json:"html_url"`
	CreatedAt  *time.Time       `json:"created_at"`
	UpdatedAt  *time.Time       `json:"updated_at"`
	LoadedAt   time.Time        `json:"loaded_at"`
}

// RawContributor is a per-contributor commit counter for one repository.
// Many rows per repository are expected.
type RawContributor struct {
	DataSource      types.DataSource `json:"data_source"`
	RepoFullName    string           `json:"repo_full_name"`
	Contributor     string           `json:"contributor"`
	TotalCommits    int              `json:"total_commits"`
	Recent90Commits int              `json:"recent_90_days_commits"`
	LoadedAt        time.Time        `json:"loaded_at"`
}

// RawCommitActivity is a windowed commit counter record for one repository.
type RawCommitActivity struct {
	DataSource     types.DataSource `json:"data_source"`
	Repo           string           `json:"repo"`
	Commits30D     int              `json:"commits_30d"`
	Commits90D     int              `json:"commits_90d"`
	Commits180D    int              `json:"commits_180d"`
	LastCommitDate *time.Time       `json:"last_commit_date"`
	LoadedAt       time.Time        `json:"loaded_at"`
}

// RawIssueActivity is an issue counter record for one repository.
type RawIssueActivity struct {
	DataSource   types.DataSource `json:"data_source"`
	Repo         string           `json:"repo"`
	OpenIssues   int              `json:"open_issues"`
	ClosedIssues int              `json:"closed_issues"`
	IssuesLast90 int              `json:"issues_last_90d"`
	LoadedAt     time.Time        `json:"loaded_at"`
}

// RawReleaseActivity is a release recency record for one repository.
type RawReleaseActivity struct {
	DataSource    types.DataSource `json:"data_source"`
	Repo          string           `json:"repo"`
	ReleaseCount  int              `json:"release_count"`
	LastRelease   *time.Time       `json:"last_release_date"`
	DaysSinceLast int              `json:"days_since_last_release"`
	LoadedAt      time.Time        `json:"loaded_at"`
}
