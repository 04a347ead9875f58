package csvsource

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/domain/interfaces"
	"github.com/m-mizutani/vigil/pkg/domain/model"
)

// Source reads raw records from CSV files in a directory. Expected files
// (all optional except repositories.csv):
//
//	repositories.csv  id,name,full_name,owner,language,stars,forks,html_url,created_at,updated_at
//	contributors.csv  repo_full_name,contributor,total_commits,recent_90_days_commits
//	commits.csv       repo,commits_30d,commits_90d,commits_180d,last_commit_date
//	issues.csv        repo,open_issues,closed_issues,issues_last_90d
//	releases.csv      repo,release_count,last_release_date,days_since_last_release
//
// Values are passed through untouched; unparsable numbers become 0 and
// unparsable timestamps become nil, which the pipeline treats like any
// other dirty input.
type Source struct {
	dir string
	now func() time.Time
}

var _ interfaces.RepositorySource = (*Source)(nil)

// Option configures the source.
type Option func(*Source)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Source) {
		s.now = now
	}
}

// New creates a CSV directory source.
func New(dir string, opts ...Option) *Source {
	s := &Source{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) Name() string {
	return "csv"
}

func (s *Source) Fetch(ctx context.Context) (*model.RecordBatch, error) {
	logger := ctxlog.From(ctx)
	now := s.now()
	batch := &model.RecordBatch{}

	repoRows, err := readCSV(filepath.Join(s.dir, "repositories.csv"))
	if err != nil {
		return nil, err
	}
	for _, row := range repoRows {
		batch.Repositories = append(batch.Repositories, model.RawRepository{
			ID:        field(row, 0),
			Name:      field(row, 1),
			FullName:  field(row, 2),
			Owner:     field(row, 3),
			Language:  field(row, 4),
			Stars:     atoi(field(row, 5)),
			Forks:     atoi(field(row, 6)),
			HTMLURL:   field(row, 7),
			CreatedAt: parseTime(field(row, 8)),
			UpdatedAt: parseTime(field(row, 9)),
			LoadedAt:  now,
		})
	}

	if rows, err := readOptionalCSV(filepath.Join(s.dir, "contributors.csv")); err != nil {
		return nil, err
	} else {
		for _, row := range rows {
			batch.Contributors = append(batch.Contributors, model.RawContributor{
				RepoFullName:    field(row, 0),
				Contributor:     field(row, 1),
				TotalCommits:    atoi(field(row, 2)),
				Recent90Commits: atoi(field(row, 3)),
				LoadedAt:        now,
			})
		}
	}

	if rows, err := readOptionalCSV(filepath.Join(s.dir, "commits.csv")); err != nil {
		return nil, err
	} else {
		for _, row := range rows {
			batch.Commits = append(batch.Commits, model.RawCommitActivity{
				Repo:           field(row, 0),
				Commits30D:     atoi(field(row, 1)),
				Commits90D:     atoi(field(row, 2)),
				Commits180D:    atoi(field(row, 3)),
				LastCommitDate: parseTime(field(row, 4)),
				LoadedAt:       now,
			})
		}
	}

	if rows, err := readOptionalCSV(filepath.Join(s.dir, "issues.csv")); err != nil {
		return nil, err
	} else {
		for _, row := range rows {
			batch.Issues = append(batch.Issues, model.RawIssueActivity{
				Repo:         field(row, 0),
				OpenIssues:   atoi(field(row, 1)),
				ClosedIssues: atoi(field(row, 2)),
				IssuesLast90: atoi(field(row, 3)),
				LoadedAt:     now,
			})
		}
	}

	if rows, err := readOptionalCSV(filepath.Join(s.dir, "releases.csv")); err != nil {
		return nil, err
	} else {
		for _, row := range rows {
			batch.Releases = append(batch.Releases, model.RawReleaseActivity{
				Repo:          field(row, 0),
				ReleaseCount:  atoi(field(row, 1)),
				LastRelease:   parseTime(field(row, 2)),
				DaysSinceLast: atoi(field(row, 3)),
				LoadedAt:      now,
			})
		}
	}

	logger.Info("loaded records from CSV",
		"dir", s.dir,
		"repositories", len(batch.Repositories),
		"total", batch.Size(),
	)
	return batch, nil
}

// readCSV reads all data rows, skipping the header line.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open CSV file", goerr.V("path", path))
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var rows [][]string
	header := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to parse CSV file", goerr.V("path", path))
		}
		if header {
			header = false
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func readOptionalCSV(path string) ([][]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return readCSV(path)
}

func field(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
