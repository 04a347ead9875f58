package gharchive

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/domain/interfaces"
	"github.com/m-mizutani/vigil/pkg/domain/model"
)

const defaultBaseURL = "https://data.gharchive.org"

// Source acquires repository records from GH Archive hourly event dumps
// (one gzipped JSON event per line). Events only carry repository names
// and actors, so the emitted records are sparse: descriptive fields stay
// empty and the validator downstream fills in the defaults.
type Source struct {
	httpClient *http.Client
	baseURL    string
	hours      []int
	maxEvents  int
	now        func() time.Time
}

var _ interfaces.RepositorySource = (*Source)(nil)

// Option configures the source.
type Option func(*Source)

// WithBaseURL points the source at a different archive host, for tests.
func WithBaseURL(url string) Option {
	return func(s *Source) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Source) {
		s.httpClient = client
	}
}

// WithHours selects which hourly dumps of yesterday to read.
func WithHours(hours []int) Option {
	return func(s *Source) {
		s.hours = hours
	}
}

// WithMaxEvents caps the number of events consumed across all dumps.
func WithMaxEvents(n int) Option {
	return func(s *Source) {
		s.maxEvents = n
	}
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Source) {
		s.now = now
	}
}

// New creates a GH Archive source reading midday dumps of yesterday.
func New(opts ...Option) *Source {
	s := &Source{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		hours:      []int{12, 13, 14, 15, 16},
		maxEvents:  5000,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) Name() string {
	return "gharchive"
}

// event is the subset of a GH Archive event the source cares about.
type event struct {
	Type string `json:"type"`
	Repo struct {
		Name string `json:"name"`
	} `json:"repo"`
	Actor struct {
		Login string `json:"login"`
	} `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

type repoActivity struct {
	events       int
	pushEvents   int
	contributors map[string]int
	lastEvent    time.Time
}

func (s *Source) Fetch(ctx context.Context) (*model.RecordBatch, error) {
	logger := ctxlog.From(ctx)

	date := s.now().AddDate(0, 0, -1).Format("2006-01-02")
	activity := map[string]*repoActivity{}
	consumed := 0

	for _, hour := range s.hours {
		if consumed >= s.maxEvents {
			break
		}
		url := fmt.Sprintf("%s/%s-%d.json.gz", s.baseURL, date, hour)
		n, err := s.readDump(ctx, url, activity, s.maxEvents-consumed)
		if err != nil {
			// A missing hour is not fatal; the archive publishes with lag.
			logger.Warn("failed to read archive dump", "url", url, "error", err)
			continue
		}
		consumed += n
	}

	if len(activity) == 0 {
		return nil, goerr.New("no events available from archive", goerr.V("date", date))
	}

	batch := s.toBatch(activity)
	logger.Info("collected records from GH Archive",
		"date", date,
		"events", consumed,
		"repositories", len(batch.Repositories),
	)
	return batch, nil
}

func (s *Source) readDump(ctx context.Context, url string, activity map[string]*repoActivity, budget int) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to create archive request", goerr.V("url", url))
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to download archive dump", goerr.V("url", url))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, goerr.New("unexpected archive status", goerr.V("url", url), goerr.V("status", resp.StatusCode))
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to open gzip stream", goerr.V("url", url))
	}
	defer gz.Close()

	consumed := 0
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() && consumed < budget {
		var ev event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue // malformed lines are expected in the archive
		}
		if ev.Repo.Name == "" {
			continue
		}

		act, ok := activity[ev.Repo.Name]
		if !ok {
			act = &repoActivity{contributors: map[string]int{}}
			activity[ev.Repo.Name] = act
		}
		act.events++
		if ev.Type == "PushEvent" {
			act.pushEvents++
			act.contributors[ev.Actor.Login]++
		}
		if ev.CreatedAt.After(act.lastEvent) {
			act.lastEvent = ev.CreatedAt
		}
		consumed++
	}
	if err := scanner.Err(); err != nil {
		return consumed, goerr.Wrap(err, "failed to scan archive stream", goerr.V("url", url))
	}
	return consumed, nil
}

func (s *Source) toBatch(activity map[string]*repoActivity) *model.RecordBatch {
	now := s.now()
	batch := &model.RecordBatch{}

	for fullName, act := range activity {
		owner, name := splitFullName(fullName)

		var updated *time.Time
		if !act.lastEvent.IsZero() {
			t := act.lastEvent
			updated = &t
		}

		batch.Repositories = append(batch.Repositories, model.RawRepository{
			ID:        "gh_" + fullName,
			Name:      name,
			FullName:  fullName,
			Owner:     owner,
			HTMLURL:   "https://github.com/" + fullName,
			UpdatedAt: updated,
			LoadedAt:  now,
		})

		for login, commits := range act.contributors {
			batch.Contributors = append(batch.Contributors, model.RawContributor{
				RepoFullName:    fullName,
				Contributor:     login,
				TotalCommits:    commits,
				Recent90Commits: commits,
				LoadedAt:        now,
			})
		}

		if act.pushEvents > 0 {
			batch.Commits = append(batch.Commits, model.RawCommitActivity{
				Repo:           fullName,
				Commits30D:     act.pushEvents,
				Commits90D:     act.pushEvents,
				Commits180D:    act.pushEvents,
				LastCommitDate: updated,
				LoadedAt:       now,
			})
		}
	}
	return batch
}

func splitFullName(fullName string) (owner, name string) {
	if i := strings.Index(fullName, "/"); i >= 0 {
		return fullName[:i], fullName[i+1:]
	}
	return "unknown", fullName
}
