package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/domain/interfaces"
	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/m-mizutani/vigil/pkg/domain/types"
)

// Store is an in-memory Database. It is the default backend for tests and
// one-shot local runs; all datasets are partitioned by data source and
// replacement swaps the whole slice under the lock, so readers only see
// complete generations.
type Store struct {
	mu sync.RWMutex

	seq map[types.DataSource]int64

	rawRepos        map[types.DataSource][]model.RawRepository
	rawContributors map[types.DataSource][]model.RawContributor
	rawCommits      map[types.DataSource][]model.RawCommitActivity
	rawIssues       map[types.DataSource][]model.RawIssueActivity
	rawReleases     map[types.DataSource][]model.RawReleaseActivity

	staged           map[types.DataSource][]model.StagedRepository
	contributorFacts map[types.DataSource][]model.ContributorFact
	commitFacts      map[types.DataSource][]model.CommitFact
	issueFacts       map[types.DataSource][]model.IssueFact
	releaseFacts     map[types.DataSource][]model.ReleaseFact
	profiles         map[types.DataSource][]model.RepositoryProfile
	assessments      map[types.DataSource][]model.RiskAssessment

	cursors map[types.DataSource]int64
	log     []model.PipelineLogEntry
}

var _ interfaces.Database = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		seq:              map[types.DataSource]int64{},
		rawRepos:         map[types.DataSource][]model.RawRepository{},
		rawContributors:  map[types.DataSource][]model.RawContributor{},
		rawCommits:       map[types.DataSource][]model.RawCommitActivity{},
		rawIssues:        map[types.DataSource][]model.RawIssueActivity{},
		rawReleases:      map[types.DataSource][]model.RawReleaseActivity{},
		staged:           map[types.DataSource][]model.StagedRepository{},
		contributorFacts: map[types.DataSource][]model.ContributorFact{},
		commitFacts:      map[types.DataSource][]model.CommitFact{},
		issueFacts:       map[types.DataSource][]model.IssueFact{},
		releaseFacts:     map[types.DataSource][]model.ReleaseFact{},
		profiles:         map[types.DataSource][]model.RepositoryProfile{},
		assessments:      map[types.DataSource][]model.RiskAssessment{},
		cursors:          map[types.DataSource]int64{},
	}
}

func (s *Store) PutRawRepositories(ctx context.Context, ds types.DataSource, rows []model.RawRepository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.seq[ds]++
		row.Seq = s.seq[ds]
		s.rawRepos[ds] = append(s.rawRepos[ds], row)
	}
	return nil
}

func (s *Store) RawRepositories(ctx context.Context, ds types.DataSource) ([]model.RawRepository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.RawRepository(nil), s.rawRepos[ds]...), nil
}

func (s *Store) RawHead(ctx context.Context, ds types.DataSource) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq[ds], nil
}

func (s *Store) PutRawContributors(ctx context.Context, ds types.DataSource, rows []model.RawContributor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawContributors[ds] = append(s.rawContributors[ds], rows...)
	return nil
}

func (s *Store) RawContributors(ctx context.Context, ds types.DataSource) ([]model.RawContributor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.RawContributor(nil), s.rawContributors[ds]...), nil
}

func (s *Store) PutRawCommitActivities(ctx context.Context, ds types.DataSource, rows []model.RawCommitActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawCommits[ds] = append(s.rawCommits[ds], rows...)
	return nil
}

func (s *Store) RawCommitActivities(ctx context.Context, ds types.DataSource) ([]model.RawCommitActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.RawCommitActivity(nil), s.rawCommits[ds]...), nil
}

func (s *Store) PutRawIssueActivities(ctx context.Context, ds types.DataSource, rows []model.RawIssueActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawIssues[ds] = append(s.rawIssues[ds], rows...)
	return nil
}

func (s *Store) RawIssueActivities(ctx context.Context, ds types.DataSource) ([]model.RawIssueActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.RawIssueActivity(nil), s.rawIssues[ds]...), nil
}

func (s *Store) PutRawReleaseActivities(ctx context.Context, ds types.DataSource, rows []model.RawReleaseActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawReleases[ds] = append(s.rawReleases[ds], rows...)
	return nil
}

func (s *Store) RawReleaseActivities(ctx context.Context, ds types.DataSource) ([]model.RawReleaseActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.RawReleaseActivity(nil), s.rawReleases[ds]...), nil
}

func (s *Store) ReplaceStagedRepositories(ctx context.Context, ds types.DataSource, rows []model.StagedRepository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged[ds] = append([]model.StagedRepository(nil), rows...)
	return nil
}

func (s *Store) StagedRepositories(ctx context.Context, ds types.DataSource) ([]model.StagedRepository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.StagedRepository(nil), s.staged[ds]...), nil
}

func (s *Store) ReplaceContributorFacts(ctx context.Context, ds types.DataSource, rows []model.ContributorFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contributorFacts[ds] = append([]model.ContributorFact(nil), rows...)
	return nil
}

func (s *Store) ContributorFacts(ctx context.Context, ds types.DataSource) ([]model.ContributorFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ContributorFact(nil), s.contributorFacts[ds]...), nil
}

func (s *Store) ReplaceCommitFacts(ctx context.Context, ds types.DataSource, rows []model.CommitFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitFacts[ds] = append([]model.CommitFact(nil), rows...)
	return nil
}

func (s *Store) CommitFacts(ctx context.Context, ds types.DataSource) ([]model.CommitFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.CommitFact(nil), s.commitFacts[ds]...), nil
}

func (s *Store) ReplaceIssueFacts(ctx context.Context, ds types.DataSource, rows []model.IssueFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issueFacts[ds] = append([]model.IssueFact(nil), rows...)
	return nil
}

func (s *Store) IssueFacts(ctx context.Context, ds types.DataSource) ([]model.IssueFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.IssueFact(nil), s.issueFacts[ds]...), nil
}

func (s *Store) ReplaceReleaseFacts(ctx context.Context, ds types.DataSource, rows []model.ReleaseFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseFacts[ds] = append([]model.ReleaseFact(nil), rows...)
	return nil
}

func (s *Store) ReleaseFacts(ctx context.Context, ds types.DataSource) ([]model.ReleaseFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ReleaseFact(nil), s.releaseFacts[ds]...), nil
}

func (s *Store) ReplaceProfiles(ctx context.Context, ds types.DataSource, rows []model.RepositoryProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[ds] = append([]model.RepositoryProfile(nil), rows...)
	return nil
}

func (s *Store) Profiles(ctx context.Context, ds types.DataSource) ([]model.RepositoryProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.RepositoryProfile(nil), s.profiles[ds]...), nil
}

func (s *Store) ReplaceAssessments(ctx context.Context, ds types.DataSource, rows []model.RiskAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments[ds] = append([]model.RiskAssessment(nil), rows...)
	return nil
}

func (s *Store) Assessments(ctx context.Context, ds types.DataSource) ([]model.RiskAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.RiskAssessment(nil), s.assessments[ds]...), nil
}

func (s *Store) Cursor(ctx context.Context, ds types.DataSource) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[ds], nil
}

func (s *Store) AdvanceCursor(ctx context.Context, ds types.DataSource, from, to int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursors[ds] != from {
		return goerr.Wrap(types.ErrCursorConflict, "compare-and-advance failed",
			goerr.V("expected", from), goerr.V("actual", s.cursors[ds]))
	}
	s.cursors[ds] = to
	return nil
}

func (s *Store) AppendLogEntry(ctx context.Context, entry *model.PipelineLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, *entry)
	return nil
}

func (s *Store) CloseLogEntry(ctx context.Context, id string, status model.RunStatus, message string, endTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.log {
		if s.log[i].ID == id && s.log[i].EndTime == nil {
			s.log[i].Status = status
			s.log[i].Message = message
			end := endTime
			s.log[i].EndTime = &end
			return nil
		}
	}
	return goerr.Wrap(types.ErrLogEntryNotFound, "cannot close log entry", goerr.V("id", id))
}

func (s *Store) LogEntries(ctx context.Context, ds types.DataSource, limit int) ([]model.PipelineLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PipelineLogEntry, 0, limit)
	for _, e := range s.log {
		if e.DataSource == ds {
			out = append(out, e)
		}
	}
	// newest first
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Close() error {
	return nil
}
