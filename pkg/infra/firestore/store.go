package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/domain/interfaces"
	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/m-mizutani/vigil/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Store is a Database backed by Cloud Firestore, for deployments where the
// pipeline runs on Cloud Run or similar and needs shared state.
//
// Layout: one document per data source under `datasources`, carrying the
// raw sequence counter and the change cursor; datasets are subcollections
// of that document.
type Store struct {
	client *firestore.Client
	root   string
}

var _ interfaces.Database = (*Store)(nil)

// New connects to Firestore. databaseID may be empty for the default
// database.
func New(ctx context.Context, projectID, databaseID string) (*Store, error) {
	var client *firestore.Client
	var err error
	if databaseID == "" {
		client, err = firestore.NewClient(ctx, projectID)
	} else {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseID))
	}
	return &Store{client: client, root: "datasources"}, nil
}

func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close firestore client")
	}
	return nil
}

// sourceDoc is the per-data-source control document.
type sourceDoc struct {
	RawSeq int64 `firestore:"raw_seq"`
	Cursor int64 `firestore:"cursor"`
}

func (s *Store) sourceRef(ds types.DataSource) *firestore.DocumentRef {
	return s.client.Collection(s.root).Doc(string(ds))
}

func (s *Store) dataset(ds types.DataSource, name string) *firestore.CollectionRef {
	return s.sourceRef(ds).Collection(name)
}

// reserveSeqs atomically reserves n raw sequence numbers and returns the
// first one.
func (s *Store) reserveSeqs(ctx context.Context, ds types.DataSource, n int64) (int64, error) {
	var first int64
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var doc sourceDoc
		snap, err := tx.Get(s.sourceRef(ds))
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if snap != nil && snap.Exists() {
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
		}
		first = doc.RawSeq + 1
		doc.RawSeq += n
		return tx.Set(s.sourceRef(ds), map[string]any{"raw_seq": doc.RawSeq}, firestore.MergeAll)
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to reserve raw sequence numbers", goerr.V("data_source", ds))
	}
	return first, nil
}

func (s *Store) appendDocs(ctx context.Context, col *firestore.CollectionRef, rows []any) error {
	bw := s.client.BulkWriter(ctx)
	for _, row := range rows {
		if _, err := bw.Create(col.NewDoc(), row); err != nil {
			bw.End()
			return err
		}
	}
	bw.End()
	return nil
}

// clearCollection deletes every document in the collection.
func (s *Store) clearCollection(ctx context.Context, col *firestore.CollectionRef) error {
	bw := s.client.BulkWriter(ctx)
	iter := col.Select().Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bw.End()
			return err
		}
		if _, err := bw.Delete(snap.Ref); err != nil {
			bw.End()
			return err
		}
	}
	bw.End()
	return nil
}

func scanDocs[T any](ctx context.Context, col *firestore.CollectionRef) ([]T, error) {
	var out []T
	iter := col.Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		var row T
		if err := snap.DataTo(&row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func replaceDocs[T any](ctx context.Context, s *Store, ds types.DataSource, name string, rows []T) error {
	col := s.dataset(ds, name)
	if err := s.clearCollection(ctx, col); err != nil {
		return goerr.Wrap(err, "failed to clear dataset", goerr.V("dataset", name), goerr.V("data_source", ds))
	}
	anyRows := make([]any, len(rows))
	for i := range rows {
		anyRows[i] = &rows[i]
	}
	if err := s.appendDocs(ctx, col, anyRows); err != nil {
		return goerr.Wrap(err, "failed to write dataset", goerr.V("dataset", name), goerr.V("data_source", ds))
	}
	return nil
}

func (s *Store) PutRawRepositories(ctx context.Context, ds types.DataSource, rows []model.RawRepository) error {
	if len(rows) == 0 {
		return nil
	}
	first, err := s.reserveSeqs(ctx, ds, int64(len(rows)))
	if err != nil {
		return err
	}
	anyRows := make([]any, len(rows))
	for i := range rows {
		rows[i].Seq = first + int64(i)
		anyRows[i] = &rows[i]
	}
	if err := s.appendDocs(ctx, s.dataset(ds, "raw_repositories"), anyRows); err != nil {
		return goerr.Wrap(err, "failed to append raw repositories", goerr.V("data_source", ds))
	}
	return nil
}

func (s *Store) RawRepositories(ctx context.Context, ds types.DataSource) ([]model.RawRepository, error) {
	rows, err := scanDocs[model.RawRepository](ctx, s.dataset(ds, "raw_repositories"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to scan raw repositories", goerr.V("data_source", ds))
	}
	return rows, nil
}

func (s *Store) RawHead(ctx context.Context, ds types.DataSource) (int64, error) {
	snap, err := s.sourceRef(ds).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return 0, nil
	}
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read control document", goerr.V("data_source", ds))
	}
	var doc sourceDoc
	if err := snap.DataTo(&doc); err != nil {
		return 0, goerr.Wrap(err, "failed to decode control document", goerr.V("data_source", ds))
	}
	return doc.RawSeq, nil
}

func appendFacts[T any](ctx context.Context, s *Store, ds types.DataSource, name string, rows []T) error {
	anyRows := make([]any, len(rows))
	for i := range rows {
		anyRows[i] = &rows[i]
	}
	if err := s.appendDocs(ctx, s.dataset(ds, name), anyRows); err != nil {
		return goerr.Wrap(err, "failed to append rows", goerr.V("dataset", name), goerr.V("data_source", ds))
	}
	return nil
}

func (s *Store) PutRawContributors(ctx context.Context, ds types.DataSource, rows []model.RawContributor) error {
	return appendFacts(ctx, s, ds, "raw_contributors", rows)
}

func (s *Store) RawContributors(ctx context.Context, ds types.DataSource) ([]model.RawContributor, error) {
	return scanDocs[model.RawContributor](ctx, s.dataset(ds, "raw_contributors"))
}

func (s *Store) PutRawCommitActivities(ctx context.Context, ds types.DataSource, rows []model.RawCommitActivity) error {
	return appendFacts(ctx, s, ds, "raw_commits", rows)
}

func (s *Store) RawCommitActivities(ctx context.Context, ds types.DataSource) ([]model.RawCommitActivity, error) {
	return scanDocs[model.RawCommitActivity](ctx, s.dataset(ds, "raw_commits"))
}

func (s *Store) PutRawIssueActivities(ctx context.Context, ds types.DataSource, rows []model.RawIssueActivity) error {
	return appendFacts(ctx, s, ds, "raw_issues", rows)
}

func (s *Store) RawIssueActivities(ctx context.Context, ds types.DataSource) ([]model.RawIssueActivity, error) {
	return scanDocs[model.RawIssueActivity](ctx, s.dataset(ds, "raw_issues"))
}

func (s *Store) PutRawReleaseActivities(ctx context.Context, ds types.DataSource, rows []model.RawReleaseActivity) error {
	return appendFacts(ctx, s, ds, "raw_releases", rows)
}

func (s *Store) RawReleaseActivities(ctx context.Context, ds types.DataSource) ([]model.RawReleaseActivity, error) {
	return scanDocs[model.RawReleaseActivity](ctx, s.dataset(ds, "raw_releases"))
}

func (s *Store) ReplaceStagedRepositories(ctx context.Context, ds types.DataSource, rows []model.StagedRepository) error {
	return replaceDocs(ctx, s, ds, "staged_repositories", rows)
}

func (s *Store) StagedRepositories(ctx context.Context, ds types.DataSource) ([]model.StagedRepository, error) {
	return scanDocs[model.StagedRepository](ctx, s.dataset(ds, "staged_repositories"))
}

func (s *Store) ReplaceContributorFacts(ctx context.Context, ds types.DataSource, rows []model.ContributorFact) error {
	return replaceDocs(ctx, s, ds, "contributor_facts", rows)
}

func (s *Store) ContributorFacts(ctx context.Context, ds types.DataSource) ([]model.ContributorFact, error) {
	return scanDocs[model.ContributorFact](ctx, s.dataset(ds, "contributor_facts"))
}

func (s *Store) ReplaceCommitFacts(ctx context.Context, ds types.DataSource, rows []model.CommitFact) error {
	return replaceDocs(ctx, s, ds, "commit_facts", rows)
}

func (s *Store) CommitFacts(ctx context.Context, ds types.DataSource) ([]model.CommitFact, error) {
	return scanDocs[model.CommitFact](ctx, s.dataset(ds, "commit_facts"))
}

func (s *Store) ReplaceIssueFacts(ctx context.Context, ds types.DataSource, rows []model.IssueFact) error {
	return replaceDocs(ctx, s, ds, "issue_facts", rows)
}

func (s *Store) IssueFacts(ctx context.Context, ds types.DataSource) ([]model.IssueFact, error) {
	return scanDocs[model.IssueFact](ctx, s.dataset(ds, "issue_facts"))
}

func (s *Store) ReplaceReleaseFacts(ctx context.Context, ds types.DataSource, rows []model.ReleaseFact) error {
	return replaceDocs(ctx, s, ds, "release_facts", rows)
}

func (s *Store) ReleaseFacts(ctx context.Context, ds types.DataSource) ([]model.ReleaseFact, error) {
	return scanDocs[model.ReleaseFact](ctx, s.dataset(ds, "release_facts"))
}

func (s *Store) ReplaceProfiles(ctx context.Context, ds types.DataSource, rows []model.RepositoryProfile) error {
	return replaceDocs(ctx, s, ds, "profiles", rows)
}

func (s *Store) Profiles(ctx context.Context, ds types.DataSource) ([]model.RepositoryProfile, error) {
	return scanDocs[model.RepositoryProfile](ctx, s.dataset(ds, "profiles"))
}

func (s *Store) ReplaceAssessments(ctx context.Context, ds types.DataSource, rows []model.RiskAssessment) error {
	return replaceDocs(ctx, s, ds, "assessments", rows)
}

func (s *Store) Assessments(ctx context.Context, ds types.DataSource) ([]model.RiskAssessment, error) {
	return scanDocs[model.RiskAssessment](ctx, s.dataset(ds, "assessments"))
}

func (s *Store) Cursor(ctx context.Context, ds types.DataSource) (int64, error) {
	snap, err := s.sourceRef(ds).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return 0, nil
	}
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read control document", goerr.V("data_source", ds))
	}
	var doc sourceDoc
	if err := snap.DataTo(&doc); err != nil {
		return 0, goerr.Wrap(err, "failed to decode control document", goerr.V("data_source", ds))
	}
	return doc.Cursor, nil
}

func (s *Store) AdvanceCursor(ctx context.Context, ds types.DataSource, from, to int64) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var doc sourceDoc
		snap, err := tx.Get(s.sourceRef(ds))
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if snap != nil && snap.Exists() {
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
		}
		if doc.Cursor != from {
			return goerr.Wrap(types.ErrCursorConflict, "compare-and-advance failed",
				goerr.V("expected", from), goerr.V("actual", doc.Cursor))
		}
		return tx.Set(s.sourceRef(ds), map[string]any{"cursor": to}, firestore.MergeAll)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to advance cursor",
			goerr.V("data_source", ds), goerr.V("from", from), goerr.V("to", to))
	}
	return nil
}

func (s *Store) AppendLogEntry(ctx context.Context, entry *model.PipelineLogEntry) error {
	if _, err := s.dataset(entry.DataSource, "pipeline_log").Doc(entry.ID).Create(ctx, entry); err != nil {
		return goerr.Wrap(err, "failed to append log entry", goerr.V("id", entry.ID))
	}
	return nil
}

func (s *Store) CloseLogEntry(ctx context.Context, id string, st model.RunStatus, message string, endTime time.Time) error {
	// The entry's data source is not part of the call; scan partitions via
	// a collection group query keyed by document ID.
	iter := s.client.CollectionGroup("pipeline_log").Where("ID", "==", id).Documents(ctx)
	defer iter.Stop()
	snap, err := iter.Next()
	if err == iterator.Done {
		return goerr.Wrap(types.ErrLogEntryNotFound, "cannot close log entry", goerr.V("id", id))
	}
	if err != nil {
		return goerr.Wrap(err, "failed to find log entry", goerr.V("id", id))
	}

	var entry model.PipelineLogEntry
	if err := snap.DataTo(&entry); err != nil {
		return goerr.Wrap(err, "failed to decode log entry", goerr.V("id", id))
	}
	if entry.EndTime != nil {
		return goerr.Wrap(types.ErrLogEntryNotFound, "log entry already closed", goerr.V("id", id))
	}

	entry.Status = st
	entry.Message = message
	entry.EndTime = &endTime
	if _, err := snap.Ref.Set(ctx, &entry); err != nil {
		return goerr.Wrap(err, "failed to close log entry", goerr.V("id", id))
	}
	return nil
}

func (s *Store) LogEntries(ctx context.Context, ds types.DataSource, limit int) ([]model.PipelineLogEntry, error) {
	q := s.dataset(ds, "pipeline_log").OrderBy("StartTime", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	var out []model.PipelineLogEntry
	iter := q.Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan pipeline log", goerr.V("data_source", ds))
		}
		var entry model.PipelineLogEntry
		if err := snap.DataTo(&entry); err != nil {
			return nil, goerr.Wrap(err, "failed to decode log entry")
		}
		out = append(out, entry)
	}
	return out, nil
}
