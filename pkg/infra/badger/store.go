package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/domain/interfaces"
	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/m-mizutani/vigil/pkg/domain/types"
)

// Store is a Database backed by an embedded badger key-value store. It is
// the persistence option for single-node deployments: no external service,
// still durable across restarts.
//
// Key layout (all JSON values):
//
//	seq/<dataset>/<ds>          counter for append-only datasets
//	raw/<dataset>/<ds>/<n>      raw records in arrival order
//	gen/<dataset>/<ds>/<n>      replaceable generation datasets
//	cursor/<ds>                 change-capture cursor (8 byte BE)
//	log/<ds>/<n>                pipeline log entries
//	logidx/<id>                 log entry ID -> primary key
type Store struct {
	db *badgerdb.DB
}

var _ interfaces.Database = (*Store)(nil)

// New opens (or creates) a badger store at dir. An empty dir opens an
// in-memory instance, used by tests.
func New(dir string) (*Store, error) {
	var opts badgerdb.Options
	if dir == "" {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badgerdb.DefaultOptions(dir)
	}
	opts = opts.WithLogger(nil)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open badger store", goerr.V("dir", dir))
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return goerr.Wrap(err, "failed to close badger store")
	}
	return nil
}

func seqKey(dataset string, ds types.DataSource) []byte {
	return fmt.Appendf(nil, "seq/%s/%s", dataset, ds)
}

func rawKey(dataset string, ds types.DataSource, n uint64) []byte {
	return fmt.Appendf(nil, "raw/%s/%s/%020d", dataset, ds, n)
}

func rawPrefix(dataset string, ds types.DataSource) []byte {
	return fmt.Appendf(nil, "raw/%s/%s/", dataset, ds)
}

func genPrefix(dataset string, ds types.DataSource) []byte {
	return fmt.Appendf(nil, "gen/%s/%s/", dataset, ds)
}

func cursorKey(ds types.DataSource) []byte {
	return fmt.Appendf(nil, "cursor/%s", ds)
}

func logKey(ds types.DataSource, n uint64) []byte {
	return fmt.Appendf(nil, "log/%s/%020d", ds, n)
}

func logPrefix(ds types.DataSource) []byte {
	return fmt.Appendf(nil, "log/%s/", ds)
}

func logIdxKey(id string) []byte {
	return fmt.Appendf(nil, "logidx/%s", id)
}

// nextSeq bumps the counter at key inside txn and returns the new value.
func nextSeq(txn *badgerdb.Txn, key []byte) (uint64, error) {
	var n uint64
	item, err := txn.Get(key)
	switch err {
	case nil:
		if err := item.Value(func(v []byte) error {
			n = binary.BigEndian.Uint64(v)
			return nil
		}); err != nil {
			return 0, err
		}
	case badgerdb.ErrKeyNotFound:
		// first record
	default:
		return 0, err
	}

	n++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	if err := txn.Set(key, buf); err != nil {
		return 0, err
	}
	return n, nil
}

func readSeq(txn *badgerdb.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	switch err {
	case nil:
	case badgerdb.ErrKeyNotFound:
		return 0, nil
	default:
		return 0, err
	}
	var n uint64
	if err := item.Value(func(v []byte) error {
		n = binary.BigEndian.Uint64(v)
		return nil
	}); err != nil {
		return 0, err
	}
	return n, nil
}

// appendRows appends JSON-encoded rows under the dataset's raw prefix.
func appendRows[T any](s *Store, dataset string, ds types.DataSource, rows []T, stamp func(*T, uint64)) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		for i := range rows {
			n, err := nextSeq(txn, seqKey(dataset, ds))
			if err != nil {
				return err
			}
			if stamp != nil {
				stamp(&rows[i], n)
			}
			raw, err := json.Marshal(rows[i])
			if err != nil {
				return err
			}
			if err := txn.Set(rawKey(dataset, ds, n), raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return goerr.Wrap(err, "failed to append rows", goerr.V("dataset", dataset), goerr.V("data_source", ds))
	}
	return nil
}

// scanRows decodes every row under prefix, in key order.
func scanRows[T any](s *Store, prefix []byte) ([]T, error) {
	var out []T
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var row T
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &row)
			}); err != nil {
				return err
			}
			out = append(out, row)
		}
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to scan rows", goerr.V("prefix", string(prefix)))
	}
	return out, nil
}

// replaceRows swaps the whole generation dataset under prefix in one
// transaction.
func replaceRows[T any](s *Store, dataset string, ds types.DataSource, rows []T) error {
	prefix := genPrefix(dataset, ds)
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		for i, row := range rows {
			raw, err := json.Marshal(row)
			if err != nil {
				return err
			}
			key := fmt.Appendf(nil, "%s%020d", prefix, uint64(i+1))
			if err := txn.Set(key, raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return goerr.Wrap(err, "failed to replace dataset", goerr.V("dataset", dataset), goerr.V("data_source", ds))
	}
	return nil
}

func (s *Store) PutRawRepositories(ctx context.Context, ds types.DataSource, rows []model.RawRepository) error {
	return appendRows(s, "repositories", ds, rows, func(r *model.RawRepository, n uint64) {
		r.Seq = int64(n)
	})
}

func (s *Store) RawRepositories(ctx context.Context, ds types.DataSource) ([]model.RawRepository, error) {
	return scanRows[model.RawRepository](s, rawPrefix("repositories", ds))
}

func (s *Store) RawHead(ctx context.Context, ds types.DataSource) (int64, error) {
	var head uint64
	err := s.db.View(func(txn *badgerdb.Txn) error {
		n, err := readSeq(txn, seqKey("repositories", ds))
		if err != nil {
			return err
		}
		head = n
		return nil
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read raw head", goerr.V("data_source", ds))
	}
	return int64(head), nil
}

func (s *Store) PutRawContributors(ctx context.Context, ds types.DataSource, rows []model.RawContributor) error {
	return appendRows(s, "contributors", ds, rows, nil)
}

func (s *Store) RawContributors(ctx context.Context, ds types.DataSource) ([]model.RawContributor, error) {
	return scanRows[model.RawContributor](s, rawPrefix("contributors", ds))
}

func (s *Store) PutRawCommitActivities(ctx context.Context, ds types.DataSource, rows []model.RawCommitActivity) error {
	return appendRows(s, "commits", ds, rows, nil)
}

func (s *Store) RawCommitActivities(ctx context.Context, ds types.DataSource) ([]model.RawCommitActivity, error) {
	return scanRows[model.RawCommitActivity](s, rawPrefix("commits", ds))
}

func (s *Store) PutRawIssueActivities(ctx context.Context, ds types.DataSource, rows []model.RawIssueActivity) error {
	return appendRows(s, "issues", ds, rows, nil)
}

func (s *Store) RawIssueActivities(ctx context.Context, ds types.DataSource) ([]model.RawIssueActivity, error) {
	return scanRows[model.RawIssueActivity](s, rawPrefix("issues", ds))
}

func (s *Store) PutRawReleaseActivities(ctx context.Context, ds types.DataSource, rows []model.RawReleaseActivity) error {
	return appendRows(s, "releases", ds, rows, nil)
}

func (s *Store) RawReleaseActivities(ctx context.Context, ds types.DataSource) ([]model.RawReleaseActivity, error) {
	return scanRows[model.RawReleaseActivity](s, rawPrefix("releases", ds))
}

func (s *Store) ReplaceStagedRepositories(ctx context.Context, ds types.DataSource, rows []model.StagedRepository) error {
	return replaceRows(s, "staged", ds, rows)
}

func (s *Store) StagedRepositories(ctx context.Context, ds types.DataSource) ([]model.StagedRepository, error) {
	return scanRows[model.StagedRepository](s, genPrefix("staged", ds))
}

func (s *Store) ReplaceContributorFacts(ctx context.Context, ds types.DataSource, rows []model.ContributorFact) error {
	return replaceRows(s, "contributor_facts", ds, rows)
}

func (s *Store) ContributorFacts(ctx context.Context, ds types.DataSource) ([]model.ContributorFact, error) {
	return scanRows[model.ContributorFact](s, genPrefix("contributor_facts", ds))
}

func (s *Store) ReplaceCommitFacts(ctx context.Context, ds types.DataSource, rows []model.CommitFact) error {
	return replaceRows(s, "commit_facts", ds, rows)
}

func (s *Store) CommitFacts(ctx context.Context, ds types.DataSource) ([]model.CommitFact, error) {
	return scanRows[model.CommitFact](s, genPrefix("commit_facts", ds))
}

func (s *Store) ReplaceIssueFacts(ctx context.Context, ds types.DataSource, rows []model.IssueFact) error {
	return replaceRows(s, "issue_facts", ds, rows)
}

func (s *Store) IssueFacts(ctx context.Context, ds types.DataSource) ([]model.IssueFact, error) {
	return scanRows[model.IssueFact](s, genPrefix("issue_facts", ds))
}

func (s *Store) ReplaceReleaseFacts(ctx context.Context, ds types.DataSource, rows []model.ReleaseFact) error {
	return replaceRows(s, "release_facts", ds, rows)
}

func (s *Store) ReleaseFacts(ctx context.Context, ds types.DataSource) ([]model.ReleaseFact, error) {
	return scanRows[model.ReleaseFact](s, genPrefix("release_facts", ds))
}

func (s *Store) ReplaceProfiles(ctx context.Context, ds types.DataSource, rows []model.RepositoryProfile) error {
	return replaceRows(s, "profiles", ds, rows)
}

func (s *Store) Profiles(ctx context.Context, ds types.DataSource) ([]model.RepositoryProfile, error) {
	return scanRows[model.RepositoryProfile](s, genPrefix("profiles", ds))
}

func (s *Store) ReplaceAssessments(ctx context.Context, ds types.DataSource, rows []model.RiskAssessment) error {
	return replaceRows(s, "assessments", ds, rows)
}

func (s *Store) Assessments(ctx context.Context, ds types.DataSource) ([]model.RiskAssessment, error) {
	return scanRows[model.RiskAssessment](s, genPrefix("assessments", ds))
}

func (s *Store) Cursor(ctx context.Context, ds types.DataSource) (int64, error) {
	var cur uint64
	err := s.db.View(func(txn *badgerdb.Txn) error {
		n, err := readSeq(txn, cursorKey(ds))
		if err != nil {
			return err
		}
		cur = n
		return nil
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read cursor", goerr.V("data_source", ds))
	}
	return int64(cur), nil
}

func (s *Store) AdvanceCursor(ctx context.Context, ds types.DataSource, from, to int64) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		cur, err := readSeq(txn, cursorKey(ds))
		if err != nil {
			return err
		}
		if int64(cur) != from {
			return goerr.Wrap(types.ErrCursorConflict, "compare-and-advance failed",
				goerr.V("expected", from), goerr.V("actual", cur))
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(to))
		return txn.Set(cursorKey(ds), buf)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to advance cursor",
			goerr.V("data_source", ds), goerr.V("from", from), goerr.V("to", to))
	}
	return nil
}

func (s *Store) AppendLogEntry(ctx context.Context, entry *model.PipelineLogEntry) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		n, err := nextSeq(txn, seqKey("log", entry.DataSource))
		if err != nil {
			return err
		}
		key := logKey(entry.DataSource, n)
		raw, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := txn.Set(key, raw); err != nil {
			return err
		}
		return txn.Set(logIdxKey(entry.ID), key)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to append log entry", goerr.V("id", entry.ID))
	}
	return nil
}

func (s *Store) CloseLogEntry(ctx context.Context, id string, status model.RunStatus, message string, endTime time.Time) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(logIdxKey(id))
		if err == badgerdb.ErrKeyNotFound {
			return types.ErrLogEntryNotFound
		}
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		item, err = txn.Get(key)
		if err != nil {
			return err
		}
		var entry model.PipelineLogEntry
		if err := item.Value(func(v []byte) error {
			return json.Unmarshal(v, &entry)
		}); err != nil {
			return err
		}
		if entry.EndTime != nil {
			return types.ErrLogEntryNotFound
		}

		entry.Status = status
		entry.Message = message
		entry.EndTime = &endTime
		raw, err := json.Marshal(&entry)
		if err != nil {
			return err
		}
		return txn.Set(key, raw)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to close log entry", goerr.V("id", id))
	}
	return nil
}

func (s *Store) LogEntries(ctx context.Context, ds types.DataSource, limit int) ([]model.PipelineLogEntry, error) {
	entries, err := scanRows[model.PipelineLogEntry](s, logPrefix(ds))
	if err != nil {
		return nil, err
	}
	// key order is append order; newest first for the caller
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
