package badger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/m-mizutani/vigil/pkg/domain/types"
	"github.com/m-mizutani/vigil/pkg/infra/badger"
)

func newStore(t *testing.T) *badger.Store {
	t.Helper()
	db, err := badger.New("")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return db
}

func TestAppendAndScan(t *testing.T) {
	ctx := context.Background()
	ds := types.DataSource("test")
	db := newStore(t)

	updated := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	gt.NoError(t, db.PutRawRepositories(ctx, ds, []model.RawRepository{
		{ID: "a", Name: "one", FullName: "x/one", UpdatedAt: &updated},
		{ID: "b", Name: "two", FullName: "x/two"},
	}))
	gt.NoError(t, db.PutRawRepositories(ctx, ds, []model.RawRepository{
		{ID: "c", Name: "three", FullName: "x/three"},
	}))

	rows := gt.R1(db.RawRepositories(ctx, ds)).NoError(t)
	gt.A(t, rows).Length(3)
	gt.Equal(t, rows[0].ID, "a")
	gt.Equal(t, rows[0].Seq, int64(1))
	gt.Equal(t, rows[2].ID, "c")
	gt.Equal(t, rows[2].Seq, int64(3))
	gt.NotNil(t, rows[0].UpdatedAt)
	gt.Equal(t, *rows[0].UpdatedAt, updated)

	gt.Equal(t, gt.R1(db.RawHead(ctx, ds)).NoError(t), int64(3))
	gt.Equal(t, gt.R1(db.RawHead(ctx, "other")).NoError(t), int64(0))
}

func TestFactStreamsAreIndependent(t *testing.T) {
	ctx := context.Background()
	ds := types.DataSource("test")
	db := newStore(t)

	gt.NoError(t, db.PutRawContributors(ctx, ds, []model.RawContributor{
		{RepoFullName: "x/one", Contributor: "alice"},
	}))
	gt.NoError(t, db.PutRawIssueActivities(ctx, ds, []model.RawIssueActivity{
		{Repo: "x/one", OpenIssues: 3},
	}))

	// Contributor appends do not move the repository head
	gt.Equal(t, gt.R1(db.RawHead(ctx, ds)).NoError(t), int64(0))

	gt.A(t, gt.R1(db.RawContributors(ctx, ds)).NoError(t)).Length(1)
	gt.A(t, gt.R1(db.RawIssueActivities(ctx, ds)).NoError(t)).Length(1)
	gt.A(t, gt.R1(db.RawCommitActivities(ctx, ds)).NoError(t)).Length(0)
}

func TestReplaceGenerations(t *testing.T) {
	ctx := context.Background()
	ds := types.DataSource("test")
	db := newStore(t)

	gt.NoError(t, db.ReplaceStagedRepositories(ctx, ds, []model.StagedRepository{
		{FullName: "x/one"}, {FullName: "x/two"}, {FullName: "x/three"},
	}))
	gt.NoError(t, db.ReplaceStagedRepositories(ctx, ds, []model.StagedRepository{
		{FullName: "x/four"},
	}))

	rows := gt.R1(db.StagedRepositories(ctx, ds)).NoError(t)
	gt.A(t, rows).Length(1)
	gt.Equal(t, rows[0].FullName, "x/four")

	// Replacing with an empty set clears the dataset
	gt.NoError(t, db.ReplaceAssessments(ctx, ds, []model.RiskAssessment{
		{FullName: "x/one", RiskScore: 10},
	}))
	gt.NoError(t, db.ReplaceAssessments(ctx, ds, nil))
	gt.A(t, gt.R1(db.Assessments(ctx, ds)).NoError(t)).Length(0)
}

func TestCursor(t *testing.T) {
	ctx := context.Background()
	ds := types.DataSource("test")
	db := newStore(t)

	gt.Equal(t, gt.R1(db.Cursor(ctx, ds)).NoError(t), int64(0))
	gt.NoError(t, db.AdvanceCursor(ctx, ds, 0, 7))
	gt.Equal(t, gt.R1(db.Cursor(ctx, ds)).NoError(t), int64(7))

	err := db.AdvanceCursor(ctx, ds, 3, 9)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, types.ErrCursorConflict))
	gt.Equal(t, gt.R1(db.Cursor(ctx, ds)).NoError(t), int64(7))
}

func TestLogEntries(t *testing.T) {
	ctx := context.Background()
	ds := types.DataSource("test")
	db := newStore(t)
	start := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

	gt.NoError(t, db.AppendLogEntry(ctx, &model.PipelineLogEntry{
		ID: "run-1", DataSource: ds, Stage: model.StageFull,
		Status: model.StatusStarted, StartTime: start,
	}))
	gt.NoError(t, db.AppendLogEntry(ctx, &model.PipelineLogEntry{
		ID: "run-2", DataSource: ds, Stage: model.StageGate,
		Status: model.StatusSkipped, StartTime: start.Add(time.Minute),
	}))

	end := start.Add(10 * time.Second)
	gt.NoError(t, db.CloseLogEntry(ctx, "run-1", model.StatusCompleted, "done", end))

	entries := gt.R1(db.LogEntries(ctx, ds, 10)).NoError(t)
	gt.A(t, entries).Length(2)
	gt.Equal(t, entries[0].ID, "run-2")
	gt.Equal(t, entries[1].ID, "run-1")
	gt.Equal(t, entries[1].Status, model.StatusCompleted)
	gt.NotNil(t, entries[1].EndTime)

	// Already closed
	err := db.CloseLogEntry(ctx, "run-1", model.StatusError, "again", end)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, types.ErrLogEntryNotFound))

	// Unknown ID
	err = db.CloseLogEntry(ctx, "missing", model.StatusError, "nope", end)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, types.ErrLogEntryNotFound))
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	ds := types.DataSource("test")
	dir := t.TempDir()

	db, err := badger.New(dir)
	gt.NoError(t, err)
	gt.NoError(t, db.PutRawRepositories(ctx, ds, []model.RawRepository{
		{ID: "a", Name: "one", FullName: "x/one"},
	}))
	gt.NoError(t, db.AdvanceCursor(ctx, ds, 0, 1))
	gt.NoError(t, db.Close())

	db, err = badger.New(dir)
	gt.NoError(t, err)
	defer db.Close()

	gt.A(t, gt.R1(db.RawRepositories(ctx, ds)).NoError(t)).Length(1)
	gt.Equal(t, gt.R1(db.RawHead(ctx, ds)).NoError(t), int64(1))
	gt.Equal(t, gt.R1(db.Cursor(ctx, ds)).NoError(t), int64(1))
}
