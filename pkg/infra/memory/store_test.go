package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/m-mizutani/vigil/pkg/domain/types"
	"github.com/m-mizutani/vigil/pkg/infra/memory"
)

func TestSeqAssignment(t *testing.T) {
	ctx := context.Background()
	ds := types.DataSource("test")
	db := memory.New()

	gt.NoError(t, db.PutRawRepositories(ctx, ds, []model.RawRepository{
		{ID: "a"}, {ID: "b"},
	}))
	gt.NoError(t, db.PutRawRepositories(ctx, ds, []model.RawRepository{
		{ID: "c"},
	}))

	rows := gt.R1(db.RawRepositories(ctx, ds)).NoError(t)
	gt.A(t, rows).Length(3)
	gt.Equal(t, rows[0].Seq, int64(1))
	gt.Equal(t, rows[1].Seq, int64(2))
	gt.Equal(t, rows[2].Seq, int64(3))

	head := gt.R1(db.RawHead(ctx, ds)).NoError(t)
	gt.Equal(t, head, int64(3))

	// Sequences are per data source
	other := types.DataSource("other")
	gt.NoError(t, db.PutRawRepositories(ctx, other, []model.RawRepository{{ID: "x"}}))
	gt.Equal(t, gt.R1(db.RawHead(ctx, other)).NoError(t), int64(1))
	gt.Equal(t, gt.R1(db.RawHead(ctx, ds)).NoError(t), int64(3))
}

func TestCursorCompareAndAdvance(t *testing.T) {
	ctx := context.Background()
	ds := types.DataSource("test")
	db := memory.New()

	gt.Equal(t, gt.R1(db.Cursor(ctx, ds)).NoError(t), int64(0))
	gt.NoError(t, db.AdvanceCursor(ctx, ds, 0, 5))
	gt.Equal(t, gt.R1(db.Cursor(ctx, ds)).NoError(t), int64(5))

	// Stale expectation is rejected and leaves the cursor alone
	err := db.AdvanceCursor(ctx, ds, 0, 9)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, types.ErrCursorConflict))
	gt.Equal(t, gt.R1(db.Cursor(ctx, ds)).NoError(t), int64(5))

	gt.NoError(t, db.AdvanceCursor(ctx, ds, 5, 9))
	gt.Equal(t, gt.R1(db.Cursor(ctx, ds)).NoError(t), int64(9))
}

func TestReplaceIsGenerational(t *testing.T) {
	ctx := context.Background()
	ds := types.DataSource("test")
	db := memory.New()

	gt.NoError(t, db.ReplaceStagedRepositories(ctx, ds, []model.StagedRepository{
		{FullName: "a/one"}, {FullName: "a/two"},
	}))
	gt.NoError(t, db.ReplaceStagedRepositories(ctx, ds, []model.StagedRepository{
		{FullName: "a/three"},
	}))

	rows := gt.R1(db.StagedRepositories(ctx, ds)).NoError(t)
	gt.A(t, rows).Length(1)
	gt.Equal(t, rows[0].FullName, "a/three")
}

func TestReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	ds := types.DataSource("test")
	db := memory.New()

	gt.NoError(t, db.ReplaceStagedRepositories(ctx, ds, []model.StagedRepository{
		{FullName: "a/one"},
	}))

	rows := gt.R1(db.StagedRepositories(ctx, ds)).NoError(t)
	rows[0].FullName = "mutated"

	again := gt.R1(db.StagedRepositories(ctx, ds)).NoError(t)
	gt.Equal(t, again[0].FullName, "a/one")
}

func TestLogEntryLifecycle(t *testing.T) {
	ctx := context.Background()
	ds := types.DataSource("test")
	db := memory.New()
	start := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

	gt.NoError(t, db.AppendLogEntry(ctx, &model.PipelineLogEntry{
		ID:         "run-1",
		DataSource: ds,
		Stage:      model.StageFull,
		Status:     model.StatusStarted,
		StartTime:  start,
	}))
	gt.NoError(t, db.AppendLogEntry(ctx, &model.PipelineLogEntry{
		ID:         "run-2",
		DataSource: ds,
		Stage:      model.StageGate,
		Status:     model.StatusSkipped,
		StartTime:  start.Add(time.Minute),
	}))

	end := start.Add(30 * time.Second)
	gt.NoError(t, db.CloseLogEntry(ctx, "run-1", model.StatusCompleted, "done", end))

	entries := gt.R1(db.LogEntries(ctx, ds, 10)).NoError(t)
	gt.A(t, entries).Length(2)

	// Newest first
	gt.Equal(t, entries[0].ID, "run-2")
	gt.Equal(t, entries[1].ID, "run-1")
	gt.Equal(t, entries[1].Status, model.StatusCompleted)
	gt.Equal(t, entries[1].Message, "done")
	gt.NotNil(t, entries[1].EndTime)
	gt.Equal(t, *entries[1].EndTime, end)

	// Closing twice fails: the entry is no longer open
	err := db.CloseLogEntry(ctx, "run-1", model.StatusError, "again", end)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, types.ErrLogEntryNotFound))

	// Limit applies after ordering
	limited := gt.R1(db.LogEntries(ctx, ds, 1)).NoError(t)
	gt.A(t, limited).Length(1)
	gt.Equal(t, limited[0].ID, "run-2")
}

func TestLogEntriesFilterByDataSource(t *testing.T) {
	ctx := context.Background()
	db := memory.New()

	gt.NoError(t, db.AppendLogEntry(ctx, &model.PipelineLogEntry{
		ID: "a", DataSource: "one", StartTime: time.Now(),
	}))
	gt.NoError(t, db.AppendLogEntry(ctx, &model.PipelineLogEntry{
		ID: "b", DataSource: "two", StartTime: time.Now(),
	}))

	entries := gt.R1(db.LogEntries(ctx, "one", 10)).NoError(t)
	gt.A(t, entries).Length(1)
	gt.Equal(t, entries[0].ID, "a")
}
