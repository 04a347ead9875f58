package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/m-mizutani/vigil/pkg/domain/types"
	"github.com/m-mizutani/vigil/pkg/infra/memory"
	"github.com/m-mizutani/vigil/pkg/usecase"
)

var testNow = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func timeAt(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestStagingValidationPriority(t *testing.T) {
	created := timeAt("2023-01-01T00:00:00Z")
	updated := timeAt("2024-01-01T00:00:00Z")

	base := func() model.RawRepository {
		return model.RawRepository{
			ID:        "id-1",
			Name:      "repo",
			FullName:  "acme/repo",
			Owner:     "acme",
			Language:  "Go",
			Stars:     10,
			Forks:     2,
			HTMLURL:   "https://github.com/acme/repo",
			CreatedAt: created,
			UpdatedAt: updated,
		}
	}

	tests := []struct {
		name   string
		mutate func(*model.RawRepository)
		valid  bool
		reason model.InvalidReason
	}{
		{
			name:   "all fields present",
			mutate: func(r *model.RawRepository) {},
			valid:  true,
			reason: model.ReasonValid,
		},
		{
			name:   "missing id",
			mutate: func(r *model.RawRepository) { r.ID = "  " },
			reason: model.ReasonMissingID,
		},
		{
			name:   "missing name",
			mutate: func(r *model.RawRepository) { r.Name = "" },
			reason: model.ReasonMissingName,
		},
		{
			name:   "missing full name",
			mutate: func(r *model.RawRepository) { r.FullName = "" },
			reason: model.ReasonMissingFullName,
		},
		{
			name:   "negative stars",
			mutate: func(r *model.RawRepository) { r.Stars = -1 },
			reason: model.ReasonNegativeStars,
		},
		{
			name:   "negative forks",
			mutate: func(r *model.RawRepository) { r.Forks = -5 },
			reason: model.ReasonNegativeForks,
		},
		{
			name: "missing id wins over negative stars",
			mutate: func(r *model.RawRepository) {
				r.ID = ""
				r.Stars = -1
			},
			reason: model.ReasonMissingID,
		},
		{
			name: "missing name wins over negative forks",
			mutate: func(r *model.RawRepository) {
				r.Name = ""
				r.Forks = -1
			},
			reason: model.ReasonMissingName,
		},
		{
			name: "negative stars wins over negative forks",
			mutate: func(r *model.RawRepository) {
				r.Stars = -1
				r.Forks = -1
			},
			reason: model.ReasonNegativeStars,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			ds := types.DataSource("test")
			db := memory.New()

			raw := base()
			tt.mutate(&raw)
			gt.NoError(t, db.PutRawRepositories(ctx, ds, []model.RawRepository{raw}))

			uc := usecase.NewStaging(db, usecase.WithStagingClock(fixedClock))
			result := gt.R1(uc.Run(ctx, ds)).NoError(t)

			gt.Equal(t, result.Total, 1)
			staged := gt.R1(db.StagedRepositories(ctx, ds)).NoError(t)
			gt.A(t, staged).Length(1)
			gt.Equal(t, staged[0].Valid, tt.valid)
			gt.Equal(t, staged[0].InvalidReason, tt.reason)
			if tt.valid {
				gt.Equal(t, result.Valid, 1)
			} else {
				gt.Equal(t, result.Invalid, 1)
			}
		})
	}
}

func TestStagingDefaulting(t *testing.T) {
	ctx := context.Background()
	ds := types.DataSource("test")

	t.Run("empty fields get placeholders", func(t *testing.T) {
		db := memory.New()
		gt.NoError(t, db.PutRawRepositories(ctx, ds, []model.RawRepository{
			{ID: "id-1", Stars: -3, Forks: -1},
		}))

		uc := usecase.NewStaging(db, usecase.WithStagingClock(fixedClock))
		gt.R1(uc.Run(ctx, ds)).NoError(t)

		staged := gt.R1(db.StagedRepositories(ctx, ds)).NoError(t)
		gt.A(t, staged).Length(1)
		r := staged[0]
		gt.Equal(t, r.Name, "UNKNOWN")
		gt.Equal(t, r.FullName, "UNKNOWN/UNKNOWN")
		gt.Equal(t, r.Owner, "UNKNOWN")
		gt.Equal(t, r.Language, "Unknown")
		gt.Equal(t, r.HTMLURL, "https://github.com/UNKNOWN")
		gt.Equal(t, r.Stars, 0)
		gt.Equal(t, r.Forks, 0)
		gt.False(t, r.Valid)
	})

	t.Run("missing created_at is one year before now", func(t *testing.T) {
		db := memory.New()
		gt.NoError(t, db.PutRawRepositories(ctx, ds, []model.RawRepository{
			{ID: "id-1", Name: "r", FullName: "a/r"},
		}))

		uc := usecase.NewStaging(db, usecase.WithStagingClock(fixedClock))
		gt.R1(uc.Run(ctx, ds)).NoError(t)

		staged := gt.R1(db.StagedRepositories(ctx, ds)).NoError(t)
		gt.Equal(t, staged[0].CreatedAt, testNow.AddDate(0, 0, -365))
		gt.Equal(t, staged[0].UpdatedAt, testNow)
	})

	t.Run("missing updated_at falls back to created_at", func(t *testing.T) {
		db := memory.New()
		created := timeAt("2023-03-01T00:00:00Z")
		gt.NoError(t, db.PutRawRepositories(ctx, ds, []model.RawRepository{
			{ID: "id-1", Name: "r", FullName: "a/r", CreatedAt: created},
		}))

		uc := usecase.NewStaging(db, usecase.WithStagingClock(fixedClock))
		gt.R1(uc.Run(ctx, ds)).NoError(t)

		staged := gt.R1(db.StagedRepositories(ctx, ds)).NoError(t)
		gt.Equal(t, staged[0].CreatedAt, *created)
		gt.Equal(t, staged[0].UpdatedAt, *created)
	})
}

func TestStagingDedup(t *testing.T) {
	ctx := context.Background()
	ds := types.DataSource("test")

	t.Run("keeps the most recently updated row", func(t *testing.T) {
		db := memory.New()
		gt.NoError(t, db.PutRawRepositories(ctx, ds, []model.RawRepository{
			{ID: "old", Name: "r", FullName: "a/r", UpdatedAt: timeAt("2024-01-01T00:00:00Z")},
			{ID: "new", Name: "r", FullName: " a/r ", UpdatedAt: timeAt("2024-05-01T00:00:00Z")},
			{ID: "mid", Name: "r", FullName: "a/r", UpdatedAt: timeAt("2024-03-01T00:00:00Z")},
		}))

		uc := usecase.NewStaging(db, usecase.WithStagingClock(fixedClock))
		result := gt.R1(uc.Run(ctx, ds)).NoError(t)

		gt.Equal(t, result.Total, 3)
		gt.Equal(t, result.Valid, 3)
		gt.Equal(t, result.DuplicatesRemoved, 2)
		gt.Equal(t, result.Loaded, 1)

		staged := gt.R1(db.StagedRepositories(ctx, ds)).NoError(t)
		gt.A(t, staged).Length(1)
		gt.Equal(t, staged[0].ID, "new")
	})

	t.Run("ties keep the first arrival", func(t *testing.T) {
		db := memory.New()
		same := timeAt("2024-04-01T00:00:00Z")
		gt.NoError(t, db.PutRawRepositories(ctx, ds, []model.RawRepository{
			{ID: "first", Name: "r", FullName: "a/r", UpdatedAt: same},
			{ID: "second", Name: "r", FullName: "a/r", UpdatedAt: same},
		}))

		uc := usecase.NewStaging(db, usecase.WithStagingClock(fixedClock))
		gt.R1(uc.Run(ctx, ds)).NoError(t)

		staged := gt.R1(db.StagedRepositories(ctx, ds)).NoError(t)
		gt.A(t, staged).Length(1)
		gt.Equal(t, staged[0].ID, "first")
	})

	t.Run("missing updated_at ranks lowest", func(t *testing.T) {
		db := memory.New()
		gt.NoError(t, db.PutRawRepositories(ctx, ds, []model.RawRepository{
			{ID: "undated", Name: "r", FullName: "a/r"},
			{ID: "dated", Name: "r", FullName: "a/r", UpdatedAt: timeAt("2024-01-01T00:00:00Z")},
		}))

		uc := usecase.NewStaging(db, usecase.WithStagingClock(fixedClock))
		gt.R1(uc.Run(ctx, ds)).NoError(t)

		staged := gt.R1(db.StagedRepositories(ctx, ds)).NoError(t)
		gt.A(t, staged).Length(1)
		gt.Equal(t, staged[0].ID, "dated")
	})

	t.Run("counts are pre-dedup", func(t *testing.T) {
		db := memory.New()
		gt.NoError(t, db.PutRawRepositories(ctx, ds, []model.RawRepository{
			{ID: "", Name: "r", FullName: "a/r", UpdatedAt: timeAt("2024-01-01T00:00:00Z")},
			{ID: "ok", Name: "r", FullName: "a/r", UpdatedAt: timeAt("2024-05-01T00:00:00Z")},
		}))

		uc := usecase.NewStaging(db, usecase.WithStagingClock(fixedClock))
		result := gt.R1(uc.Run(ctx, ds)).NoError(t)

		gt.Equal(t, result.Valid, 1)
		gt.Equal(t, result.Invalid, 1)
		gt.Equal(t, result.DuplicatesRemoved, 1)
	})
}

func TestStagingIdempotent(t *testing.T) {
	ctx := context.Background()
	ds := types.DataSource("test")
	db := memory.New()
	gt.NoError(t, db.PutRawRepositories(ctx, ds, []model.RawRepository{
		{ID: "b", Name: "beta", FullName: "a/beta", UpdatedAt: timeAt("2024-02-01T00:00:00Z")},
		{ID: "a", Name: "alpha", FullName: "a/alpha", UpdatedAt: timeAt("2024-01-01T00:00:00Z")},
		{ID: "a2", Name: "alpha", FullName: "a/alpha", UpdatedAt: timeAt("2024-03-01T00:00:00Z")},
	}))

	uc := usecase.NewStaging(db, usecase.WithStagingClock(fixedClock))
	first := gt.R1(uc.Run(ctx, ds)).NoError(t)
	snapshot := gt.R1(db.StagedRepositories(ctx, ds)).NoError(t)

	second := gt.R1(uc.Run(ctx, ds)).NoError(t)
	again := gt.R1(db.StagedRepositories(ctx, ds)).NoError(t)

	gt.Equal(t, first, second)
	gt.Equal(t, snapshot, again)

	// Output is ordered by full name
	gt.A(t, again).Length(2)
	gt.Equal(t, again[0].FullName, "a/alpha")
	gt.Equal(t, again[1].FullName, "a/beta")
}
