package usecase_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/m-mizutani/vigil/pkg/domain/types"
	"github.com/m-mizutani/vigil/pkg/infra/memory"
	"github.com/m-mizutani/vigil/pkg/usecase"
)

func seedAssessments(t *testing.T, db *memory.Store, ds types.DataSource) {
	t.Helper()
	gt.NoError(t, db.ReplaceAssessments(context.Background(), ds, []model.RiskAssessment{
		{FullName: "acme/alpha", Language: "Go", RiskScore: 80, RiskCategory: model.RiskHigh, UpdatedAt: testNow},
		{FullName: "acme/beta", Language: "Go", RiskScore: 50, RiskCategory: model.RiskMedium, UpdatedAt: testNow},
		{FullName: "acme/gamma", Language: "Rust", RiskScore: 20, RiskCategory: model.RiskLow, UpdatedAt: testNow},
		{FullName: "acme/delta", Language: "Rust", RiskScore: 45, RiskCategory: model.RiskMedium, UpdatedAt: testNow},
	}))
}

func TestReportSummary(t *testing.T) {
	ctx := context.Background()
	ds := types.DataSource("test")
	db := memory.New()
	seedAssessments(t, db, ds)

	uc := usecase.NewReport(db)
	summary := gt.R1(uc.Summary(ctx, ds)).NoError(t)

	gt.Equal(t, summary.Total, 4)
	gt.Equal(t, summary.High, 1)
	gt.Equal(t, summary.Medium, 2)
	gt.Equal(t, summary.Low, 1)
	gt.Equal(t, summary.AvgScore, 48.75)
	gt.NotNil(t, summary.LastUpdated)
	gt.Equal(t, *summary.LastUpdated, testNow)
}

func TestReportSummaryEmpty(t *testing.T) {
	ctx := context.Background()
	db := memory.New()

	uc := usecase.NewReport(db)
	summary := gt.R1(uc.Summary(ctx, "empty")).NoError(t)

	gt.Equal(t, summary.Total, 0)
	gt.Equal(t, summary.AvgScore, 0.0)
	gt.Nil(t, summary.LastUpdated)
}

func TestReportAssessments(t *testing.T) {
	ctx := context.Background()
	ds := types.DataSource("test")
	db := memory.New()
	seedAssessments(t, db, ds)
	uc := usecase.NewReport(db)

	t.Run("default order is score descending", func(t *testing.T) {
		rows := gt.R1(uc.Assessments(ctx, ds, model.AssessmentQuery{})).NoError(t)
		gt.A(t, rows).Length(4)
		gt.Equal(t, rows[0].FullName, "acme/alpha")
		gt.Equal(t, rows[3].FullName, "acme/gamma")
	})

	t.Run("filter by category", func(t *testing.T) {
		rows := gt.R1(uc.Assessments(ctx, ds, model.AssessmentQuery{
			Category: model.RiskMedium,
		})).NoError(t)
		gt.A(t, rows).Length(2)
	})

	t.Run("filter by language and min score", func(t *testing.T) {
		rows := gt.R1(uc.Assessments(ctx, ds, model.AssessmentQuery{
			Language: "rust",
			MinScore: 40,
		})).NoError(t)
		gt.A(t, rows).Length(1)
		gt.Equal(t, rows[0].FullName, "acme/delta")
	})

	t.Run("name match is case insensitive", func(t *testing.T) {
		rows := gt.R1(uc.Assessments(ctx, ds, model.AssessmentQuery{
			NameMatch: "GAMMA",
		})).NoError(t)
		gt.A(t, rows).Length(1)
	})

	t.Run("ascending with limit", func(t *testing.T) {
		rows := gt.R1(uc.Assessments(ctx, ds, model.AssessmentQuery{
			Ascending: true,
			Limit:     2,
		})).NoError(t)
		gt.A(t, rows).Length(2)
		gt.Equal(t, rows[0].FullName, "acme/gamma")
		gt.Equal(t, rows[1].FullName, "acme/delta")
	})
}

func TestReportLanguages(t *testing.T) {
	ctx := context.Background()
	ds := types.DataSource("test")
	db := memory.New()
	seedAssessments(t, db, ds)

	uc := usecase.NewReport(db)
	langs := gt.R1(uc.Languages(ctx, ds)).NoError(t)

	gt.A(t, langs).Length(2)
	// Equal repo counts, so alphabetical
	gt.Equal(t, langs[0].Language, "Go")
	gt.Equal(t, langs[0].Repos, 2)
	gt.Equal(t, langs[0].AvgScore, 65.0)
	gt.Equal(t, langs[0].High, 1)
	gt.Equal(t, langs[1].Language, "Rust")
	gt.Equal(t, langs[1].AvgScore, 32.5)
}

func TestReportPipelineStatus(t *testing.T) {
	ctx := context.Background()
	ds := types.DataSource("test")
	db := memory.New()

	gt.NoError(t, db.PutRawRepositories(ctx, ds, []model.RawRepository{
		{ID: "r1", Name: "one", FullName: "a/one", Stars: 1},
		{ID: "", Name: "two", FullName: "a/two", Stars: -3},
	}))
	gt.NoError(t, db.ReplaceStagedRepositories(ctx, ds, []model.StagedRepository{
		{FullName: "a/one", Valid: true},
		{FullName: "a/two", Valid: false},
	}))

	uc := usecase.NewReport(db)
	status := gt.R1(uc.PipelineStatus(ctx, ds)).NoError(t)

	gt.Equal(t, status.DataSource, ds)
	gt.A(t, status.Layers).Length(8)

	byKey := map[string]model.LayerStatus{}
	for _, l := range status.Layers {
		byKey[l.Layer+"/"+l.Dataset] = l
	}

	raw := byKey["RAW/repositories"]
	gt.Equal(t, raw.Records, 2)
	gt.Equal(t, raw.MissingKeys, 1)
	gt.Equal(t, raw.Negatives, 1)

	stage := byKey["STAGE/repositories"]
	gt.Equal(t, stage.Records, 2)
	gt.Equal(t, stage.Invalid, 1)

	gt.Equal(t, byKey["ENRICH/profiles"].Records, 0)
	gt.Equal(t, byKey["CURATE/assessments"].Records, 0)
}
