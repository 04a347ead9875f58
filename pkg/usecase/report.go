package usecase

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/domain/interfaces"
	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/m-mizutani/vigil/pkg/domain/types"
)

type reportUseCase struct {
	db interfaces.Database
}

// NewReport creates the read-only reporting surface over the curated
// layer.
func NewReport(db interfaces.Database) interfaces.ReportUseCase {
	return &reportUseCase{db: db}
}

func (uc *reportUseCase) Summary(ctx context.Context, ds types.DataSource) (*model.RiskSummary, error) {
	rows, err := uc.db.Assessments(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read assessments", goerr.V("data_source", ds))
	}

	summary := &model.RiskSummary{DataSource: ds, Total: len(rows)}
	var sum float64
	for _, r := range rows {
		sum += r.RiskScore
		switch r.RiskCategory {
		case model.RiskHigh:
			summary.High++
		case model.RiskMedium:
			summary.Medium++
		default:
			summary.Low++
		}
		if summary.LastUpdated == nil || r.UpdatedAt.After(*summary.LastUpdated) {
			t := r.UpdatedAt
			summary.LastUpdated = &t
		}
	}
	if summary.Total > 0 {
		summary.AvgScore = math.Round(sum/float64(summary.Total)*100) / 100
	}
	return summary, nil
}

func (uc *reportUseCase) Assessments(ctx context.Context, ds types.DataSource, q model.AssessmentQuery) ([]model.RiskAssessment, error) {
	rows, err := uc.db.Assessments(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read assessments", goerr.V("data_source", ds))
	}

	filtered := make([]model.RiskAssessment, 0, len(rows))
	for _, r := range rows {
		if q.Category != "" && r.RiskCategory != q.Category {
			continue
		}
		if q.Language != "" && !strings.EqualFold(r.Language, q.Language) {
			continue
		}
		if r.RiskScore < q.MinScore {
			continue
		}
		if q.NameMatch != "" && !strings.Contains(strings.ToLower(r.FullName), strings.ToLower(q.NameMatch)) {
			continue
		}
		filtered = append(filtered, r)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if q.Ascending {
			return filtered[i].RiskScore < filtered[j].RiskScore
		}
		return filtered[i].RiskScore > filtered[j].RiskScore
	})

	if q.Limit > 0 && len(filtered) > q.Limit {
		filtered = filtered[:q.Limit]
	}
	return filtered, nil
}

func (uc *reportUseCase) Languages(ctx context.Context, ds types.DataSource) ([]model.LanguageRisk, error) {
	rows, err := uc.db.Assessments(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read assessments", goerr.V("data_source", ds))
	}

	type acc struct {
		model.LanguageRisk
		sum float64
	}
	byLang := map[string]*acc{}
	for _, r := range rows {
		lang := r.Language
		if lang == "" {
			lang = "Unknown"
		}
		a, ok := byLang[lang]
		if !ok {
			a = &acc{LanguageRisk: model.LanguageRisk{Language: lang}}
			byLang[lang] = a
		}
		a.Repos++
		a.sum += r.RiskScore
		switch r.RiskCategory {
		case model.RiskHigh:
			a.High++
		case model.RiskMedium:
			a.Medium++
		default:
			a.Low++
		}
	}

	out := make([]model.LanguageRisk, 0, len(byLang))
	for _, a := range byLang {
		a.AvgScore = math.Round(a.sum/float64(a.Repos)*100) / 100
		out = append(out, a.LanguageRisk)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Repos != out[j].Repos {
			return out[i].Repos > out[j].Repos
		}
		return out[i].Language < out[j].Language
	})
	return out, nil
}

func (uc *reportUseCase) Logs(ctx context.Context, ds types.DataSource, limit int) ([]model.PipelineLogEntry, error) {
	entries, err := uc.db.LogEntries(ctx, ds, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read pipeline log", goerr.V("data_source", ds))
	}
	return entries, nil
}

// PipelineStatus builds the per-layer volume and data quality view plus
// the recent audit trail.
func (uc *reportUseCase) PipelineStatus(ctx context.Context, ds types.DataSource) (*model.PipelineStatus, error) {
	status := &model.PipelineStatus{DataSource: ds}

	raws, err := uc.db.RawRepositories(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read raw repositories", goerr.V("data_source", ds))
	}
	rawLayer := model.LayerStatus{Layer: "RAW", Dataset: "repositories", Records: len(raws)}
	for _, r := range raws {
		if strings.TrimSpace(r.ID) == "" {
			rawLayer.MissingKeys++
		}
		if r.Stars < 0 || r.Forks < 0 {
			rawLayer.Negatives++
		}
	}
	status.Layers = append(status.Layers, rawLayer)

	contributors, err := uc.db.RawContributors(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read raw contributors", goerr.V("data_source", ds))
	}
	cLayer := model.LayerStatus{Layer: "RAW", Dataset: "contributors", Records: len(contributors)}
	for _, r := range contributors {
		if strings.TrimSpace(r.Contributor) == "" {
			cLayer.MissingKeys++
		}
		if r.TotalCommits < 0 || r.Recent90Commits < 0 {
			cLayer.Negatives++
		}
	}
	status.Layers = append(status.Layers, cLayer)

	commits, err := uc.db.RawCommitActivities(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read raw commit activities", goerr.V("data_source", ds))
	}
	cmLayer := model.LayerStatus{Layer: "RAW", Dataset: "commits", Records: len(commits)}
	for _, r := range commits {
		if strings.TrimSpace(r.Repo) == "" {
			cmLayer.MissingKeys++
		}
		if r.Commits30D < 0 || r.Commits90D < 0 || r.Commits180D < 0 {
			cmLayer.Negatives++
		}
	}
	status.Layers = append(status.Layers, cmLayer)

	issues, err := uc.db.RawIssueActivities(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read raw issue activities", goerr.V("data_source", ds))
	}
	iLayer := model.LayerStatus{Layer: "RAW", Dataset: "issues", Records: len(issues)}
	for _, r := range issues {
		if strings.TrimSpace(r.Repo) == "" {
			iLayer.MissingKeys++
		}
		if r.OpenIssues < 0 || r.ClosedIssues < 0 {
			iLayer.Negatives++
		}
	}
	status.Layers = append(status.Layers, iLayer)

	releases, err := uc.db.RawReleaseActivities(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read raw release activities", goerr.V("data_source", ds))
	}
	rLayer := model.LayerStatus{Layer: "RAW", Dataset: "releases", Records: len(releases)}
	for _, r := range releases {
		if strings.TrimSpace(r.Repo) == "" {
			rLayer.MissingKeys++
		}
		if r.ReleaseCount < 0 || r.DaysSinceLast < 0 {
			rLayer.Negatives++
		}
	}
	status.Layers = append(status.Layers, rLayer)

	staged, err := uc.db.StagedRepositories(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read staged repositories", goerr.V("data_source", ds))
	}
	sLayer := model.LayerStatus{Layer: "STAGE", Dataset: "repositories", Records: len(staged)}
	for _, r := range staged {
		if !r.Valid {
			sLayer.Invalid++
		}
	}
	status.Layers = append(status.Layers, sLayer)

	profiles, err := uc.db.Profiles(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read enriched profiles", goerr.V("data_source", ds))
	}
	status.Layers = append(status.Layers, model.LayerStatus{
		Layer: "ENRICH", Dataset: "profiles", Records: len(profiles),
	})

	assessments, err := uc.db.Assessments(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read assessments", goerr.V("data_source", ds))
	}
	status.Layers = append(status.Layers, model.LayerStatus{
		Layer: "CURATE", Dataset: "assessments", Records: len(assessments),
	})

	entries, err := uc.db.LogEntries(ctx, ds, 20)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read pipeline log", goerr.V("data_source", ds))
	}
	status.RecentRuns = entries

	return status, nil
}
