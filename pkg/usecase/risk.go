package usecase

import (
	"context"
	"math"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/domain/interfaces"
	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/m-mizutani/vigil/pkg/domain/types"
)

type riskUseCase struct {
	db     interfaces.Database
	policy model.ScoringPolicy
	now    func() time.Time
}

// RiskOption configures the risk scorer.
type RiskOption func(*riskUseCase)

// WithScoringPolicy overrides the default weighting and category cutoffs.
func WithScoringPolicy(policy model.ScoringPolicy) RiskOption {
	return func(uc *riskUseCase) {
		uc.policy = policy
	}
}

// WithRiskClock replaces the wall clock, for tests.
func WithRiskClock(now func() time.Time) RiskOption {
	return func(uc *riskUseCase) {
		uc.now = now
	}
}

// NewRisk creates the scoring stage. Each profile is scored independently
// by a pure function of its metrics; no state is shared across rows.
func NewRisk(db interfaces.Database, opts ...RiskOption) interfaces.RiskUseCase {
	uc := &riskUseCase{
		db:     db,
		policy: model.DefaultScoringPolicy(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *riskUseCase) Run(ctx context.Context, ds types.DataSource) (*model.RiskResult, error) {
	logger := ctxlog.From(ctx)

	profiles, err := uc.db.Profiles(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read enriched profiles", goerr.V("data_source", ds))
	}

	now := uc.now()
	result := &model.RiskResult{Total: len(profiles)}
	rows := make([]model.RiskAssessment, 0, len(profiles))

	for _, p := range profiles {
		score := Score(&p, uc.policy)
		category := uc.policy.Categorize(score)

		switch category {
		case model.RiskHigh:
			result.High++
		case model.RiskMedium:
			result.Medium++
		default:
			result.Low++
		}

		rows = append(rows, model.RiskAssessment{
			DataSource:           p.DataSource,
			FullName:             p.FullName,
			Language:             p.Language,
			Stars:                p.Stars,
			Commits90D:           p.Commits90D,
			ActiveContributors90: p.ActiveContributors90,
			DaysSinceLastRelease: p.DaysSinceLast,
			OpenIssues:           p.OpenIssues,
			RiskScore:            score,
			RiskCategory:         category,
			UpdatedAt:            now,
		})
	}

	if err := uc.db.ReplaceAssessments(ctx, ds, rows); err != nil {
		return nil, goerr.Wrap(err, "failed to replace risk assessments", goerr.V("data_source", ds))
	}

	logger.Info("scored risk assessments",
		"data_source", ds,
		"total", result.Total,
		"high", result.High,
		"medium", result.Medium,
		"low", result.Low,
	)

	return result, nil
}

// Score computes the 0-100 risk score of one profile. The weighted sum is
// rounded to two decimals on the 0-1 scale *before* scaling by 100; the
// rounding point is part of the contract and must not move to the final
// score.
func Score(p *model.RepositoryProfile, policy model.ScoringPolicy) float64 {
	sum := StarsFactor(p.Stars)*policy.Weights.Stars +
		CommitsFactor(p.Commits90D)*policy.Weights.Commits +
		ContributorsFactor(p.ActiveContributors90)*policy.Weights.Contributors +
		ReleaseFactor(p.DaysSinceLast)*policy.Weights.Release +
		IssuesFactor(p.OpenIssues)*policy.Weights.Issues

	return math.Round(sum*100) / 100 * 100
}

// StarsFactor maps a star count to a [0,1] risk contribution; fewer stars
// is riskier.
func StarsFactor(stars int) float64 {
	switch {
	case stars >= 10000:
		return 0.0
	case stars >= 1000:
		return 0.2
	case stars >= 100:
		return 0.4
	case stars >= 10:
		return 0.6
	case stars >= 1:
		return 0.8
	default:
		return 1.0
	}
}

// CommitsFactor maps 90-day commit volume to a [0,1] risk contribution.
func CommitsFactor(commits90d int) float64 {
	switch {
	case commits90d >= 100:
		return 0.0
	case commits90d >= 50:
		return 0.2
	case commits90d >= 20:
		return 0.4
	case commits90d >= 5:
		return 0.6
	case commits90d >= 1:
		return 0.8
	default:
		return 1.0
	}
}

// ContributorsFactor maps active 90-day contributor count to a [0,1] risk
// contribution.
func ContributorsFactor(active90d int) float64 {
	switch {
	case active90d >= 10:
		return 0.0
	case active90d >= 5:
		return 0.2
	case active90d >= 3:
		return 0.4
	case active90d >= 1:
		return 0.6
	default:
		return 1.0
	}
}

// ReleaseFactor maps days since the last release to a [0,1] risk
// contribution; staler is riskier.
func ReleaseFactor(days int) float64 {
	switch {
	case days <= 30:
		return 0.0
	case days <= 90:
		return 0.3
	case days <= 180:
		return 0.6
	case days <= 365:
		return 0.8
	default:
		return 1.0
	}
}

// IssuesFactor maps the open issue count to a [0,1] risk contribution.
func IssuesFactor(open int) float64 {
	switch {
	case open == 0:
		return 0.0
	case open <= 5:
		return 0.2
	case open <= 10:
		return 0.4
	case open <= 20:
		return 0.6
	case open <= 50:
		return 0.8
	default:
		return 1.0
	}
}
