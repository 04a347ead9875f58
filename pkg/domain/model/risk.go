package model

import (
	"math"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/domain/types"
)

// RiskCategory buckets a risk score for reporting.
type RiskCategory string

const (
	RiskLow    RiskCategory = "LOW"
	RiskMedium RiskCategory = "MEDIUM"
	RiskHigh   RiskCategory = "HIGH"
)

// RiskAssessment is the final data product: one row per enriched profile,
// fully recomputable from it. Score is on a 0-100 scale.
type RiskAssessment struct {
	DataSource           types.DataSource `json:"data_source"`
	FullName             string           `json:"full_name"`
	Language             string           `json:"language"`
	Stars                int              `json:"stars"`
	Commits90D           int              `json:"commits_90d"`
	ActiveContributors90 int              `json:"active_contributors_90d"`
	DaysSinceLastRelease int              `json:"days_since_last_release"`
	OpenIssues           int              `json:"open_issues"`
	RiskScore            float64          `json:"risk_score"`
	RiskCategory         RiskCategory     `json:"risk_category"`
	UpdatedAt            time.Time        `json:"last_updated"`
}

// ScoringPolicy holds the factor weights and category cutoffs of the risk
// formula. The per-metric step thresholds are fixed; only the weighting
// and bucketing are tunable, and the defaults reproduce the reference
// formula exactly.
type ScoringPolicy struct {
	Weights struct {
		Stars        float64 `toml:"stars"`
		Commits      float64 `toml:"commits"`
		Contributors float64 `toml:"contributors"`
		Release      float64 `toml:"release"`
		Issues       float64 `toml:"issues"`
	} `toml:"weights"`

	HighThreshold   float64 `toml:"high_threshold"`
	MediumThreshold float64 `toml:"medium_threshold"`
}

// DefaultScoringPolicy returns the reference weighting:
// stars .15, commits .25, contributors .20, release .25, issues .15,
// HIGH at 70 and MEDIUM at 40.
func DefaultScoringPolicy() ScoringPolicy {
	var p ScoringPolicy
	p.Weights.Stars = 0.15
	p.Weights.Commits = 0.25
	p.Weights.Contributors = 0.20
	p.Weights.Release = 0.25
	p.Weights.Issues = 0.15
	p.HighThreshold = 70
	p.MediumThreshold = 40
	return p
}

// Validate checks that the weights form a convex combination so the score
// stays within [0, 100].
func (p ScoringPolicy) Validate() error {
	sum := p.Weights.Stars + p.Weights.Commits + p.Weights.Contributors +
		p.Weights.Release + p.Weights.Issues
	if math.Abs(sum-1.0) > 1e-9 {
		return goerr.New("scoring weights must sum to 1.0", goerr.V("sum", sum))
	}
	if p.MediumThreshold > p.HighThreshold {
		return goerr.New("medium threshold must not exceed high threshold",
			goerr.V("medium", p.MediumThreshold), goerr.V("high", p.HighThreshold))
	}
	return nil
}

// Categorize buckets a 0-100 score using the policy cutoffs.
func (p ScoringPolicy) Categorize(score float64) RiskCategory {
	switch {
	case score >= p.HighThreshold:
		return RiskHigh
	case score >= p.MediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}
