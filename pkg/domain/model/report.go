package model

import (
	"time"

	"github.com/m-mizutani/vigil/pkg/domain/types"
)

// RiskSummary is the aggregate view over the assessment data product.
type RiskSummary struct {
	DataSource  types.DataSource `json:"data_source"`
	Total       int              `json:"total"`
	AvgScore    float64          `json:"avg_risk_score"`
	High        int              `json:"high"`
	Medium      int              `json:"medium"`
	Low         int              `json:"low"`
	LastUpdated *time.Time       `json:"last_updated"`
}

// LanguageRisk is the per-language breakdown row.
type LanguageRisk struct {
	Language string  `json:"language"`
	Repos    int     `json:"repos"`
	AvgScore float64 `json:"avg_risk_score"`
	High     int     `json:"high"`
	Medium   int     `json:"medium"`
	Low      int     `json:"low"`
}

// AssessmentQuery filters and orders the assessment dataset for the
// reporting boundary. Zero values mean "no constraint".
type AssessmentQuery struct {
	Category  RiskCategory `json:"category,omitempty"`
	Language  string       `json:"language,omitempty"`
	MinScore  float64      `json:"min_score,omitempty"`
	NameMatch string       `json:"name_match,omitempty"`
	Ascending bool         `json:"ascending,omitempty"` // sort by score ascending instead of descending
	Limit     int          `json:"limit,omitempty"`
}

/// LayerStatus is one row of the data quality / volume monitoring view:
// record counts per layer and dataset, with the defect counters that the
// validator and normalizer will have to repair.
type LayerStatus struct {
	Layer       string `json:"layer"`
	Dataset     string `json:"dataset"`
	Records     int    `json:"records"`
	MissingKeys int    `json:"missing_keys"`
	Negatives   int    `json:"negatives"`
	Invalid     int    `json:"invalid"`
}

// PipelineStatus combines layer monitoring with the recent audit trail.
type PipelineStatus struct {
	DataSource types.DataSource   `json:"data_source"`
	Layers     []LayerStatus      `json:"layers"`
	RecentRuns []PipelineLogEntry `json:"recent_runs"`
}
