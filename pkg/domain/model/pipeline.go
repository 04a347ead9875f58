package model

import (
	"fmt"
	"time"

	"github.com/m-mizutani/vigil/pkg/domain/types"
)

// RunStatus is the terminal (or in-flight) state of a pipeline run or stage.
type RunStatus string

const (
	StatusStarted   RunStatus = "STARTED"
	StatusSkipped   RunStatus = "SKIPPED"
	StatusCompleted RunStatus = "COMPLETED"
	StatusError     RunStatus = "ERROR"
)

// Stage names used in the pipeline log.
type Stage string

const (
	StageGate     Stage = "CHECK_CHANGES"
	StageFull     Stage = "FULL_PIPELINE"
	StageStaging  Stage = "STAGE_REPOSITORIES"
	StageFacts    Stage = "NORMALIZE_FACTS"
	StageEnrich   Stage = "ENRICH_PROFILES"
	StageRisk     Stage = "SCORE_RISK"
)

// PipelineLogEntry is one append-only audit record of an orchestration
// decision. Entries are never mutated except to close the matching open
// STARTED entry with a final status and end time.
type PipelineLogEntry struct {
	ID           string           `json:"id"`
	PipelineName string           `json:"pipeline_name"`
	DataSource   types.DataSource `json:"data_source"`
	Stage        Stage            `json:"stage"`
	Status       RunStatus        `json:"status"`
	Message      string           `json:"message"`
	StartTime    time.Time        `json:"start_time"`
	EndTime      *time.Time       `json:"end_time"`
}

// StagingResult reports the observable counts of one staging operation.
type StagingResult struct {
	Total             int `json:"total"`
	Valid             int `json:"valid"`
	Invalid           int `json:"invalid"`
	DuplicatesRemoved int `json:"duplicates_removed"`
	Loaded            int `json:"loaded"`
}

func (r StagingResult) String() string {
	return fmt.Sprintf("SUCCESS: Total=%d, Valid=%d, Invalid=%d, DuplicatesRemoved=%d, FinalLoaded=%d records staged",
		r.Total, r.Valid, r.Invalid, r.DuplicatesRemoved, r.Loaded)
}

// FactsResult reports per-variant row counts of one normalization pass.
type FactsResult struct {
	Contributors int `json:"contributors"`
	Commits      int `json:"commits"`
	Issues       int `json:"issues"`
	Releases     int `json:"releases"`
}

func (r FactsResult) String() string {
	return fmt.Sprintf("SUCCESS: Loaded contributors=%d, commits=%d, issues=%d, releases=%d fact records",
		r.Contributors, r.Commits, r.Issues, r.Releases)
}

// EnrichResult reports how many profiles one enrichment pass produced.
type EnrichResult struct {
	Enriched int `json:"enriched"`
}

func (r EnrichResult) String() string {
	return fmt.Sprintf("SUCCESS: Enriched %d records", r.Enriched)
}

// RiskResult reports the scored total and the per-category breakdown.
type RiskResult struct {
	Total  int `json:"total"`
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

func (r RiskResult) String() string {
	return fmt.Sprintf("SUCCESS: Created %d risk analysis records. High Risk: %d | Medium Risk: %d | Low Risk: %d",
		r.Total, r.High, r.Medium, r.Low)
}

// RunResult is the outcome of one orchestrated pipeline invocation.
type RunResult struct {
	RunID      string           `json:"run_id"`
	DataSource types.DataSource `json:"data_source"`
	Status     RunStatus        `json:"status"`
	Message    string           `json:"message"`

	Staging *StagingResult `json:"staging,omitempty"`
	Facts   *FactsResult   `json:"facts,omitempty"`
	Enrich  *EnrichResult  `json:"enrich,omitempty"`
	Risk    *RiskResult    `json:"risk,omitempty"`
}

func (r RunResult) String() string {
	switch r.Status {
	case StatusSkipped:
		return "No new data, pipeline skipped"
	case StatusCompleted:
		return "Pipeline executed successfully for new data"
	default:
		return fmt.Sprintf("Pipeline %s: %s", r.Status, r.Message)
	}
}
