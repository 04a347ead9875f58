package model

import (
	"time"

	"github.com/m-mizutani/vigil/pkg/domain/types"
)

// InvalidReason explains why a staged repository failed validation.
// The value records only the first failing check, in the fixed priority
// order of the data quality rules.
type InvalidReason string

const (
	ReasonMissingID       InvalidReason = "Missing ID"
	ReasonMissingName     InvalidReason = "Missing Name"
	ReasonMissingFullName InvalidReason = "Missing Full Name"
	ReasonNegativeStars   InvalidReason = "Negative Stars Count"
	ReasonNegativeForks   InvalidReason = "Negative Forks Count"
	ReasonValid           InvalidReason = "Valid"
)

// StagedRepository is the canonical record for one repository after
// cleaning and deduplication. At most one row exists per
// (data source, full name). Invalid rows are kept and flagged, never
// dropped, so data quality defects stay observable downstream.
type StagedRepository struct {
	DataSource    types.DataSource `json:"data_source"`
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	FullName      string           `json:"full_name"`
	Owner         string           `json:"owner"`
	Language      string           `json:"language"`
	Stars         int              `json:"stars"`
	Forks         int              `json:"forks"`
	HTMLURL       string           `json:"html_url"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	LoadedAt      time.Time        `json:"loaded_at"`
	Valid         bool             `json:"valid_flag"`
	InvalidReason InvalidReason    `json:"invalid_reason"`
}
