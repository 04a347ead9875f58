package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/domain/interfaces"
	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/m-mizutani/vigil/pkg/domain/types"
)

const (
	unknownName     = "UNKNOWN"
	unknownFullName = "UNKNOWN/UNKNOWN"
	unknownLanguage = "Unknown"
	unknownHTMLURL  = "https://github.com/UNKNOWN"
)

type stagingUseCase struct {
	db  interfaces.Database
	now func() time.Time
}

// StagingOption configures the staging use case.
type StagingOption func(*stagingUseCase)

// WithStagingClock replaces the wall clock, for tests.
func WithStagingClock(now func() time.Time) StagingOption {
	return func(uc *stagingUseCase) {
		uc.now = now
	}
}

// NewStaging creates the validator/deduplicator stage.
func NewStaging(db interfaces.Database, opts ...StagingOption) interfaces.StagingUseCase {
	uc := &stagingUseCase{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Run cleans every raw repository record, flags invalid rows, and keeps
// exactly one row per full name: the most recently updated one, with
// arrival order (lowest Seq) breaking ties. The whole staged dataset for
// the data source is replaced in one store call, so a fault before that
// point leaves the previous generation untouched.
func (uc *stagingUseCase) Run(ctx context.Context, ds types.DataSource) (*model.StagingResult, error) {
	logger := ctxlog.From(ctx)

	raws, err := uc.db.RawRepositories(ctx, ds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read raw repositories", goerr.V("data_source", ds))
	}

	now := uc.now()

	type candidate struct {
		staged model.StagedRepository
		rank   time.Time // raw updated_at, epoch when absent
		seq    int64
	}

	result := &model.StagingResult{Total: len(raws)}
	groups := map[string]candidate{}

	for _, raw := range raws {
		staged := uc.clean(&raw, now)
		if staged.Valid {
			result.Valid++
		} else {
			result.Invalid++
		}

		rank := time.Unix(0, 0).UTC()
		if raw.UpdatedAt != nil {
			rank = *raw.UpdatedAt
		}

		cur, ok := groups[staged.FullName]
		if !ok ||
			rank.After(cur.rank) ||
			(rank.Equal(cur.rank) && raw.Seq < cur.seq) {
			groups[staged.FullName] = candidate{staged: staged, rank: rank, seq: raw.Seq}
		}
	}

	result.DuplicatesRemoved = result.Total - len(groups)

	rows := make([]model.StagedRepository, 0, len(groups))
	for _, c := range groups {
		rows = append(rows, c.staged)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].FullName < rows[j].FullName
	})

	if err := uc.db.ReplaceStagedRepositories(ctx, ds, rows); err != nil {
		return nil, goerr.Wrap(err, "failed to replace staged repositories", goerr.V("data_source", ds))
	}
	result.Loaded = len(rows)

	logger.Info("staged repositories",
		"data_source", ds,
		"total", result.Total,
		"valid", result.Valid,
		"invalid", result.Invalid,
		"duplicates_removed", result.DuplicatesRemoved,
		"loaded", result.Loaded,
	)

	return result, nil
}

// clean applies the data quality rules to one raw record. Defaulting
// always happens, even for invalid rows, so downstream consumers never
// see an empty key field or a negative counter.
func (uc *stagingUseCase) clean(raw *model.RawRepository, now time.Time) model.StagedRepository {
	id := strings.TrimSpace(raw.ID)
	name := strings.TrimSpace(raw.Name)
	fullName := strings.TrimSpace(raw.FullName)
	owner := strings.TrimSpace(raw.Owner)
	language := strings.TrimSpace(raw.Language)
	htmlURL := strings.TrimSpace(raw.HTMLURL)

	staged := model.StagedRepository{
		DataSource:    raw.DataSource,
		ID:            id,
		Name:          name,
		FullName:      fullName,
		Owner:         owner,
		Language:      language,
		Stars:         raw.Stars,
		Forks:         raw.Forks,
		HTMLURL:       htmlURL,
		LoadedAt:      now,
		Valid:         true,
		InvalidReason: model.ReasonValid,
	}

	// First failing check wins; the order is part of the contract.
	switch {
	case id == "":
		staged.Valid = false
		staged.InvalidReason = model.ReasonMissingID
	case name == "":
		staged.Valid = false
		staged.InvalidReason = model.ReasonMissingName
	case fullName == "":
		staged.Valid = false
		staged.InvalidReason = model.ReasonMissingFullName
	case raw.Stars < 0:
		staged.Valid = false
		staged.InvalidReason = model.ReasonNegativeStars
	case raw.Forks < 0:
		staged.Valid = false
		staged.InvalidReason = model.ReasonNegativeForks
	}

	if name == "" {
		staged.Name = unknownName
	}
	if fullName == "" {
		staged.FullName = unknownFullName
	}
	if owner == "" {
		staged.Owner = unknownName
	}
	if language == "" {
		staged.Language = unknownLanguage
	}
	if htmlURL == "" {
		staged.HTMLURL = unknownHTMLURL
	}
	if staged.Stars < 0 {
		staged.Stars = 0
	}
	if staged.Forks < 0 {
		staged.Forks = 0
	}

	switch {
	case raw.CreatedAt != nil:
		staged.CreatedAt = *raw.CreatedAt
	default:
		staged.CreatedAt = now.AddDate(0, 0, -365)
	}

	switch {
	case raw.UpdatedAt != nil:
		staged.UpdatedAt = *raw.UpdatedAt
	case raw.CreatedAt != nil:
		staged.UpdatedAt = *raw.CreatedAt
	default:
		staged.UpdatedAt = now
	}

	return staged
}
