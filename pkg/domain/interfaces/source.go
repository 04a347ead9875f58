package interfaces

import (
	"context"

	"github.com/m-mizutani/vigil/pkg/domain/model"
)

// RepositorySource is one acquisition channel: it produces a batch of raw
// records in one call. Sources never clean or validate anything; that is
// the pipeline's job.
type RepositorySource interface {
	// Name identifies the channel in logs ("github", "gharchive", "csv").
	Name() string

	Fetch(ctx context.Context) (*model.RecordBatch, error)
}

// Notifier delivers run outcomes to an operator channel. Implementations
// must be safe to call with a nil-ish configuration (no-op).
type Notifier interface {
	NotifyRun(ctx context.Context, result *model.RunResult) error
}
