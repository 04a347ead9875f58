package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/cli/config"
	"github.com/m-mizutani/vigil/pkg/domain/interfaces"
	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/m-mizutani/vigil/pkg/domain/types"
	"github.com/m-mizutani/vigil/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdReport() *cli.Command {
	var (
		storeCfg   config.Store
		dataSource string
	)

	flags := append(storeCfg.Flags(),
		&cli.StringFlag{
			Name:        "data-source",
			Usage:       "Data source to report on",
			Value:       string(types.DefaultDataSource),
			Destination: &dataSource,
			Sources:     cli.EnvVars("VIGIL_DATA_SOURCE"),
		},
	)

	withReport := func(fn func(ctx context.Context, uc interfaces.ReportUseCase, ds types.DataSource) (any, error)) cli.ActionFunc {
		return func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			db, err := storeCfg.Open(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to open storage backend")
			}
			defer func() {
				if err := db.Close(); err != nil {
					logger.Error("Failed to close store", slog.Any("error", err))
				}
			}()

			out, err := fn(ctx, usecase.NewReport(db), types.DataSource(dataSource))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
	}

	var (
		category  string
		language  string
		query     string
		minScore  float64
		ascending bool
		limit     int
	)

	return &cli.Command{
		Name:  "report",
		Usage: "Query the curated risk data",
		Flags: flags,
		Commands: []*cli.Command{
			{
				Name:  "summary",
				Usage: "Aggregate risk summary",
				Action: withReport(func(ctx context.Context, uc interfaces.ReportUseCase, ds types.DataSource) (any, error) {
					return uc.Summary(ctx, ds)
				}),
			},
			{
				Name:  "risks",
				Usage: "List risk assessments",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "category",
						Usage:       "Filter by risk category (LOW, MEDIUM, HIGH)",
						Destination: &category,
					},
					&cli.StringFlag{
						Name:        "language",
						Usage:       "Filter by language",
						Destination: &language,
					},
					&cli.StringFlag{
						Name:        "q",
						Usage:       "Match repository full names (case insensitive)",
						Destination: &query,
					},
					&cli.FloatFlag{
						Name:        "min-score",
						Usage:       "Minimum risk score",
						Destination: &minScore,
					},
					&cli.BoolFlag{
						Name:        "asc",
						Usage:       "Sort by score ascending (healthiest first)",
						Destination: &ascending,
					},
					&cli.IntFlag{
						Name:        "limit",
						Usage:       "Maximum rows returned",
						Value:       20,
						Destination: &limit,
					},
				},
				Action: withReport(func(ctx context.Context, uc interfaces.ReportUseCase, ds types.DataSource) (any, error) {
					return uc.Assessments(ctx, ds, model.AssessmentQuery{
						Category:  model.RiskCategory(category),
						Language:  language,
						MinScore:  minScore,
						NameMatch: query,
						Ascending: ascending,
						Limit:     limit,
					})
				}),
			},
			{
				Name:  "languages",
				Usage: "Per-language risk breakdown",
				Action: withReport(func(ctx context.Context, uc interfaces.ReportUseCase, ds types.DataSource) (any, error) {
					return uc.Languages(ctx, ds)
				}),
			},
			{
				Name:  "status",
				Usage: "Layer record counts, defect counters and recent runs",
				Action: withReport(func(ctx context.Context, uc interfaces.ReportUseCase, ds types.DataSource) (any, error) {
					return uc.PipelineStatus(ctx, ds)
				}),
			},
		},
	}
}
