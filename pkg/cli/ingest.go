package cli

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/cli/config"
	"github.com/m-mizutani/vigil/pkg/domain/interfaces"
	"github.com/m-mizutani/vigil/pkg/domain/types"
	"github.com/m-mizutani/vigil/pkg/infra/csvsource"
	"github.com/m-mizutani/vigil/pkg/infra/gharchive"
	ghcollector "github.com/m-mizutani/vigil/pkg/infra/github"
	"github.com/m-mizutani/vigil/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdIngest() *cli.Command {
	var (
		storeCfg   config.Store
		githubCfg  config.GitHub
		from       string
		csvDir     string
		dataSource string
	)

	flags := append(storeCfg.Flags(), githubCfg.Flags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "from",
			Usage:       "Acquisition channel (github, gharchive, csv)",
			Value:       "github",
			Destination: &from,
			Sources:     cli.EnvVars("VIGIL_INGEST_FROM"),
		},
		&cli.StringFlag{
			Name:        "csv-dir",
			Usage:       "Directory holding CSV files for the csv channel",
			Destination: &csvDir,
			Sources:     cli.EnvVars("VIGIL_CSV_DIR"),
		},
		&cli.StringFlag{
			Name:        "data-source",
			Usage:       "Data source name the records are filed under",
			Value:       string(types.DefaultDataSource),
			Destination: &dataSource,
			Sources:     cli.EnvVars("VIGIL_DATA_SOURCE"),
		},
	)

	return &cli.Command{
		Name:  "ingest",
		Usage: "Fetch repository records into the raw layer",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			var src interfaces.RepositorySource
			switch from {
			case "github":
				src = ghcollector.NewCollector(githubCfg.Token,
					ghcollector.WithQuery(githubCfg.Query),
					ghcollector.WithMaxRepos(githubCfg.MaxRepos),
				)
			case "gharchive":
				src = gharchive.New()
			case "csv":
				if csvDir == "" {
					return goerr.New("csv-dir is required for the csv channel")
				}
				src = csvsource.New(csvDir)
			default:
				return goerr.New("unknown acquisition channel", goerr.V("from", from))
			}

			db, err := storeCfg.Open(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to open storage backend")
			}
			defer func() {
				if err := db.Close(); err != nil {
					logger.Error("Failed to close store", slog.Any("error", err))
				}
			}()

			result, err := usecase.NewIngest(db).FromSource(ctx, types.DataSource(dataSource), src)
			if err != nil {
				return goerr.Wrap(err, "ingestion failed", goerr.V("from", from))
			}

			logger.Info("Ingestion completed",
				slog.String("from", from),
				slog.String("data_source", dataSource),
				slog.Int("repositories", result.Repositories),
				slog.Int("total", result.Total()),
			)
			return nil
		},
	}
}
