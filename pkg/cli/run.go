package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/cli/config"
	"github.com/urfave/cli/v3"
)

func cmdRun() *cli.Command {
	var (
		storeCfg    config.Store
		pipelineCfg config.Pipeline
		scoringCfg  config.Scoring
		slackCfg    config.Slack
	)

	flags := append(storeCfg.Flags(), pipelineCfg.Flags()...)
	flags = append(flags, scoringCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)

	return &cli.Command{
		Name:  "run",
		Usage: "Execute one change-gated pipeline pass and exit",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
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

			pipelineUC, _, err := buildPipeline(db, &scoringCfg, &slackCfg)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			for _, ds := range pipelineCfg.DataSources() {
				result, err := pipelineUC.Run(ctx, ds)
				if err != nil {
					return goerr.Wrap(err, "pipeline run failed", goerr.V("data_source", ds))
				}
				if err := enc.Encode(result); err != nil {
					return goerr.Wrap(err, "failed to encode run result")
				}
			}
			return nil
		},
	}
}
