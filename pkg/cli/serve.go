package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/cli/config"
	controller "github.com/m-mizutani/vigil/pkg/controller/http"
	"github.com/m-mizutani/vigil/pkg/controller/scheduler"
	"github.com/m-mizutani/vigil/pkg/domain/interfaces"
	"github.com/m-mizutani/vigil/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// buildPipeline assembles the orchestrator and reporting surface over the
// given store.
func buildPipeline(db interfaces.Database, scoringCfg *config.Scoring, slackCfg *config.Slack) (interfaces.PipelineUseCase, interfaces.ReportUseCase, error) {
	policy, err := scoringCfg.Policy()
	if err != nil {
		return nil, nil, err
	}

	var opts []usecase.PipelineOption
	if notifier := slackCfg.Notifier(); notifier != nil {
		opts = append(opts, usecase.WithNotifier(notifier))
	}

	pipelineUC := usecase.NewPipeline(db,
		usecase.NewStaging(db),
		usecase.NewFacts(db),
		usecase.NewEnrich(db),
		usecase.NewRisk(db, usecase.WithScoringPolicy(policy)),
		opts...,
	)
	return pipelineUC, usecase.NewReport(db), nil
}

func cmdServe() *cli.Command {
	var (
		serverCfg   config.Server
		storeCfg    config.Store
		pipelineCfg config.Pipeline
		scoringCfg  config.Scoring
		slackCfg    config.Slack
	)

	flags := append(serverCfg.Flags(), storeCfg.Flags()...)
	flags = append(flags, pipelineCfg.Flags()...)
	flags = append(flags, scoringCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server and pipeline scheduler",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			logger.Info("Starting vigil server",
				slog.String("addr", serverCfg.Addr),
				slog.String("store", storeCfg.Backend),
				slog.Duration("interval", pipelineCfg.Interval),
			)

			db, err := storeCfg.Open(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to open storage backend")
			}
			defer func() {
				if err := db.Close(); err != nil {
					logger.Error("Failed to close store", slog.Any("error", err))
				}
			}()

			pipelineUC, reportUC, err := buildPipeline(db, &scoringCfg, &slackCfg)
			if err != nil {
				return err
			}

			// Create HTTP server with options
			server, err := controller.NewServer(
				ctx,
				pipelineUC,
				reportUC,
				controller.WithAddr(serverCfg.Addr),
			)
			if err != nil {
				return goerr.Wrap(err, "failed to create HTTP server")
			}

			// Scheduler drives the change gate in the background
			schedCtx, stopScheduler := context.WithCancel(ctx)
			defer stopScheduler()
			sched := scheduler.New(pipelineUC,
				scheduler.WithInterval(pipelineCfg.Interval),
				scheduler.WithSources(pipelineCfg.DataSources()...),
			)
			go func() {
				if err := sched.Run(schedCtx); err != nil && err != context.Canceled {
					logger.Error("Scheduler error", slog.Any("error", err))
				}
			}()

			// Start server in goroutine
			go func() {
				logger.Info("HTTP server starting", slog.String("addr", serverCfg.Addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("HTTP server error", slog.Any("error", err))
				}
			}()

			// Wait for interrupt signal
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			select {
			case <-ctx.Done():
				logger.Info("Context cancelled, shutting down...")
			case sig := <-sigChan:
				logger.Info("Signal received, shutting down...", slog.Any("signal", sig))
			}

			stopScheduler()

			// Graceful shutdown
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}

			logger.Info("Server shutdown complete")
			return nil
		},
	}
}
