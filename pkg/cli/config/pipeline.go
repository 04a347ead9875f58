package config

import (
	"time"

	"github.com/m-mizutani/vigil/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

// Pipeline holds orchestration configuration
type Pipeline struct {
	Interval time.Duration
	Sources  []string
}

// Flags returns CLI flags for pipeline configuration
func (c *Pipeline) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "pipeline-interval",
			Usage:       "Interval between change checks",
			Value:       2 * time.Minute,
			Destination: &c.Interval,
			Sources:     cli.EnvVars("VIGIL_PIPELINE_INTERVAL"),
		},
		&cli.StringSliceFlag{
			Name:        "data-source",
			Usage:       "Data source names to process",
			Value:       []string{string(types.DefaultDataSource)},
			Destination: &c.Sources,
			Sources:     cli.EnvVars("VIGIL_DATA_SOURCES"),
		},
	}
}

// DataSources returns the configured sources as domain values.
func (c *Pipeline) DataSources() []types.DataSource {
	out := make([]types.DataSource, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, types.DataSource(s))
	}
	return out
}
