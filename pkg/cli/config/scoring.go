package config

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
)

// Scoring holds risk scoring policy configuration
type Scoring struct {
	PolicyPath string
}

// Flags returns CLI flags for scoring configuration
func (c *Scoring) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "scoring-policy",
			Usage:       "TOML file overriding the scoring weights and cutoffs",
			Destination: &c.PolicyPath,
			Sources:     cli.EnvVars("VIGIL_SCORING_POLICY"),
		},
	}
}

// Policy loads the scoring policy, falling back to the built-in defaults
// when no file is configured. Omitted fields in the file keep their
// default values.
func (c *Scoring) Policy() (model.ScoringPolicy, error) {
	policy := model.DefaultScoringPolicy()
	if c.PolicyPath == "" {
		return policy, nil
	}

	data, err := os.ReadFile(c.PolicyPath)
	if err != nil {
		return policy, goerr.Wrap(err, "failed to read scoring policy file",
			goerr.V("path", c.PolicyPath))
	}
	if err := toml.Unmarshal(data, &policy); err != nil {
		return policy, goerr.Wrap(err, "failed to parse scoring policy file",
			goerr.V("path", c.PolicyPath))
	}
	if err := policy.Validate(); err != nil {
		return policy, goerr.Wrap(err, "invalid scoring policy",
			goerr.V("path", c.PolicyPath))
	}
	return policy, nil
}
