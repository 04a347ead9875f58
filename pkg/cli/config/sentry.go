package config

import (
	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

// Sentry holds error tracking configuration
type Sentry struct {
	DSN string
	Env string
}

// Flags returns CLI flags for Sentry configuration
func (c *Sentry) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sentry-dsn",
			Usage:       "Sentry DSN (empty disables error tracking)",
			Destination: &c.DSN,
			Sources:     cli.EnvVars("VIGIL_SENTRY_DSN"),
		},
		&cli.StringFlag{
			Name:        "sentry-env",
			Usage:       "Sentry environment name",
			Value:       "production",
			Destination: &c.Env,
			Sources:     cli.EnvVars("VIGIL_SENTRY_ENV"),
		},
	}
}

// Configure initializes the Sentry SDK. With no DSN configured the SDK
// stays disabled and CaptureException calls become no-ops.
func (c *Sentry) Configure() error {
	if c.DSN == "" {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         c.DSN,
		Environment: c.Env,
		Release:     types.AppName + "@" + types.Version,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to initialize sentry")
	}
	return nil
}
