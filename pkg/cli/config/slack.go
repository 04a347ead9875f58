package config

import (
	"github.com/m-mizutani/vigil/pkg/domain/interfaces"
	"github.com/m-mizutani/vigil/pkg/infra/notify"
	"github.com/urfave/cli/v3"
)

// Slack holds notification configuration
type Slack struct {
	WebhookURL string
}

// Flags returns CLI flags for Slack configuration
func (c *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-webhook-url",
			Usage:       "Slack incoming webhook for run notifications",
			Destination: &c.WebhookURL,
			Sources:     cli.EnvVars("VIGIL_SLACK_WEBHOOK_URL"),
		},
	}
}

// Notifier returns the configured notifier, or nil when disabled.
func (c *Slack) Notifier() interfaces.Notifier {
	if c.WebhookURL == "" {
		return nil
	}
	return notify.NewSlack(c.WebhookURL)
}
