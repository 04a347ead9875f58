package notify

import (
	"context"
	"fmt"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/domain/interfaces"
	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/slack-go/slack"
)

// SlackNotifier posts pipeline run outcomes to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	post       func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

var _ interfaces.Notifier = (*SlackNotifier)(nil)

// Option configures the notifier.
type Option func(*SlackNotifier)

// WithPoster replaces the webhook transport, for tests.
func WithPoster(post func(ctx context.Context, url string, msg *slack.WebhookMessage) error) Option {
	return func(n *SlackNotifier) {
		n.post = post
	}
}

// NewSlack creates a notifier for the given incoming webhook URL.
func NewSlack(webhookURL string, opts ...Option) *SlackNotifier {
	n := &SlackNotifier{
		webhookURL: webhookURL,
		post:       slack.PostWebhookContext,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *SlackNotifier) NotifyRun(ctx context.Context, result *model.RunResult) error {
	msg := buildMessage(result)
	if err := n.post(ctx, n.webhookURL, msg); err != nil {
		return goerr.Wrap(err, "failed to post slack webhook")
	}

	ctxlog.From(ctx).Debug("posted run notification to slack",
		"run_id", result.RunID,
		"status", result.Status,
	)
	return nil
}

func buildMessage(result *model.RunResult) *slack.WebhookMessage {
	var color, title string
	fields := []slack.AttachmentField{
		{Title: "Data source", Value: string(result.DataSource), Short: true},
		{Title: "Run ID", Value: result.RunID, Short: true},
	}

	switch result.Status {
	case model.StatusCompleted:
		color = "good"
		title = "Pipeline run completed"
		if result.Risk != nil {
			fields = append(fields,
				slack.AttachmentField{Title: "Assessed", Value: fmt.Sprintf("%d", result.Risk.Total), Short: true},
				slack.AttachmentField{
					Title: "Risk breakdown",
					Value: fmt.Sprintf("HIGH: %d / MEDIUM: %d / LOW: %d",
						result.Risk.High, result.Risk.Medium, result.Risk.Low),
					Short: true,
				},
			)
		}
	case model.StatusError:
		color = "danger"
		title = "Pipeline run failed"
		fields = append(fields,
			slack.AttachmentField{Title: "Error", Value: result.Message, Short: false},
		)
	default:
		color = "#cccccc"
		title = fmt.Sprintf("Pipeline run %s", result.Status)
	}

	return &slack.WebhookMessage{
		Attachments: []slack.Attachment{
			{
				Color:  color,
				Title:  title,
				Fields: fields,
			},
		},
	}
}
