package notify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/vigil/pkg/domain/model"
	"github.com/m-mizutani/vigil/pkg/domain/types"
	"github.com/m-mizutani/vigil/pkg/infra/notify"
	"github.com/slack-go/slack"
)

type capture struct {
	url string
	msg *slack.WebhookMessage
}

func newCapturingNotifier(c *capture) *notify.SlackNotifier {
	return notify.NewSlack("https://hooks.slack.com/services/T0/B0/secret",
		notify.WithPoster(func(_ context.Context, url string, msg *slack.WebhookMessage) error {
			c.url = url
			c.msg = msg
			return nil
		}))
}

func TestNotifyCompletedRun(t *testing.T) {
	var c capture
	n := newCapturingNotifier(&c)

	err := n.NotifyRun(context.Background(), &model.RunResult{
		RunID:      "run-1",
		DataSource: types.DataSource("github"),
		Status:     model.StatusCompleted,
		Risk:       &model.RiskResult{Total: 12, High: 2, Medium: 4, Low: 6},
	})
	gt.NoError(t, err)

	gt.Equal(t, c.url, "https://hooks.slack.com/services/T0/B0/secret")
	gt.A(t, c.msg.Attachments).Length(1)

	att := c.msg.Attachments[0]
	gt.Equal(t, att.Color, "good")
	gt.Equal(t, att.Title, "Pipeline run completed")

	fields := map[string]string{}
	for _, f := range att.Fields {
		fields[f.Title] = f.Value
	}
	gt.Equal(t, fields["Data source"], "github")
	gt.Equal(t, fields["Run ID"], "run-1")
	gt.Equal(t, fields["Assessed"], "12")
	gt.Equal(t, fields["Risk breakdown"], "HIGH: 2 / MEDIUM: 4 / LOW: 6")
}

func TestNotifyFailedRun(t *testing.T) {
	var c capture
	n := newCapturingNotifier(&c)

	err := n.NotifyRun(context.Background(), &model.RunResult{
		RunID:      "run-2",
		DataSource: types.DataSource("github"),
		Status:     model.StatusError,
		Message:    "risk stage exploded",
	})
	gt.NoError(t, err)

	att := c.msg.Attachments[0]
	gt.Equal(t, att.Color, "danger")
	gt.Equal(t, att.Title, "Pipeline run failed")

	fields := map[string]string{}
	for _, f := range att.Fields {
		fields[f.Title] = f.Value
	}
	gt.Equal(t, fields["Error"], "risk stage exploded")
}

func TestNotifySkippedRun(t *testing.T) {
	var c capture
	n := newCapturingNotifier(&c)

	err := n.NotifyRun(context.Background(), &model.RunResult{
		RunID:      "run-3",
		DataSource: types.DataSource("github"),
		Status:     model.StatusSkipped,
	})
	gt.NoError(t, err)

	att := c.msg.Attachments[0]
	gt.Equal(t, att.Color, "#cccccc")
	gt.Equal(t, att.Title, "Pipeline run SKIPPED")
}

func TestNotifyPostFailure(t *testing.T) {
	boom := errors.New("webhook rejected")
	n := notify.NewSlack("https://hooks.slack.com/services/T0/B0/secret",
		notify.WithPoster(func(context.Context, string, *slack.WebhookMessage) error {
			return boom
		}))

	err := n.NotifyRun(context.Background(), &model.RunResult{
		RunID:  "run-4",
		Status: model.StatusCompleted,
	})
	gt.True(t, errors.Is(err, boom))
}
